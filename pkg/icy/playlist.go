package icy

import (
	"fmt"
	"io"
	"strings"
)

// M3U renders an M3U playlist with a single entry for the stream at url.
func M3U(name, url string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXTINF:-1,%s\n", name)
	b.WriteString(url)
	b.WriteString("\n")
	return b.String()
}

// PLS renders a PLS playlist with a single entry for the stream at url.
func PLS(name, url string) string {
	var b strings.Builder
	b.WriteString("[playlist]\n")
	b.WriteString("NumberOfEntries=1\n")
	fmt.Fprintf(&b, "File1=%s\n", url)
	fmt.Fprintf(&b, "Title1=%s\n", name)
	b.WriteString("Length1=-1\n")
	b.WriteString("Version=2\n")
	return b.String()
}

// ParsePLS parses a PLS playlist file and returns the first stream URL. It
// resolves what PLS renders.
func ParsePLS(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "File") && strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if url := strings.TrimSpace(parts[1]); url != "" {
				return url, nil
			}
		}
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// ParseM3U parses an M3U playlist file and returns the first stream URL. It
// resolves what M3U renders.
func ParseM3U(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}
