package icy

import (
	"bytes"
	"strings"
)

// blockUnit is the granularity of a metadata block; its length byte counts units.
const blockUnit = 16

// maxBlock is the largest metadata block a single length byte can announce.
const maxBlock = 255 * blockUnit

// Metadata is the content of one in-band metadata block.
type Metadata struct {
	StreamTitle string
	StreamURL   string
}

// NewMetadata parses a metadata block, without its length byte. Unknown keys
// are ignored and trailing NUL padding is dropped.
func NewMetadata(b []byte) *Metadata {
	m := &Metadata{}

	s := string(bytes.TrimRight(b, "\x00"))
	for len(s) > 0 {
		eq := strings.Index(s, "='")
		if eq < 0 {
			break
		}
		key := s[:eq]
		s = s[eq+2:]

		end := strings.Index(s, "';")
		if end < 0 {
			end = strings.LastIndex(s, "'")
			if end < 0 {
				end = len(s)
			}
		}
		value := s[:end]
		if end+2 <= len(s) {
			s = s[end+2:]
		} else {
			s = ""
		}

		switch key {
		case "StreamTitle":
			m.StreamTitle = value
		case "StreamUrl", "StreamURL":
			m.StreamURL = value
		}
	}

	return m
}

// Equals reports whether m and other carry the same metadata. A nil
// Metadata only equals nil.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}

// Bytes encodes m as a metadata block including its leading length byte. Values
// that would overflow the largest block are truncated.
func (m *Metadata) Bytes() []byte {
	var body strings.Builder
	body.WriteString("StreamTitle='")
	body.WriteString(m.StreamTitle)
	body.WriteString("';")
	if m.StreamURL != "" {
		body.WriteString("StreamUrl='")
		body.WriteString(m.StreamURL)
		body.WriteString("';")
	}

	content := body.String()
	if len(content) > maxBlock {
		// Keep the block parseable: the closing quote and separator survive.
		content = content[:maxBlock-2] + "';"
	}

	units := (len(content) + blockUnit - 1) / blockUnit
	out := make([]byte, 1+units*blockUnit)
	out[0] = byte(units)
	copy(out[1:], content)

	return out
}
