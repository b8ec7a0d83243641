package icy

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	m := NewMetadata([]byte("StreamTitle='Artist - Song';StreamUrl='http://example.com';\x00\x00\x00"))
	assert.Equal(t, "Artist - Song", m.StreamTitle)
	assert.Equal(t, "http://example.com", m.StreamURL)

	block := m.Bytes()
	require.NotEmpty(t, block)
	assert.Equal(t, 0, (len(block)-1)%blockUnit)
	assert.Equal(t, (len(block)-1)/blockUnit, int(block[0]))
	assert.True(t, m.Equals(NewMetadata(block[1:])))

	assert.True(t, (*Metadata)(nil).Equals(nil))
	assert.False(t, m.Equals(nil))
	assert.False(t, m.Equals(&Metadata{StreamTitle: "Artist - Song"}))
}

func TestMetadataTruncatesLongTitles(t *testing.T) {
	m := &Metadata{StreamTitle: strings.Repeat("x", 5000)}

	block := m.Bytes()
	assert.Equal(t, 1+maxBlock, len(block))
	assert.Equal(t, byte(255), block[0])

	parsed := NewMetadata(block[1:])
	assert.True(t, strings.HasPrefix(m.StreamTitle, parsed.StreamTitle))
	assert.NotEmpty(t, parsed.StreamTitle)
}

func TestWriterFraming(t *testing.T) {
	var out bytes.Buffer
	title := "one.flac"
	w, err := NewWriter(&out, 10, func() string { return title })
	require.NoError(t, err)

	n, err := w.Write([]byte("0123456789abcde"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	n, err = w.Write([]byte("fghij"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	title = "two.flac"
	_, err = w.Write([]byte("klmnopqrst"))
	require.NoError(t, err)

	first := (&Metadata{StreamTitle: "one.flac"}).Bytes()
	second := (&Metadata{StreamTitle: "two.flac"}).Bytes()
	want := concat([]byte("0123456789"), first, []byte("abcdefghij"), []byte{0}, []byte("klmnopqrst"), second)
	assert.Equal(t, want, out.Bytes())

	_, err = NewWriter(&out, 0, nil)
	assert.Error(t, err)
}

func TestReaderStripsMetadata(t *testing.T) {
	audio := bytes.Repeat([]byte("0123456789"), 50)

	var framed bytes.Buffer
	title := "a.flac"
	w, err := NewWriter(&framed, 64, func() string { return title })
	require.NoError(t, err)
	_, err = w.Write(audio[:200])
	require.NoError(t, err)
	title = "b.flac"
	_, err = w.Write(audio[200:])
	require.NoError(t, err)

	r, err := NewReader(&framed, 64)
	require.NoError(t, err)

	var titles []string
	r.MetadataCallbackFunc = func(m *Metadata) {
		titles = append(titles, m.StreamTitle)
	}

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, audio, got)
	assert.Equal(t, []string{"a.flac", "b.flac"}, titles)
	assert.Equal(t, "b.flac", r.Metadata().StreamTitle)
}

func TestReaderTruncatedMetadata(t *testing.T) {
	framed := concat([]byte("abcd"), []byte{2}, []byte("StreamTitle"))

	r, err := NewReader(bytes.NewReader(framed), 4)
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPlaylists(t *testing.T) {
	const url = "http://radio.example.com:3030/stream"

	m3u := M3U("Lossless Radio", url)
	assert.True(t, strings.HasPrefix(m3u, "#EXTM3U\n"))
	got, err := ParseM3U(strings.NewReader(m3u))
	require.NoError(t, err)
	assert.Equal(t, url, got)

	pls := PLS("Lossless Radio", url)
	assert.Contains(t, pls, "Title1=Lossless Radio\n")
	got, err = ParsePLS(strings.NewReader(pls))
	require.NoError(t, err)
	assert.Equal(t, url, got)

	_, err = ParseM3U(strings.NewReader("#EXTM3U\n"))
	assert.Error(t, err)
	_, err = ParsePLS(strings.NewReader("[playlist]\n"))
	assert.Error(t, err)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
