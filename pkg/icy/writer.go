package icy

import (
	"fmt"
	"io"
)

// Writer frames an audio stream for a listener that asked for in-band
// metadata: after every metaint audio bytes it inserts a metadata block
// carrying the current title. An unchanged title is sent as an empty block.
type Writer struct {
	w       io.Writer
	metaint int
	title   func() string

	// The number of audio bytes written since the last metadata block
	pos int

	// The metadata last sent to the listener
	sent *Metadata
}

// NewWriter returns a Writer that asks title for the stream title at every
// metadata block.
func NewWriter(w io.Writer, metaint int, title func() string) (*Writer, error) {
	if metaint <= 0 {
		return nil, fmt.Errorf("invalid metaint %d", metaint)
	}

	return &Writer{
		w:       w,
		metaint: metaint,
		title:   title,
	}, nil
}

// Write writes the audio bytes of p and any metadata blocks falling inside
// them. The count returned covers audio bytes only.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		chunk := p
		if room := w.metaint - w.pos; len(chunk) > room {
			chunk = chunk[:room]
		}

		n, err := w.w.Write(chunk)
		written += n
		w.pos += n
		if err != nil {
			return written, err
		}
		p = p[n:]

		if w.pos == w.metaint {
			if err := w.writeMetadata(); err != nil {
				return written, err
			}
			w.pos = 0
		}
	}

	return written, nil
}

func (w *Writer) writeMetadata() error {
	m := &Metadata{}
	if w.title != nil {
		m.StreamTitle = w.title()
	}

	block := []byte{0}
	if !m.Equals(w.sent) {
		block = m.Bytes()
	}

	if _, err := w.w.Write(block); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	w.sent = m

	return nil
}
