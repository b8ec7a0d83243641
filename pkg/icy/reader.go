package icy

import (
	"fmt"
	"io"
)

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// Reader strips the metadata blocks from an ICY framed stream so only audio
// bytes are returned. It reads back what Writer produces.
type Reader struct {
	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Amount of bytes to read before expecting a metadata block
	metaint int

	// Stream metadata
	metadata *Metadata

	// The number of bytes read since last metadata block
	pos int

	// The underlying data stream
	r io.Reader
}

func NewReader(r io.Reader, metaint int) (*Reader, error) {
	if metaint <= 0 {
		return nil, fmt.Errorf("invalid metaint %d", metaint)
	}

	return &Reader{
		metaint: metaint,
		r:       r,
	}, nil
}

// Read implements the standard Read interface. It never returns bytes from
// both sides of a metadata block in one call.
func (s *Reader) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	if want := s.metaint - s.pos; len(buf) > want {
		buf = buf[:want]
	}

	n, err := s.r.Read(buf)
	s.pos += n

	return n, err
}

// Metadata returns the last metadata block seen, or nil.
func (s *Reader) Metadata() *Metadata {
	return s.metadata
}

func (s *Reader) readMetadata() error {
	var metaLenByte [1]byte
	if _, err := io.ReadFull(s.r, metaLenByte[:]); err != nil {
		return err
	}

	metaBlockLen := int(metaLenByte[0]) * blockUnit
	if metaBlockLen == 0 {
		return nil
	}

	metaBuf := make([]byte, metaBlockLen)
	if _, err := io.ReadFull(s.r, metaBuf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if m := NewMetadata(metaBuf); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(s.metadata)
		}
	}

	return nil
}
