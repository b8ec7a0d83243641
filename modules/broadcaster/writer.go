package broadcaster

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ChannelWriter queues published chunks for one listener. Write never blocks:
// a full queue fails the write so the tee can drop the listener without
// holding back everyone else. Chunks are queued by reference and must not be
// modified after Write.
type ChannelWriter struct {
	sync.Mutex
	dataChan chan []byte
	closed   bool
	err      error
}

func NewChannelWriter(size int) *ChannelWriter {
	return &ChannelWriter{
		dataChan: make(chan []byte, size),
	}
}

func (cw *ChannelWriter) Write(p []byte) (n int, err error) {
	cw.Lock()
	defer cw.Unlock()

	if cw.closed {
		return 0, io.ErrClosedPipe
	}

	select {
	case cw.dataChan <- p:
		return len(p), nil
	default:
		return 0, errors.Wrap(ErrListenerWrite, "listener queue full")
	}
}

// C returns the queue. It is closed once the writer is closed.
func (cw *ChannelWriter) C() <-chan []byte {
	return cw.dataChan
}

// CloseWithError closes the queue and records why. Only the first reason is kept.
func (cw *ChannelWriter) CloseWithError(err error) {
	cw.Lock()
	defer cw.Unlock()

	if !cw.closed {
		close(cw.dataChan)
		cw.closed = true
		cw.err = err
	}
}

func (cw *ChannelWriter) Close() error {
	cw.CloseWithError(nil)
	return nil
}

// Err reports the reason the writer was closed, if any.
func (cw *ChannelWriter) Err() error {
	cw.Lock()
	defer cw.Unlock()
	return cw.err
}
