package broadcaster

import (
	"io"
	"sync"
)

// Sink receives published chunks. Write must not block; a failed write
// detaches the sink and closes it with the write error.
type Sink interface {
	io.Writer
	CloseWithError(err error)
}

// Tee reads one track exactly once and republishes every chunk to all
// attached sinks in the order it was read.
//
// A tee goes through three stages: live (pumping its source), ended (source
// exhausted, sinks still attached while the loop looks for the next track)
// and closed (sinks handed to the successor tee, or shut down).
type Tee struct {
	mu     sync.Mutex
	track  string
	src    io.ReadCloser
	offset int64
	sinks  map[Sink]struct{}
	ended  bool
	closed bool
	next   *Tee

	onDrop func(Sink, error)
}

func newTee(track string, src io.ReadCloser, onDrop func(Sink, error)) *Tee {
	return &Tee{
		track:  track,
		src:    src,
		sinks:  make(map[Sink]struct{}),
		onDrop: onDrop,
	}
}

func (t *Tee) Track() string {
	return t.track
}

// Offset returns the number of bytes of the track published so far.
func (t *Tee) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Attach registers s for chunks published from now on. Past bytes are not replayed.
func (t *Tee) Attach(s Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTeeClosed
	}
	t.sinks[s] = struct{}{}
	return nil
}

// Detach removes s. Detaching an unknown sink is a no-op.
func (t *Tee) Detach(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sinks, s)
}

// Sinks returns the number of attached sinks.
func (t *Tee) Sinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// attachAt attaches s only if the tee has published exactly offset bytes, so
// a sink that already holds the track up to offset continues without a gap or
// a repeat. Otherwise it reports the published offset, and for a closed tee
// the tee that took over its sinks.
func (t *Tee) attachAt(s Sink, offset int64) (attached bool, published int64, next *Tee, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		if t.next == nil {
			return false, t.offset, nil, ErrTeeClosed
		}
		return false, t.offset, t.next, nil
	}
	if offset != t.offset {
		return false, t.offset, nil, nil
	}

	t.sinks[s] = struct{}{}
	return true, t.offset, nil, nil
}

// pump reads the next chunk from the source and publishes it. It returns
// io.EOF at the end of the track. Only the loop calls pump, so the read
// happens outside the lock.
func (t *Tee) pump(size int) (int, error) {
	t.mu.Lock()
	src := t.src
	t.mu.Unlock()
	if src == nil {
		return 0, io.EOF
	}

	// Sinks keep a reference to the chunk, so every read gets a fresh buffer.
	buf := make([]byte, size)
	n, err := src.Read(buf)
	if n > 0 {
		t.publish(buf[:n])
	}
	return n, err
}

func (t *Tee) publish(p []byte) {
	type drop struct {
		s   Sink
		err error
	}
	var dropped []drop

	t.mu.Lock()
	for s := range t.sinks {
		if _, err := s.Write(p); err != nil {
			delete(t.sinks, s)
			dropped = append(dropped, drop{s, err})
		}
	}
	t.offset += int64(len(p))
	t.mu.Unlock()

	for _, d := range dropped {
		d.s.CloseWithError(d.err)
		if t.onDrop != nil {
			t.onDrop(d.s, d.err)
		}
	}
}

// end releases the source once the track is exhausted or unreadable. Sinks
// stay attached until handOff.
func (t *Tee) end() {
	t.mu.Lock()
	src := t.src
	t.src = nil
	t.ended = true
	t.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
}

// handOff moves every attached sink to next and closes t. Both locks are held
// so no sink can observe t closed before it is attached to next.
func (t *Tee) handOff(next *Tee) {
	t.mu.Lock()
	next.mu.Lock()
	for s := range t.sinks {
		next.sinks[s] = struct{}{}
	}
	t.sinks = make(map[Sink]struct{})
	t.closed = true
	t.next = next
	src := t.src
	t.src = nil
	next.mu.Unlock()
	t.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
}

// Close shuts the tee down and closes every attached sink with ErrTeeClosed.
func (t *Tee) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sinks := t.sinks
	t.sinks = make(map[Sink]struct{})
	src := t.src
	t.src = nil
	t.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
	for s := range sinks {
		s.CloseWithError(ErrTeeClosed)
	}
}

// Ended reports whether the source is exhausted.
func (t *Tee) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended || t.closed
}
