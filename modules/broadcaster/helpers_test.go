package broadcaster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memSource is an in-memory track source that counts open handles.
type memSource struct {
	mu       sync.Mutex
	tracks   map[string][]byte
	failAt   map[string]int64 // reads fail once this offset is reached
	failOpen int              // fail the next n opens at a non-zero offset
	open     int
}

func newMemSource() *memSource {
	return &memSource{
		tracks: make(map[string][]byte),
		failAt: make(map[string]int64),
	}
}

func (m *memSource) put(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[id] = data
}

func (m *memSource) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, id)
}

func (m *memSource) openHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *memSource) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memSource) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracks[id]
	return ok
}

func (m *memSource) Open(id string, offset int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.tracks[id]
	if !ok {
		return nil, fmt.Errorf("open %s: no such track", id)
	}
	if offset > 0 && m.failOpen > 0 {
		m.failOpen--
		return nil, fmt.Errorf("open %s: device busy", id)
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}

	limit := int64(len(data))
	if at, ok := m.failAt[id]; ok {
		limit = at
	}

	m.open++
	return &memReader{src: m, data: data, pos: offset, limit: limit}, nil
}

type memReader struct {
	src    *memSource
	data   []byte
	pos    int64
	limit  int64
	closed bool
}

func (r *memReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	if r.pos >= r.limit {
		return 0, fmt.Errorf("read error at %d", r.pos)
	}

	end := r.pos + int64(len(p))
	if end > r.limit {
		end = r.limit
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += int64(n)
	return n, nil
}

func (r *memReader) Close() error {
	r.src.mu.Lock()
	defer r.src.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.src.open--
	}
	return nil
}

// trackData returns size bytes that differ between tracks and along a track.
func trackData(seed byte, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i*7) ^ seed
	}
	return b
}

// lockedBuffer is a listener connection. It fails every write once failAfter
// bytes have been written, when failAfter is positive.
type lockedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	failAfter int
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAfter > 0 && b.buf.Len()+len(p) > b.failAfter {
		return 0, fmt.Errorf("connection reset by peer")
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// testSink collects published chunks.
type testSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	fail   bool
	closed bool
	err    error
}

func (s *testSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, fmt.Errorf("broken pipe")
	}
	return s.buf.Write(p)
}

func (s *testSink) CloseWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.err = err
}

func (s *testSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// stepper paces the loop one chunk at a time. Between park and the next
// release the loop is idle, so clock and tee state can be inspected.
type stepper struct {
	arrived chan struct{}
	gate    chan struct{}
}

func newStepper() *stepper {
	return &stepper{
		arrived: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (s *stepper) pace(ctx context.Context, _ int) error {
	select {
	case s.arrived <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stepper) park(t *testing.T) {
	t.Helper()
	select {
	case <-s.arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not reach the next chunk")
	}
}

func (s *stepper) step(t *testing.T) {
	t.Helper()
	select {
	case s.gate <- struct{}{}:
	case <-time.After(5 * time.Second):
		t.Fatal("loop is not waiting for a chunk")
	}
	s.park(t)
}

// stepUntil steps the parked loop until cond holds.
func (s *stepper) stepUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if cond() {
			return
		}
		s.step(t)
	}
	t.Fatal("condition not reached")
}

func testConfig() Config {
	return Config{
		ChunkSize:         1000,
		EmptyRetry:        10 * time.Millisecond,
		SinkBuffer:        1024,
		JoinTimeout:       5 * time.Second,
		HandoffBackoff:    time.Millisecond,
		HandoffBackoffMax: 5 * time.Millisecond,
		HandoffRetries:    3,
		Extensions:        []string{".flac"},
	}
}

func newTestBroadcaster(t *testing.T, src Source, cfg Config) (*Broadcaster, *stepper) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := New(cfg, *logger, src, prometheus.NewRegistry())
	require.NoError(t, err)

	st := newStepper()
	b.loop.pace = st.pace
	return b, st
}

func startBroadcaster(t *testing.T, b *Broadcaster) {
	t.Helper()
	require.NoError(t, services.StartAndAwaitRunning(context.Background(), b))
	t.Cleanup(func() {
		_ = services.StopAndAwaitTerminated(context.Background(), b)
	})
}

// listen joins a listener and runs it in the background. The returned
// channel yields Run's result.
func listen(t *testing.T, b *Broadcaster, w io.Writer) (*Session, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := b.Join(w)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	return s, cancel, done
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
