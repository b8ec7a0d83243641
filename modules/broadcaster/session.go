package broadcaster

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
)

type Status int32

const (
	StatusJoining Status = iota
	StatusAttached
	StatusDetaching
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusJoining:
		return "joining"
	case StatusAttached:
		return "attached"
	case StatusDetaching:
		return "detaching"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one connected listener. It starts at the live byte offset of
// the current track, streams the backlog between that offset and the tee from
// the source, then attaches to the tee and follows the broadcast across track
// boundaries until the listener goes away.
type Session struct {
	ID       string
	JoinedAt time.Time

	cfg     *Config
	logger  *slog.Logger
	clock   *Clock
	source  Source
	metrics *metrics
	out     io.Writer
	sink    *ChannelWriter
	onClose func(*Session, error)

	status atomic.Int32

	mu         sync.Mutex
	cancel     context.CancelFunc
	joinTrack  string
	joinOffset int64
	tee        *Tee
	closed     bool
}

// Run streams the broadcast to the session's writer. It returns nil when ctx
// is cancelled (the listener disconnected) or the broadcast shuts down, and an
// error wrapping ErrListenerWrite or ErrListenerJoinTimeout when the session
// failed. Either way the session is closed on return. Close ends a running
// session wherever it is, including while it waits for a track or catches up.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.close(err)
	}()

	pos, tee, err := s.await(ctx)
	if err != nil || tee == nil {
		return err
	}

	s.mu.Lock()
	s.joinTrack, s.joinOffset = pos.Track, pos.Bytes
	s.mu.Unlock()
	s.logger.Info("listener joined", "track", pos.Track, "offset", pos.Bytes)

	if err := s.handOff(ctx, tee, pos.Bytes); err != nil {
		return ignoreShutdown(ctx, err)
	}
	s.status.CompareAndSwap(int32(StatusJoining), int32(StatusAttached))

	return ignoreShutdown(ctx, s.pump(ctx))
}

// Close detaches the session. It is safe to call at any time and more than once.
func (s *Session) Close() {
	s.close(nil)
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// JoinPoint reports the track and byte offset the session joined at.
func (s *Session) JoinPoint() (string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinTrack, s.joinOffset
}

// await waits for a track to be on air.
func (s *Session) await(parent context.Context) (Position, *Tee, error) {
	ctx := parent
	if s.cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.cfg.JoinTimeout)
		defer cancel()
	}

	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: s.cfg.HandoffBackoff,
		MaxBackoff: s.cfg.HandoffBackoffMax,
	})
	for {
		pos, tee := s.clock.Live()
		if tee != nil {
			return pos, tee, nil
		}

		bo.Wait()
		if ctx.Err() != nil {
			if parent.Err() != nil {
				return Position{}, nil, nil
			}
			return Position{}, nil, errors.Wrapf(ErrListenerJoinTimeout, "after %s", s.cfg.JoinTimeout)
		}
	}
}

// handOff brings the session from pos in tee's track up to the live position
// and attaches it there. Backlog bytes come from the source; the tee is only
// joined once the session holds exactly as many bytes as the tee has
// published, so the seam has no gap and no repeat. If the tee was replaced in
// the meantime the session finishes its track from the source and carries on
// with the successor.
func (s *Session) handOff(ctx context.Context, tee *Tee, pos int64) error {
	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: s.cfg.HandoffBackoff,
		MaxBackoff: s.cfg.HandoffBackoffMax,
		MaxRetries: s.cfg.HandoffRetries,
	})

	for {
		attached, live, next, err := tee.attachAt(s.sink, pos)
		switch {
		case err != nil:
			return err
		case attached:
			s.mu.Lock()
			closed := s.closed
			s.tee = tee
			s.mu.Unlock()
			if closed {
				tee.Detach(s.sink)
			}
			return nil
		case pos < live:
			n, err := s.catchUp(ctx, tee.Track(), pos, live)
			pos += n
			if err == nil {
				bo.Reset()
				continue
			}
			if errors.Is(err, ErrListenerWrite) || ctx.Err() != nil {
				return err
			}

			s.logger.Warn("catch-up read failed", "track", tee.Track(), "offset", pos, "err", err)
			bo.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !bo.Ongoing() {
				s.logger.Warn("skipping unreadable backlog", "track", tee.Track(), "offset", pos, "skipped", live-pos)
				pos = live
				bo.Reset()
			}
		case next != nil:
			tee, pos = next, 0
		default:
			return errors.Errorf("session offset %d is ahead of %s at %d", pos, tee.Track(), live)
		}
	}
}

// catchUp copies track bytes [from, to) from the source to the listener and
// returns how many were written.
func (s *Session) catchUp(ctx context.Context, track string, from, to int64) (int64, error) {
	rc, err := s.source.Open(track, from)
	if err != nil {
		return 0, errors.Wrapf(ErrTrackRead, "open %s at %d: %v", track, from, err)
	}
	defer rc.Close()

	cw := &countingWriter{w: s.out}
	_, err = io.CopyN(cw, &ctxReader{ctx: ctx, r: rc}, to-from)
	s.metrics.catchupBytes.Add(float64(cw.n))

	switch {
	case err == nil:
		return cw.n, nil
	case cw.err != nil:
		return cw.n, errors.Wrapf(ErrListenerWrite, "%v", cw.err)
	case ctx.Err() != nil:
		return cw.n, ctx.Err()
	default:
		return cw.n, errors.Wrapf(ErrTrackRead, "read %s at %d: %v", track, from+cw.n, err)
	}
}

// pump forwards live chunks until the listener or the tee goes away.
func (s *Session) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-s.sink.C():
			if !ok {
				return s.sink.Err()
			}
			if _, err := s.out.Write(p); err != nil {
				return errors.Wrapf(ErrListenerWrite, "%v", err)
			}
		}
	}
}

func (s *Session) close(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.status.Store(int32(StatusDetaching))
	tee, cancel := s.tee, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// The sink may have been handed on since it was attached; a closed sink
	// fails its next write and is dropped by whichever tee holds it.
	if tee != nil {
		tee.Detach(s.sink)
	}
	_ = s.sink.Close()
	s.status.Store(int32(StatusClosed))

	if s.onClose != nil {
		s.onClose(s, err)
	}
}

// ignoreShutdown maps endings that are not session failures to nil.
func ignoreShutdown(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil || errors.Is(err, ErrTeeClosed) {
		return nil
	}
	return err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil {
		c.err = err
	}
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
