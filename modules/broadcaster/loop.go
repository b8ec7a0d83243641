package broadcaster

import (
	"context"
	"io"
	"log/slog"

	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Pacer blocks until n more bytes may be broadcast.
type Pacer func(ctx context.Context, n int) error

// NewRatePacer paces the broadcast to byteRate bytes per second. A byteRate of
// zero or less disables pacing.
func NewRatePacer(byteRate, chunkSize int) Pacer {
	if byteRate <= 0 {
		return func(ctx context.Context, _ int) error {
			return ctx.Err()
		}
	}

	burst := chunkSize
	if byteRate > burst {
		burst = byteRate
	}
	limiter := rate.NewLimiter(rate.Limit(byteRate), burst)

	return func(ctx context.Context, n int) error {
		return limiter.WaitN(ctx, n)
	}
}

// Loop drives the broadcast through the catalog: it opens the selected track
// into a fresh Tee, pumps it to the end and moves on, wrapping to the start of
// the catalog. Missing or unreadable tracks are skipped; an empty catalog is
// re-inspected at a fixed interval.
type Loop struct {
	cfg     *Config
	logger  *slog.Logger
	catalog *Catalog
	source  Source
	clock   *Clock
	metrics *metrics
	pace    Pacer
	rescan  func(context.Context) error
	onDrop  func(Sink, error)

	// cursor is the last track selected, played or skipped.
	cursor      string
	cursorIndex int
	selected    bool

	live *Tee
}

// Run blocks until ctx is cancelled. Track failures never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	// Fixed interval: min and max are equal.
	idle := backoff.New(ctx, backoff.Config{
		MinBackoff: l.cfg.EmptyRetry,
		MaxBackoff: l.cfg.EmptyRetry,
	})
	misses := 0

	for ctx.Err() == nil {
		tracks := l.catalog.Tracks()
		if len(tracks) == 0 {
			l.logger.Info("waiting for tracks", "err", ErrEmptyCatalog, "retry", l.cfg.EmptyRetry)
			idle.Wait()
			l.inspect(ctx)
			continue
		}

		index, track := l.next(tracks)
		l.cursor, l.cursorIndex, l.selected = track, index, true

		if !l.source.Exists(track) {
			l.logger.Warn("skipping track", "track", track, "index", index, "err", ErrTrackMissing)
			l.metrics.trackSkips.WithLabelValues("missing").Inc()
			misses++
		} else {
			n, err := l.play(ctx, index, track)
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil:
				l.logger.Warn("skipping track", "track", track, "index", index, "played", n, "err", err)
				l.metrics.trackSkips.WithLabelValues("read_error").Inc()
			}
			if n > 0 {
				misses = 0
				idle.Reset()
			} else {
				misses++
			}
		}

		// A whole lap without a playable track; don't spin on it.
		if misses >= len(tracks) {
			misses = 0
			l.logger.Warn("no playable tracks in catalog", "tracks", len(tracks), "retry", l.cfg.EmptyRetry)
			idle.Wait()
			l.inspect(ctx)
		}
	}

	return nil
}

// next picks the entry after the cursor in the current order. If the cursor
// left the catalog, whatever now sits at its old index goes next.
func (l *Loop) next(tracks []string) (int, string) {
	if !l.selected {
		return 0, tracks[0]
	}

	for i, t := range tracks {
		if t == l.cursor {
			i = (i + 1) % len(tracks)
			return i, tracks[i]
		}
	}

	i := l.cursorIndex % len(tracks)
	return i, tracks[i]
}

// play puts track on air and pumps it until the end. It returns the number of
// bytes broadcast.
func (l *Loop) play(ctx context.Context, index int, track string) (int64, error) {
	src, err := l.source.Open(track, 0)
	if err != nil {
		return 0, errors.Wrapf(ErrTrackRead, "open %s: %v", track, err)
	}

	tee := newTee(track, src, l.onDrop)
	l.clock.start(index, track, tee)
	if l.live != nil {
		l.live.handOff(tee)
	}
	l.live = tee
	defer tee.end()

	l.metrics.tracksStarted.Inc()
	l.logger.Info("now playing", "track", track, "index", index)

	var played int64
	for {
		if err := l.pace(ctx, l.cfg.ChunkSize); err != nil {
			return played, err
		}

		n, err := tee.pump(l.cfg.ChunkSize)
		if n > 0 {
			played += int64(n)
			l.clock.advance(n)
			l.metrics.broadcastBytes.Add(float64(n))
		}
		if err == io.EOF {
			l.logger.Debug("track finished", "track", track, "bytes", played)
			return played, nil
		}
		if err != nil {
			return played, errors.Wrapf(ErrTrackRead, "read %s at %d: %v", track, played, err)
		}
	}
}

func (l *Loop) inspect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := l.rescan(ctx); err != nil {
		l.logger.Error("catalog rescan failed", "err", err)
	}
}

func (l *Loop) shutdown() {
	if l.live != nil {
		l.live.Close()
	}
}
