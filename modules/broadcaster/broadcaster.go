package broadcaster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
)

// dirSource is implemented by sources backed by a directory that can be watched.
type dirSource interface {
	Dir() string
}

type Broadcaster struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	source  Source
	catalog *Catalog
	clock   *Clock
	loop    *Loop
	metrics *metrics
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	sessions map[string]*Session
}

var module = "broadcaster"

// New creates a Broadcaster playing the tracks of source.
func New(cfg Config, logger slog.Logger, source Source, reg prometheus.Registerer) (*Broadcaster, error) {
	cfg.applyDefaults()

	b := &Broadcaster{
		cfg:      &cfg,
		logger:   logger.With("module", module),
		source:   source,
		catalog:  NewCatalog(source, cfg.Extensions),
		clock:    NewClock(),
		metrics:  newMetrics(reg),
		sessions: make(map[string]*Session),
	}

	b.loop = &Loop{
		cfg:     b.cfg,
		logger:  b.logger,
		catalog: b.catalog,
		source:  source,
		clock:   b.clock,
		metrics: b.metrics,
		pace:    NewRatePacer(cfg.ByteRate, cfg.ChunkSize),
		rescan:  b.RescanCatalog,
		onDrop:  b.dropped,
	}

	b.Service = services.NewBasicService(b.starting, b.running, b.stopping)

	return b, nil
}

func (b *Broadcaster) starting(ctx context.Context) error {
	if err := b.RescanCatalog(ctx); err != nil {
		// The loop keeps inspecting the catalog; a bad first scan is not fatal.
		b.logger.Error("initial catalog scan failed", "err", err)
	}
	b.logger.Info("catalog loaded", "tracks", b.catalog.Len())

	ds, ok := b.source.(dirSource)
	if !b.cfg.Watch || !ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		b.logger.Error("error creating watcher", "err", err)
		return nil
	}
	if err := watcher.Add(ds.Dir()); err != nil {
		b.logger.Error("error watching track directory", "err", err, "dir", ds.Dir())
		_ = watcher.Close()
		return nil
	}
	b.watcher = watcher

	return nil
}

func (b *Broadcaster) running(ctx context.Context) error {
	if b.watcher != nil {
		go b.watch(ctx)
	}

	return b.loop.Run(ctx)
}

func (b *Broadcaster) stopping(_ error) error {
	b.logger.Info("stopping")

	var errs []error
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Join creates a listener session writing the broadcast to w. The caller
// drives it with Run and cancels Run's context when the listener disconnects.
func (b *Broadcaster) Join(w io.Writer) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:       id,
		JoinedAt: time.Now(),
		cfg:      b.cfg,
		logger:   b.logger.With("session", id),
		clock:    b.clock,
		source:   b.source,
		metrics:  b.metrics,
		out:      w,
		sink:     NewChannelWriter(b.cfg.SinkBuffer),
		onClose:  b.left,
	}

	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	b.metrics.sessions.Inc()
	b.metrics.listeners.Inc()

	return s
}

// RescanCatalog re-reads the track source. Playback is not interrupted.
func (b *Broadcaster) RescanCatalog(ctx context.Context) error {
	if err := b.catalog.Rescan(ctx); err != nil {
		b.metrics.rescans.WithLabelValues("error").Inc()
		return err
	}
	b.metrics.rescans.WithLabelValues("ok").Inc()
	b.metrics.catalogTracks.Set(float64(b.catalog.Len()))
	b.logger.Debug("catalog rescanned", "tracks", b.catalog.Len())
	return nil
}

// SetOrder replaces the play order. The track on air finishes first, even if
// it is no longer part of newOrder.
func (b *Broadcaster) SetOrder(newOrder []string) error {
	if err := b.catalog.SetOrder(newOrder); err != nil {
		return err
	}
	b.metrics.catalogTracks.Set(float64(b.catalog.Len()))
	b.logger.Info("playlist order updated", "tracks", len(newOrder))
	return nil
}

// Tracks returns the current play order.
func (b *Broadcaster) Tracks() []string {
	return b.catalog.Tracks()
}

// NowPlaying returns the broadcast position and whether a track is on air.
func (b *Broadcaster) NowPlaying() (Position, bool) {
	pos, tee := b.clock.Live()
	if tee == nil || tee.Ended() {
		return pos, false
	}
	return pos, true
}

// Listeners returns the number of connected sessions.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Broadcaster) left(s *Session, err error) {
	b.mu.Lock()
	delete(b.sessions, s.ID)
	b.mu.Unlock()
	b.metrics.listeners.Dec()

	track, offset := s.JoinPoint()
	switch {
	case err == nil:
		b.logger.Info("listener left", "session", s.ID, "joined_track", track, "joined_offset", offset, "duration", time.Since(s.JoinedAt))
	case errors.Is(err, ErrListenerJoinTimeout):
		b.metrics.sessionFailures.WithLabelValues("join_timeout").Inc()
		b.logger.Warn("listener dropped", "session", s.ID, "err", err)
	case errors.Is(err, ErrListenerWrite):
		b.metrics.sessionFailures.WithLabelValues("write").Inc()
		b.logger.Warn("listener dropped", "session", s.ID, "err", err)
	default:
		b.metrics.sessionFailures.WithLabelValues("other").Inc()
		b.logger.Error("listener failed", "session", s.ID, "err", err)
	}
}

func (b *Broadcaster) dropped(_ Sink, err error) {
	b.logger.Debug("sink detached from tee", "err", err)
}
