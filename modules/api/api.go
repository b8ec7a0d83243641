package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zachfi/radiogo/modules/broadcaster"
)

// Radio is the broadcast the API exposes.
type Radio interface {
	Join(w io.Writer) *broadcaster.Session
	RescanCatalog(ctx context.Context) error
	SetOrder(newOrder []string) error
	Tracks() []string
	NowPlaying() (broadcaster.Position, bool)
	Listeners() int
}

// Store saves uploaded tracks.
type Store interface {
	Save(name string, r io.Reader) (int64, error)
}

// API serves the listener stream and the playlist controls over HTTP.
type API struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	radio   Radio
	store   Store
	metrics *metrics
}

var module = "api"

// New registers the API routes on router.
func New(cfg Config, logger slog.Logger, radio Radio, store Store, router *mux.Router, reg prometheus.Registerer) (*API, error) {
	if radio == nil {
		return nil, errors.New("api requires a radio")
	}
	if router == nil {
		return nil, errors.New("api requires a router")
	}
	cfg.applyDefaults()

	a := &API{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		radio:   radio,
		store:   store,
		metrics: newMetrics(reg),
	}

	a.register(router)
	a.Service = services.NewIdleService(a.starting, a.stopping)

	return a, nil
}

func (a *API) register(router *mux.Router) {
	router.HandleFunc("/stream", a.stream).Methods(http.MethodGet)
	router.HandleFunc("/listen.m3u", a.playlistM3U).Methods(http.MethodGet)
	router.HandleFunc("/listen.pls", a.playlistPLS).Methods(http.MethodGet)

	router.HandleFunc("/api/playlist", a.playlist).Methods(http.MethodGet)
	router.HandleFunc("/api/playlist/order", a.order).Methods(http.MethodPost)
	router.HandleFunc("/api/status", a.status).Methods(http.MethodGet)
	if a.store != nil {
		router.HandleFunc("/api/upload", a.upload).Methods(http.MethodPost)
	}

	if a.cfg.UIDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(a.cfg.UIDir)))
	}
}

func (a *API) starting(_ context.Context) error {
	a.logger.Info("routes registered", "ui_dir", a.cfg.UIDir, "uploads", a.store != nil)
	return nil
}

func (a *API) stopping(_ error) error {
	a.logger.Info("stopping")
	return nil
}
