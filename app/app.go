package app

import (
	"context"
	"log/slog"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/pkg/errors"

	"github.com/zachfi/radiogo/modules/broadcaster"
	"github.com/zachfi/radiogo/pkg/library"
)

const metricsNamespace = "radiogo"

type App struct {
	cfg    Config
	logger slog.Logger

	Server *server.Server

	library     *library.Library
	broadcaster *broadcaster.Broadcaster

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service
}

// New creates and returns a new App.
func New(cfg Config, logger slog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if a.cfg.Target == "" {
		a.cfg.Target = All
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "failed to setup module manager")
	}

	return a, nil
}

func (a *App) Run() error {
	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return errors.Wrap(err, "failed to init module services")
	}
	a.serviceMap = serviceMap

	servs := []services.Service(nil)
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return errors.Wrap(err, "failed to create service manager")
	}

	sm.AddListener(services.NewManagerListener(a.started, a.stopped, func(service services.Service) {
		// One failed module stops the station.
		sm.StopAsync()

		m := a.moduleOf(service)
		if service.FailureCase() == modules.ErrStopProcess {
			a.logger.Info("received stop signal via return error", "module", m, "err", service.FailureCase())
			return
		}
		a.logger.Error("module failed", "module", m, "err", service.FailureCase())
	}))

	// Setup signal handler. If signal arrives, we stop the manager, which stops all the services.
	handler := signals.NewHandler(a.Server.Log)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	// Start all services. This can really only fail if some service is already
	// in other state than New, which should not be the case.
	err = sm.StartAsync(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to start service manager")
	}

	return sm.AwaitStopped(context.Background())
}

func (a *App) started() {
	attrs := []any{"target", a.cfg.Target, "modules", len(a.serviceMap)}
	if a.broadcaster != nil {
		attrs = append(attrs, "tracks", len(a.broadcaster.Tracks()))
	}
	a.logger.Info("started", attrs...)
}

func (a *App) stopped() {
	a.logger.Info("stopped")
}

// moduleOf names the module running service.
func (a *App) moduleOf(service services.Service) string {
	for m, s := range a.serviceMap {
		if s == service {
			return m
		}
	}
	return "unknown"
}
