package app

import (
	"context"
	"log/slog"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
)

// httpServer runs the dskit server as the Server module. Listener streams are
// served from it, so it shuts down only after every other module has
// terminated and closed its sessions.
type httpServer struct {
	srv        *server.Server
	logger     *slog.Logger
	dependents func() []services.Service
	done       chan error
}

func (a *App) initServer() (services.Service, error) {
	a.cfg.Server.MetricsNamespace = metricsNamespace
	a.cfg.Server.ExcludeRequestInLog = true
	a.cfg.Server.RegisterInstrumentation = true
	a.cfg.Server.Log = kitlog.NewLogfmtLogger(os.Stderr)

	srv, err := server.New(a.cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}
	a.Server = srv

	return newHTTPServer(srv, a.logger.With("module", Server), a.dependents), nil
}

// dependents returns the services of every module but the server.
func (a *App) dependents() []services.Service {
	var svs []services.Service
	for m, s := range a.serviceMap {
		if m != Server && s != nil {
			svs = append(svs, s)
		}
	}
	return svs
}

func newHTTPServer(srv *server.Server, logger *slog.Logger, dependents func() []services.Service) services.Service {
	s := &httpServer{
		srv:        srv,
		logger:     logger,
		dependents: dependents,
		done:       make(chan error, 1),
	}
	return services.NewBasicService(nil, s.running, s.stopping)
}

func (s *httpServer) running(ctx context.Context) error {
	go func() {
		defer close(s.done)
		s.done <- s.srv.Run()
	}()
	s.logger.Info("serving", "addr", s.srv.HTTPListenAddr().String())

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.done:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return errors.New("server stopped unexpectedly")
	}
}

func (s *httpServer) stopping(_ error) error {
	for _, svc := range s.dependents() {
		if err := svc.AwaitTerminated(context.Background()); err != nil {
			s.logger.Warn("module failed before server shutdown", "err", err)
		}
	}

	// Shutdown also unblocks Run.
	s.srv.Shutdown()
	<-s.done
	s.logger.Info("server stopped")
	return nil
}
