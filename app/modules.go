package app

import (
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zachfi/radiogo/modules/api"
	"github.com/zachfi/radiogo/modules/broadcaster"
	"github.com/zachfi/radiogo/pkg/library"
)

const (
	Server string = "server"

	Library     string = "library"
	Broadcaster string = "broadcaster"
	API         string = "api"

	All string = "all"
)

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(kitlog.NewLogfmtLogger(os.Stderr))
	mm.RegisterModule(Server, a.initServer, modules.UserInvisibleModule)
	mm.RegisterModule(Library, a.initLibrary, modules.UserInvisibleModule)

	mm.RegisterModule(Broadcaster, a.initBroadcaster)
	mm.RegisterModule(API, a.initAPI)

	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		// Server:       nil,
		// Library:      nil,
		Broadcaster: {Server, Library},
		API:         {Server, Broadcaster},

		All: {API},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm

	return nil
}

// initLibrary opens the track directory. It has no lifecycle of its own.
func (a *App) initLibrary() (services.Service, error) {
	lib, err := library.New(a.cfg.Library, a.logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init library")
	}

	a.library = lib

	return nil, nil
}

func (a *App) initBroadcaster() (services.Service, error) {
	b, err := broadcaster.New(a.cfg.Broadcaster, a.logger, a.library, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+Broadcaster)
	}

	a.broadcaster = b

	return b, nil
}

func (a *App) initAPI() (services.Service, error) {
	s, err := api.New(a.cfg.API, a.logger, a.broadcaster, a.library, a.Server.HTTP, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+API)
	}

	return s, nil
}
