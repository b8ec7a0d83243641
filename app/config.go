package app

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/radiogo/modules/api"
	"github.com/zachfi/radiogo/modules/broadcaster"
	"github.com/zachfi/radiogo/pkg/library"
)

type Config struct {
	Target      string             `yaml:"target"`
	Tracing     tracing.Config     `yaml:"tracing,omitempty"`
	Server      server.Config      `yaml:"server,omitempty"`
	Library     library.Config     `yaml:"library,omitempty"`
	Broadcaster broadcaster.Config `yaml:"broadcaster,omitempty"`
	API         api.Config         `yaml:"api,omitempty"`
}

// LoadFile overlays the YAML file at file onto c. Unknown keys are an error.
func (c *Config) LoadFile(file string) error {
	filename, _ := filepath.Abs(file)

	if err := loadYamlFile(filename, c); err != nil {
		return errors.Wrapf(err, "failed to load config file %s", file)
	}

	return nil
}

// loadYamlFile unmarshals a YAML file into the received interface{} or returns an error.
func loadYamlFile(filename string, d interface{}) error {
	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(yamlFile, d)
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9090, "gRPC server listen port.")
	// Listener streams never complete; a write timeout would cut them off.
	f.DurationVar(&c.Server.HTTPServerWriteTimeout, "server.http-write-timeout", 0, "Write timeout for HTTP responses. 0 keeps /stream open indefinitely.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Library.RegisterFlagsAndApplyDefaults("library", f)
	c.Broadcaster.RegisterFlagsAndApplyDefaults("broadcaster", f)
	c.API.RegisterFlagsAndApplyDefaults("api", f)
}
