package library

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"
)

const defaultDir = "uploads"

type Config struct {
	Dir string `yaml:"dir,omitempty"` // directory holding the tracks; created when missing
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), defaultDir, "The directory tracks are read from and uploads are saved to")
}
