package api

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultContentType   = "audio/flac"
	defaultIcyMetaint    = 16000
	defaultStationName   = "Lossless Radio"
	defaultMaxUploadSize = 1 << 30 // 1 GiB
)

type Config struct {
	ContentType   string `yaml:"content-type,omitempty"`    // Content-Type of the /stream response
	IcyMetaint    int    `yaml:"icy-metaint,omitempty"`     // audio bytes between ICY metadata blocks; 0 disables ICY metadata
	StationName   string `yaml:"station-name,omitempty"`    // icy-name header and playlist title
	UIDir         string `yaml:"ui-dir,omitempty"`          // static files served at /
	MaxUploadSize int64  `yaml:"max-upload-size,omitempty"` // request body limit for /api/upload
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ContentType, util.PrefixConfig(prefix, "content-type"), defaultContentType, "Content-Type sent with the audio stream.")
	f.IntVar(&cfg.IcyMetaint, util.PrefixConfig(prefix, "icy-metaint"), defaultIcyMetaint,
		"Audio bytes between ICY metadata blocks for listeners that request them. 0 disables ICY metadata.")
	f.StringVar(&cfg.StationName, util.PrefixConfig(prefix, "station-name"), defaultStationName, "Station name announced to listeners.")
	f.StringVar(&cfg.UIDir, util.PrefixConfig(prefix, "ui-dir"), "", "Directory of static web UI files to serve at /. Empty disables the UI.")
	f.Int64Var(&cfg.MaxUploadSize, util.PrefixConfig(prefix, "max-upload-size"), defaultMaxUploadSize, "Maximum size in bytes of a single upload request.")
}

func (cfg *Config) applyDefaults() {
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if cfg.StationName == "" {
		cfg.StationName = defaultStationName
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
}
