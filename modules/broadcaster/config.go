package broadcaster

import (
	"flag"
	"strings"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

// Pacing guidance (byte-rate):
// - 176400 B/s is the CD rate, an upper bound for 16-bit stereo FLAC.
// - Set it near the average bitrate of the library so the live position tracks real time.
// - 0 disables pacing; the loop then reads as fast as the source allows.
const (
	defaultChunkSize         = 16 * 1024 // 16 KiB
	defaultByteRate          = 176400
	defaultEmptyRetry        = 5 * time.Second
	defaultSinkBuffer        = 256
	defaultJoinTimeout       = time.Minute
	defaultHandoffBackoff    = 100 * time.Millisecond
	defaultHandoffBackoffMax = time.Second
	defaultHandoffRetries    = 5
	defaultWatchDebounce     = 500 * time.Millisecond
	defaultExtensions        = ".flac"
)

type Config struct {
	ChunkSize         int           `yaml:"chunk-size,omitempty"`          // bytes read from the track per publish
	ByteRate          int           `yaml:"byte-rate,omitempty"`           // broadcast pacing in bytes per second
	EmptyRetry        time.Duration `yaml:"empty-retry,omitempty"`         // catalog inspection interval while nothing is playable
	SinkBuffer        int           `yaml:"sink-buffer,omitempty"`         // chunks queued per listener before it is dropped
	JoinTimeout       time.Duration `yaml:"join-timeout,omitempty"`        // how long a listener waits for a live track
	HandoffBackoff    time.Duration `yaml:"handoff-backoff,omitempty"`     // initial delay before retrying a failed catch-up read
	HandoffBackoffMax time.Duration `yaml:"handoff-backoff-max,omitempty"` // cap on the catch-up retry delay
	HandoffRetries    int           `yaml:"handoff-retries,omitempty"`     // catch-up retries before jumping to the live position
	Extensions        []string      `yaml:"extensions,omitempty"`
	Watch             bool          `yaml:"watch,omitempty"`
	WatchDebounce     time.Duration `yaml:"watch-debounce,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), defaultChunkSize, "Bytes read from the current track for each publish to listeners.")
	f.IntVar(&cfg.ByteRate, util.PrefixConfig(prefix, "byte-rate"), defaultByteRate,
		"Broadcast pacing in bytes per second. Should sit near the average bitrate of the library; 0 disables pacing.")
	f.DurationVar(&cfg.EmptyRetry, util.PrefixConfig(prefix, "empty-retry"), defaultEmptyRetry, "Interval between catalog inspections while the catalog is empty.")
	f.IntVar(&cfg.SinkBuffer, util.PrefixConfig(prefix, "sink-buffer"), defaultSinkBuffer,
		"Chunks queued per listener. A listener that falls further behind is disconnected.")
	f.DurationVar(&cfg.JoinTimeout, util.PrefixConfig(prefix, "join-timeout"), defaultJoinTimeout,
		"How long a new listener waits for a live track before it is disconnected. 0 waits forever.")
	f.DurationVar(&cfg.HandoffBackoff, util.PrefixConfig(prefix, "handoff-backoff"), defaultHandoffBackoff, "Initial delay before retrying a failed catch-up read.")
	f.DurationVar(&cfg.HandoffBackoffMax, util.PrefixConfig(prefix, "handoff-backoff-max"), defaultHandoffBackoffMax, "Maximum delay between catch-up retries.")
	f.IntVar(&cfg.HandoffRetries, util.PrefixConfig(prefix, "handoff-retries"), defaultHandoffRetries,
		"Catch-up retries before the listener skips the unreadable backlog and joins the live position.")
	cfg.Extensions = strings.Split(defaultExtensions, ",")
	f.Func(util.PrefixConfig(prefix, "extensions"), "Comma separated list of audio file extensions to broadcast (default "+defaultExtensions+").", func(s string) error {
		cfg.Extensions = strings.Split(s, ",")
		return nil
	})
	f.BoolVar(&cfg.Watch, util.PrefixConfig(prefix, "watch"), true, "Rescan the catalog when the track directory changes.")
	f.DurationVar(&cfg.WatchDebounce, util.PrefixConfig(prefix, "watch-debounce"), defaultWatchDebounce, "Quiet period after a directory change before rescanning.")
}

func (cfg *Config) applyDefaults() {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.EmptyRetry <= 0 {
		cfg.EmptyRetry = defaultEmptyRetry
	}
	if cfg.SinkBuffer <= 0 {
		cfg.SinkBuffer = defaultSinkBuffer
	}
	if cfg.HandoffBackoff <= 0 {
		cfg.HandoffBackoff = defaultHandoffBackoff
	}
	if cfg.HandoffBackoffMax < cfg.HandoffBackoff {
		cfg.HandoffBackoffMax = cfg.HandoffBackoff
	}
	if cfg.HandoffRetries <= 0 {
		cfg.HandoffRetries = defaultHandoffRetries
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = strings.Split(defaultExtensions, ",")
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = defaultWatchDebounce
	}
}
