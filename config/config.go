// Package config defines the reactor's tunable parameters and how they are
// parsed from command-line flags.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds every tunable the reactor core reads at startup. Values are
// immutable once Run begins.
type Config struct {
	// ListenAddr is the TCP address the listener binds to.
	ListenAddr string

	// ListenBacklog is a listen(2) backlog size exposed as a flag. Nothing
	// reads it: cmd/tskv-server opens its listener with net.Listen, which
	// takes no backlog argument.
	ListenBacklog int

	// RXBufferSize is the fixed capacity of each channel's receive buffer.
	RXBufferSize int

	// TXBufferSize is the fixed capacity of each channel's send buffer.
	TXBufferSize int

	// PoolChunkSize is the number of channel slots allocated per pool chunk.
	PoolChunkSize int

	// MetricsFoldInterval is the minimum interval between a shard's
	// cooperative metrics folds.
	MetricsFoldInterval time.Duration

	// MetricsAddr is the address the Prometheus exposition endpoint binds
	// to. Empty disables it.
	MetricsAddr string
}

// Default returns a Config populated with the reactor's default tunables.
func Default() *Config {
	return &Config{
		ListenAddr:          "127.0.0.1:7070",
		ListenBacklog:       1024,
		RXBufferSize:        4096,
		TXBufferSize:        4096,
		PoolChunkSize:       256,
		MetricsFoldInterval: 100 * time.Millisecond,
		MetricsAddr:         ":9090",
	}
}

// FromPFlags registers every tunable onto fs, with defaults taken from
// Default(), and returns a Config whose fields are populated once fs.Parse
// has been called by the caller.
func FromPFlags(fs *pflag.FlagSet) *Config {
	d := Default()
	c := &Config{}

	fs.StringVar(&c.ListenAddr, "listen-addr", d.ListenAddr, "TCP address to accept connections on")
	fs.IntVar(&c.ListenBacklog, "listen-backlog", d.ListenBacklog, "listen(2) backlog size")
	fs.IntVar(&c.RXBufferSize, "rx-buffer-size", d.RXBufferSize, "per-channel receive buffer capacity in bytes")
	fs.IntVar(&c.TXBufferSize, "tx-buffer-size", d.TXBufferSize, "per-channel send buffer capacity in bytes")
	fs.IntVar(&c.PoolChunkSize, "pool-chunk-size", d.PoolChunkSize, "channel slots per pool chunk")
	fs.DurationVar(&c.MetricsFoldInterval, "metrics-fold-interval", d.MetricsFoldInterval, "minimum interval between per-shard metrics folds")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", d.MetricsAddr, "address for the Prometheus exposition endpoint, empty to disable")

	return c
}
