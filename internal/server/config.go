package server

import "time"

// Config collects everything the CLI surface in SPEC_FULL.md §6 exposes:
// bind address, the two CONFIG GET-visible fields, an optional starting
// replica-of target, and the operational knobs (metrics, gops, rate
// limiting) carried over from the ambient stack.
type Config struct {
	Host string
	Port int

	Dir        string
	DBFilename string

	// ReplicaOfHost/Port: non-empty Host means "start as a follower of
	// this leader" rather than booting as a master.
	ReplicaOfHost string
	ReplicaOfPort int

	MaxConnections int
	ReadTimeout    time.Duration

	// AcceptRatePerSec/AcceptBurst throttle the accept loop with
	// golang.org/x/time/rate, the same guard ClusterCockpit-cc-backend
	// applies to its own inbound request path.
	AcceptRatePerSec float64
	AcceptBurst      int

	MetricsAddr string // empty disables the metrics HTTP server
	EnableGops  bool
}

func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             6379,
		Dir:              ".",
		DBFilename:       "dump.rdb",
		MaxConnections:   10000,
		ReadTimeout:      60 * time.Second,
		AcceptRatePerSec: 500,
		AcceptBurst:      100,
		MetricsAddr:      ":9121",
	}
}
