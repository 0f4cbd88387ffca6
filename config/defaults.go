package config

import (
	"time"

	"github.com/samuelarogbonlo/paraclete/types"
)

// DefaultConfig returns the baseline configuration every load starts from.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			RetryLimit:        types.DefaultRetryLimit,
			BranchTimeout:     300 * time.Second,
			BranchConcurrency: 4,
			BranchesPerSecond: 0,
			MaxTransitions:    64,
		},
		Checkpoint: CheckpointConfig{
			Type:    "memory",
			BaseDir: "./data/checkpoints",
			Path:    "./data/paraclete.db",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				DB:        0,
				PoolSize:  10,
				KeyPrefix: "paraclete:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "paraclete",
			SampleRate:   1.0,
		},
	}
}
