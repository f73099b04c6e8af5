package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const envVarPrefix = "PMMSIM"

// Config holds the defaults for the simulator. Every field can be set via a
// PMMSIM_ prefixed environment variable and overridden by command line
// flags.
type Config struct {
	// MaxArenaSize caps the size of the arena that backs simulated
	// physical memory. Memory maps whose highest usable address exceeds
	// it are rejected.
	MaxArenaSize uint64 `envconfig:"MAX_ARENA_SIZE" default:"17179869184"`

	// Touch fills every allocated page with a per-step pattern and
	// verifies that live allocations were not overwritten when the
	// scenario completes.
	Touch bool `envconfig:"TOUCH" default:"true"`
}

// LoadConfig populates a Config from the environment.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}
