// Package qconfig loads the compile-time knobs spec.md §6 lists
// (MaxActive, MaxPubSig, StagingSize, MaxRetry, pool size-classes, relay
// buffer sizes) from a YAML file, the way the teacher's cmd/warren apply
// command loads resource YAML with gopkg.in/yaml.v3.
package qconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PoolConfig describes one size-class pool: BlockSize/Count/Margin map
// directly onto qevent.Manager.Register's three arguments.
type PoolConfig struct {
	Name      string `yaml:"name"`
	BlockSize int    `yaml:"blockSize"`
	Count     int    `yaml:"count"`
	Margin    int    `yaml:"margin"`
}

// RelayConfig covers the ISR relay's ring sizes and the block size used
// when reconstructing events from descriptors.
type RelayConfig struct {
	MainBufferSize     int `yaml:"mainBufferSize"`
	OverflowBufferSize int `yaml:"overflowBufferSize"`
	BlockSize          int `yaml:"blockSize"`
}

// Config is the full set of framework knobs from spec.md §6, unmarshaled
// from a single YAML document.
type Config struct {
	MaxActive   int          `yaml:"maxActive"`
	MaxPubSig   int          `yaml:"maxPubSig"`
	StagingSize int          `yaml:"stagingSize"`
	MaxRetry    int          `yaml:"maxRetry"`
	Pools       []PoolConfig `yaml:"pools"`
	Relay       RelayConfig  `yaml:"relay"`
	Strategy    string       `yaml:"strategy"` // "default" or "high-perf"
}

// Default returns the knob set cmd/qfctl falls back to when no config
// file is given: small pools, a 32-slot staging ring per level, and the
// default strategy, matching spec.md §6's stated defaults.
func Default() Config {
	return Config{
		MaxActive:   32,
		MaxPubSig:   256,
		StagingSize: 32,
		MaxRetry:    3,
		Pools: []PoolConfig{
			{Name: "small", BlockSize: 16, Count: 64, Margin: 2},
			{Name: "medium", BlockSize: 64, Count: 32, Margin: 1},
			{Name: "large", BlockSize: 256, Count: 8, Margin: 0},
		},
		Relay: RelayConfig{
			MainBufferSize:     32,
			OverflowBufferSize: 16,
			BlockSize:          16,
		},
		Strategy: "default",
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("qconfig: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("qconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the knobs for internal consistency: pools must be
// registrable in ascending blockSize order (qevent.Manager.Register's own
// contract), every pool's blockSize and count must be positive, and its
// margin must be zero or positive.
func (c Config) Validate() error {
	if c.MaxActive <= 0 {
		return fmt.Errorf("qconfig: maxActive must be positive")
	}
	if c.StagingSize <= 0 {
		return fmt.Errorf("qconfig: stagingSize must be positive")
	}
	last := -1
	for _, p := range c.Pools {
		if p.BlockSize <= 0 || p.Count <= 0 || p.Margin < 0 {
			return fmt.Errorf("qconfig: pool %q has an invalid size/count/margin", p.Name)
		}
		if p.BlockSize < last {
			return fmt.Errorf("qconfig: pool %q out of ascending blockSize order", p.Name)
		}
		last = p.BlockSize
	}
	switch c.Strategy {
	case "", "default", "high-perf":
	default:
		return fmt.Errorf("qconfig: unknown strategy %q", c.Strategy)
	}
	return nil
}
