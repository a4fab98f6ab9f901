package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/sim"
)

const (
	DefaultParticles   = 1000
	DefaultProcs       = 1
	DefaultSteps       = 1000
	DefaultSaveEvery   = 10
	DefaultSeed        = 1
	DefaultLogLevel    = "info"
	DefaultDataDir     = "data"
	DefaultDialTimeout = 30 * time.Second
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Particles   int            `yaml:"particles"`
	Procs       int            `yaml:"procs"`
	Steps       int            `yaml:"steps"`
	SaveEvery   int            `yaml:"save_every"`
	Seed        int64          `yaml:"seed"`
	Diagnostics bool           `yaml:"diagnostics"`
	Size        float64        `yaml:"size"`
	LogLevel    string         `yaml:"log_level"`
	Physics     physics.Params `yaml:"physics"`
	Output      OutputConfig   `yaml:"output"`
	Cluster     ClusterConfig  `yaml:"cluster"`
}

type OutputConfig struct {
	DataDir  string `yaml:"data_dir"`
	Snapshot string `yaml:"snapshot"`
	Summary  string `yaml:"summary"`
	Compress bool   `yaml:"compress"`
}

// ClusterConfig lists the websocket address of every rank, indexed by rank.
type ClusterConfig struct {
	Peers       []string      `yaml:"peers"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Particles:   DefaultParticles,
		Procs:       DefaultProcs,
		Steps:       DefaultSteps,
		SaveEvery:   DefaultSaveEvery,
		Seed:        DefaultSeed,
		Diagnostics: true,
		LogLevel:    DefaultLogLevel,
		Physics:     physics.DefaultParams(),
		Output: OutputConfig{
			DataDir: DefaultDataDir,
		},
		Cluster: ClusterConfig{
			DialTimeout: DefaultDialTimeout,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DomainSize is the configured size, or the side that holds the particles at
// the configured density.
func (c *Config) DomainSize() float64 {
	return c.Sim().DomainSize()
}

// Rows is the number of grid rows per axis.
func (c *Config) Rows() int {
	return max(int(math.Ceil(c.DomainSize()/c.Physics.Cutoff)), 1)
}

func (c *Config) Validate() error {
	switch {
	case c.Particles < 1:
		return fmt.Errorf("%w: particles must be positive, got %d", ErrInvalid, c.Particles)
	case c.Procs < 1:
		return fmt.Errorf("%w: procs must be positive, got %d", ErrInvalid, c.Procs)
	case c.Steps < 0:
		return fmt.Errorf("%w: steps must not be negative, got %d", ErrInvalid, c.Steps)
	case c.SaveEvery < 0:
		return fmt.Errorf("%w: save_every must not be negative, got %d", ErrInvalid, c.SaveEvery)
	case c.Size < 0:
		return fmt.Errorf("%w: size must not be negative, got %g", ErrInvalid, c.Size)
	}
	if err := c.Physics.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(c.Cluster.Peers) > 0 && len(c.Cluster.Peers) != c.Procs {
		return fmt.Errorf("%w: %d peers listed for %d procs", ErrInvalid, len(c.Cluster.Peers), c.Procs)
	}
	return nil
}

// Sim converts the file configuration to a run configuration. Snapshots are
// only taken when a snapshot path is set.
func (c *Config) Sim() sim.Config {
	save := c.SaveEvery
	if c.Output.Snapshot == "" {
		save = 0
	}
	return sim.Config{
		Particles:   c.Particles,
		Steps:       c.Steps,
		SaveEvery:   save,
		Seed:        c.Seed,
		Diagnostics: c.Diagnostics,
		Size:        c.Size,
		Physics:     c.Physics,
	}
}
