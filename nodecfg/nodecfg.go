// Package nodecfg holds the masternode process's configuration: data
// directory layout, network parameters, and the tuning constants for the
// consensus subsystems it wires together. Configs load from a YAML file,
// since a masternode operator needs a persisted config rather than flags
// alone.
package nodecfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/timecoin/timecoind/vdf"
)

// Config holds all configuration for a timecoind process.
type Config struct {
	DataDir string `yaml:"datadir"`
	Name    string `yaml:"name"`
	Network string `yaml:"network"`

	P2PPort int `yaml:"p2p_port"`
	RPCPort int `yaml:"rpc_port"`

	MaxPeers int `yaml:"max_peers"`

	LogLevel string `yaml:"log_level"`
	Metrics  bool   `yaml:"metrics"`

	// VDFIterations and VDFCheckpointInterval configure vdf.Config;
	// MinBlockTimeSeconds feeds vdf.Config.MinBlockTime.
	VDFIterations          uint64 `yaml:"vdf_iterations"`
	VDFCheckpointInterval  uint64 `yaml:"vdf_checkpoint_interval"`
	MinBlockTimeSeconds    int    `yaml:"min_block_time_seconds"`

	// LivenessFloor is the minimum verified-heartbeat count a masternode
	// must hold to be eligible to propose.
	LivenessFloor uint64 `yaml:"liveness_floor"`
}

// Sentinel validation errors.
var (
	ErrEmptyDataDir  = errors.New("nodecfg: datadir must not be empty")
	ErrInvalidPort   = errors.New("nodecfg: port out of range")
	ErrInvalidNetwork = errors.New("nodecfg: unknown network")
	ErrInvalidLogLevel = errors.New("nodecfg: unknown log level")
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timecoind"
	}
	return filepath.Join(home, ".timecoind")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:               defaultDataDir(),
		Name:                  "timecoind",
		Network:               "mainnet",
		P2PPort:               18444,
		RPCPort:               18332,
		MaxPeers:              50,
		LogLevel:              "info",
		Metrics:               false,
		VDFIterations:         1_000_000,
		VDFCheckpointInterval: 1_000,
		MinBlockTimeSeconds:   30,
		LivenessFloor:         1,
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrEmptyDataDir
	}
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return fmt.Errorf("%w: p2p_port=%d", ErrInvalidPort, c.P2PPort)
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("%w: rpc_port=%d", ErrInvalidPort, c.RPCPort)
	}
	if c.MaxPeers < 0 {
		return fmt.Errorf("nodecfg: invalid max_peers: %d", c.MaxPeers)
	}
	switch c.Network {
	case "mainnet", "testnet", "regtest":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, c.Network)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// VDFConfig derives a vdf.Config from the loaded configuration.
func (c *Config) VDFConfig() vdf.Config {
	return vdf.Config{
		Iterations:         c.VDFIterations,
		CheckpointInterval: c.VDFCheckpointInterval,
		MinBlockTime:       time.Duration(c.MinBlockTimeSeconds) * time.Second,
	}
}

var dataDirSubdirs = []string{"chaindata"}

// InitDataDir creates the data directory and its standard subdirectories
// if they do not already exist.
func (c *Config) InitDataDir() error {
	if c.DataDir == "" {
		return ErrEmptyDataDir
	}
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("nodecfg: create datadir: %w", err)
	}
	for _, sub := range dataDirSubdirs {
		dir := filepath.Join(c.DataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("nodecfg: create %s: %w", sub, err)
		}
	}
	return nil
}

// LoadFile reads and parses a YAML config file at path, starting from
// DefaultConfig() so unset fields keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nodecfg: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("nodecfg: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveFile writes cfg as YAML to path.
func SaveFile(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("nodecfg: marshal config: %w", err)
	}
	return os.WriteFile(path, raw, 0600)
}

// LogPath returns the rotated log file path under the data directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "timecoind.log")
}

// ChainDataPath returns the LevelDB directory under the data directory.
func (c *Config) ChainDataPath() string {
	return filepath.Join(c.DataDir, "chaindata")
}

// ConfigPath returns the default config file path under the data
// directory.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, "config.yaml")
}
