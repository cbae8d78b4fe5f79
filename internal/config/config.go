// Package config loads the YAML configuration shared by the server binary and
// embedding clients.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/renameio"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
	"github.com/mundrapranay/oblivious-tree/pkg/client"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level configuration file.
type Config struct {
	Tree   TreeConfig   `yaml:"tree" json:"tree"`
	Crypto CryptoConfig `yaml:"crypto" json:"crypto"`
	Client ClientConfig `yaml:"client" json:"client"`
	Server ServerConfig `yaml:"server" json:"server"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// TreeConfig sizes the tree and stash.
type TreeConfig struct {
	// Depth L; the tree has 2^(L+1)-1 nodes
	Depth         int `yaml:"depth" json:"depth"`
	StashCapacity int `yaml:"stash_capacity" json:"stash_capacity"`
}

// CryptoConfig holds the threshold key parameters.
type CryptoConfig struct {
	// BitLength may be 0 for the group default
	BitLength int `yaml:"bit_length" json:"bit_length"`
	Threshold int `yaml:"threshold" json:"threshold"`
	Shares    int `yaml:"shares" json:"shares"`
}

// ClientConfig controls client behaviour.
type ClientConfig struct {
	ServerAddress string  `yaml:"server_address" json:"server_address"`
	AutoSync      bool    `yaml:"auto_sync" json:"auto_sync"`
	CoverLambda   float64 `yaml:"cover_lambda" json:"cover_lambda"`
	MaxCover      int     `yaml:"max_cover" json:"max_cover"`
	// PositionMap is a bbolt file; empty keeps the map in memory
	PositionMap string `yaml:"position_map" json:"position_map"`
}

// ServerConfig controls the storage server.
type ServerConfig struct {
	ListenAddr string     `yaml:"listen_addr" json:"listen_addr"`
	Raft       RaftConfig `yaml:"raft" json:"raft"`
}

// RaftConfig enables replication of the stored tree.
type RaftConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	NodeID           string        `yaml:"node_id" json:"node_id"`
	ListenAddr       string        `yaml:"listen_addr" json:"listen_addr"`
	DataDir          string        `yaml:"data_dir" json:"data_dir"`
	Bootstrap        bool          `yaml:"bootstrap" json:"bootstrap"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" json:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `yaml:"election_timeout" json:"election_timeout"`
	CommitTimeout    time.Duration `yaml:"commit_timeout" json:"commit_timeout"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Default returns a configuration that runs a single local server.
func Default() *Config {
	cc := client.DefaultConfig()
	return &Config{
		Tree: TreeConfig{
			Depth:         cc.Depth,
			StashCapacity: cc.StashCapacity,
		},
		Crypto: CryptoConfig{
			Threshold: cc.Threshold,
			Shares:    cc.Shares,
		},
		Client: ClientConfig{
			ServerAddress: "127.0.0.1:50051",
			AutoSync:      true,
			MaxCover:      cc.MaxCover,
		},
		Server: ServerConfig{
			ListenAddr: ":50051",
			Raft: RaftConfig{
				NodeID:           "node1",
				ListenAddr:       "127.0.0.1:8080",
				DataDir:          "./data",
				Bootstrap:        true,
				HeartbeatTimeout: 1000 * time.Millisecond,
				ElectionTimeout:  1000 * time.Millisecond,
				CommitTimeout:    50 * time.Millisecond,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Tree.Depth < 0 || c.Tree.Depth > oram.MaxDepth {
		return fmt.Errorf("%w: tree.depth %d must be in [0,%d]", ErrInvalid, c.Tree.Depth, oram.MaxDepth)
	}
	if c.Tree.StashCapacity < 0 {
		return fmt.Errorf("%w: tree.stash_capacity must not be negative", ErrInvalid)
	}
	if c.Crypto.BitLength != 0 && c.Crypto.BitLength != crypto.GroupBits {
		return fmt.Errorf("%w: crypto.bit_length must be 0 or %d", ErrInvalid, crypto.GroupBits)
	}
	if c.Crypto.Threshold < 1 || c.Crypto.Shares < c.Crypto.Threshold {
		return fmt.Errorf("%w: crypto.threshold %d with %d shares", ErrInvalid, c.Crypto.Threshold, c.Crypto.Shares)
	}
	if c.Client.CoverLambda < 0 || c.Client.MaxCover < 0 {
		return fmt.Errorf("%w: client cover parameters must not be negative", ErrInvalid)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("%w: server.listen_addr is required", ErrInvalid)
	}
	if r := c.Server.Raft; r.Enabled {
		if r.NodeID == "" || r.ListenAddr == "" || r.DataDir == "" {
			return fmt.Errorf("%w: server.raft needs node_id, listen_addr and data_dir", ErrInvalid)
		}
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// ClientConfig converts the file's tree, crypto and client sections into a
// client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Depth:         c.Tree.Depth,
		StashCapacity: c.Tree.StashCapacity,
		BitLength:     c.Crypto.BitLength,
		Threshold:     c.Crypto.Threshold,
		Shares:        c.Crypto.Shares,
		CoverLambda:   c.Client.CoverLambda,
		MaxCover:      c.Client.MaxCover,
		AutoSync:      c.Client.AutoSync,
	}
}

// Logger builds the root logger described by the log section.
func (c *Config) Logger(name string, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.Log.Level),
		JSONFormat: c.Log.JSON,
		Output:     out,
	})
}

// LoadConfig reads a YAML file. Fields missing from the file keep their
// Default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig atomically replaces filePath with the YAML form of config.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := renameio.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
