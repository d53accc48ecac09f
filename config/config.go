// Package config holds the server settings, read from an optional YAML
// file on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/server"
	"github.com/Dyastin-0/gochat/transfer"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr = ":9000"
	DefaultDir  = "gochat"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	TCPAddr      string        `yaml:"tcp_addr"`
	UDPAddr      string        `yaml:"udp_addr"`
	Dir          string        `yaml:"dir"`
	MaxSessions  int64         `yaml:"max_sessions"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	ChunkSize    int           `yaml:"chunk_size"`
	UDPChunkSize int           `yaml:"udp_chunk_size"`
	MaxFrameSize uint32        `yaml:"max_frame_size"`
	MaxFileSize  int64         `yaml:"max_file_size"`
	UDPMode      string        `yaml:"udp_mode"`
	Progress     bool          `yaml:"progress"`
	Log          Log           `yaml:"log"`
}

type Log struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		TCPAddr:      DefaultAddr,
		UDPAddr:      DefaultAddr,
		Dir:          filepath.Join(homeDir(), DefaultDir),
		MaxSessions:  server.DefaultMaxSessions,
		IdleTimeout:  transfer.DefaultIdleTimeout,
		DrainTimeout: server.DefaultDrainTimeout,
		SessionTTL:   server.DefaultSessionTTL,
		ChunkSize:    transfer.DefaultChunkSize,
		UDPChunkSize: transfer.DefaultDatagramChunkSize,
		MaxFrameSize: proto.DefaultMaxFrameSize,
		UDPMode:      string(server.ModeInterleaved),
		Log: Log{
			Level: zerolog.InfoLevel.String(),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TCPAddr == "" && c.UDPAddr == "" {
		return fmt.Errorf("%w: tcp_addr and udp_addr are both empty", ErrInvalid)
	}
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrInvalid)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalid, c.MaxSessions)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle_timeout must be positive, got %s", ErrInvalid, c.IdleTimeout)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain_timeout must not be negative", ErrInvalid)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session_ttl must be positive, got %s", ErrInvalid, c.SessionTTL)
	}
	if c.ChunkSize <= 0 || c.ChunkSize > transfer.MaxChunkSize {
		return fmt.Errorf("%w: chunk_size must be in (0, %d], got %d", ErrInvalid, transfer.MaxChunkSize, c.ChunkSize)
	}
	if c.UDPChunkSize <= 0 || c.UDPChunkSize > transfer.MaxDatagramChunkSize {
		return fmt.Errorf("%w: udp_chunk_size must be in (0, %d], got %d", ErrInvalid, transfer.MaxDatagramChunkSize, c.UDPChunkSize)
	}
	if c.MaxFrameSize < uint32(c.ChunkSize) {
		return fmt.Errorf("%w: max_frame_size %d is smaller than chunk_size %d", ErrInvalid, c.MaxFrameSize, c.ChunkSize)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("%w: max_file_size must not be negative", ErrInvalid)
	}
	if _, err := server.ParseMode(c.UDPMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}

	return nil
}

func (c *Config) TCPDir() string {
	return filepath.Join(c.Dir, "tcp_received")
}

func (c *Config) UDPDir() string {
	return filepath.Join(c.Dir, "udp_received")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "./"
	}

	return home
}
