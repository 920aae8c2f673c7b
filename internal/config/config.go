// Package config holds the server's JSON configuration tree and an
// fsnotify-backed watcher for picking up edits without a restart.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full configuration tree for a server instance.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Logging     LoggingConfig     `json:"logging"`
	Replication ReplicationConfig `json:"replication"`
	Monitor     MonitorConfig     `json:"monitor"`
}

// ServerConfig covers the listening address, worker pool size, and
// per-session timeout.
type ServerConfig struct {
	ListenAddr      string `json:"listen_addr"`
	WorkerCount     int    `json:"worker_count"`
	SessionTimeoutS int    `json:"session_timeout_seconds"`
	MaxConnections  int    `json:"max_connections"`
}

// StorageConfig selects the KV backend and its on-disk location.
type StorageConfig struct {
	Backend string `json:"backend"` // "btree" | "bolt" | "pebble"
	Path    string `json:"path"`
}

// LoggingConfig mirrors internal/logging.Config in JSON form.
type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
	File  string `json:"file"`
}

// ReplicationConfig switches on the server side of the binary replication
// stream: with Enabled set, quiverd keeps an in-memory update log and
// serves 0xB1 stream requests from it. SourceAddr is not read by quiverd.
type ReplicationConfig struct {
	Enabled    bool   `json:"enabled"`
	SourceAddr string `json:"source_addr"`
}

// MonitorConfig enables the admin/status dashboard.
type MonitorConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// Default returns a configuration with sensible defaults for a
// single-node deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:1978",
			WorkerCount:     8,
			SessionTimeoutS: 30,
			MaxConnections:  1024,
		},
		Storage: StorageConfig{
			Backend: "bolt",
			Path:    "quiverdb.db",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Monitor: MonitorConfig{Enabled: false, ListenAddr: "127.0.0.1:1979"},
	}
}

// Load reads and parses a JSON config file, starting from Default() so
// an absent or partial file still yields a usable configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.WorkerCount < 1 {
		return fmt.Errorf("server.worker_count must be >= 1")
	}
	switch c.Storage.Backend {
	case "btree", "bolt", "pebble":
	default:
		return fmt.Errorf("storage.backend %q not recognized", c.Storage.Backend)
	}
	return nil
}
