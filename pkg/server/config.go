package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/relaychat/pkg/datastore"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	Addr               string        `yaml:"addr"`                 // TCP bind address
	DBPath             string        `yaml:"db"`                   // SQLite database path
	MetricsAddr        string        `yaml:"metrics_addr"`         // HTTP bind address for /metrics (empty = disabled)
	WriteTimeout       time.Duration `yaml:"write_timeout"`        // per-frame write deadline (0 = none)
	MaxFrameSize       int           `yaml:"max_frame_size"`       // bytes per inbound frame
	BcryptCost         int           `yaml:"bcrypt_cost"`          // 0 = bcrypt.DefaultCost
	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"` // 0 = no periodic metrics log

	// CLI-only actions (run and exit)
	ExportUsers bool `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:               "127.0.0.1:8888",
		DBPath:             "users.db",
		MetricsAddr:        "127.0.0.1:8889",
		WriteTimeout:       10 * time.Second,
		MaxFrameSize:       protocol.MaxFrameSize,
		MetricsLogInterval: 60 * time.Second,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys absent from
// the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks values that would make the server unusable.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("config: max_frame_size must be positive, got %d", c.MaxFrameSize)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("config: write_timeout must not be negative")
	}
	return nil
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all registered users as YAML. Password hashes are
// never exported.
func ExportUsersYAML(st datastore.UserStore) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}

	export := UsersExport{Users: []UserYAML{}}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:        u.ID,
			Username:  u.Username,
			CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
