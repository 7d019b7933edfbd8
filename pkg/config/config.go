// Package config loads netpanel settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/security"
	"github.com/cuemby/netpanel/pkg/storage"
)

// Inventory drivers
const (
	InventoryStatic  = "static"
	InventoryLibvirt = "libvirt"
)

// Config is the complete server configuration
type Config struct {
	Listen    string          `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Inventory InventoryConfig `yaml:"inventory"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// AuthConfig holds token and login settings
type AuthConfig struct {
	SecretKey          string  `yaml:"secret_key"`
	Algorithm          string  `yaml:"algorithm"`
	TokenExpireMinutes int     `yaml:"access_token_expire_minutes"`
	AccessGroupGID     string  `yaml:"access_group_gid"`
	UsersFile          string  `yaml:"users_file"`
	LoginRate          float64 `yaml:"login_rate"`
	LoginBurst         int     `yaml:"login_burst"`
}

// InventoryConfig selects where machines come from
type InventoryConfig struct {
	Driver        string        `yaml:"driver"`
	File          string        `yaml:"file"`
	LibvirtSocket string        `yaml:"libvirt_socket"`
	DomainSuffix  string        `yaml:"domain_suffix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig configures background metric collection
type MetricsConfig struct {
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// Default returns the built-in configuration. The secret key, algorithm and
// token lifetime have no defaults, so it does not validate on its own.
func Default() Config {
	return Config{
		Listen:  ":8000",
		DataDir: "./data",
		Storage: StorageConfig{Driver: storage.DriverFile},
		Auth: AuthConfig{
			LoginRate:  1,
			LoginBurst: 5,
		},
		Inventory: InventoryConfig{
			Driver:        InventoryStatic,
			LibvirtSocket: "/var/run/libvirt/libvirt-sock",
			Timeout:       5 * time.Second,
		},
		CORS:    CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Log:     LogConfig{Level: string(log.InfoLevel)},
		Metrics: MetricsConfig{CollectInterval: 15 * time.Second},
	}
}

// Load merges defaults, the YAML file at path (if any) and environment
// overrides, then validates the result
func Load(path string) (Config, error) {
	cfg, err := Merge(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Merge is Load without validation. Offline admin commands use it since
// they only need the data directory and storage driver.
func Merge(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("load config from environment: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv applies the environment overrides. The auth variable names are
// shared with the web UI deployment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("SECRET_KEY"); ok {
		cfg.Auth.SecretKey = v
	}
	if v, ok := lookup("ALGORITHM"); ok && v != "" {
		cfg.Auth.Algorithm = v
	}
	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
		}
		cfg.Auth.TokenExpireMinutes = n
	}
	if v, ok := lookup("ACCESS_GROUP_GID"); ok {
		cfg.Auth.AccessGroupGID = strings.TrimSpace(v)
	}
	if v, ok := lookup("NETPANEL_LISTEN"); ok && v != "" {
		cfg.Listen = v
	}
	if v, ok := lookup("NETPANEL_DATA_DIR"); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := lookup("NETPANEL_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	switch c.Storage.Driver {
	case storage.DriverFile, storage.DriverBolt:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth secret key is not set (SECRET_KEY)")
	}
	if !security.SupportedAlgorithm(c.Auth.Algorithm) {
		return fmt.Errorf("unsupported token algorithm %q (ALGORITHM)", c.Auth.Algorithm)
	}
	if c.Auth.TokenExpireMinutes <= 0 {
		return fmt.Errorf("access_token_expire_minutes must be > 0 (ACCESS_TOKEN_EXPIRE_MINUTES)")
	}
	if c.Auth.AccessGroupGID != "" {
		if _, err := strconv.Atoi(c.Auth.AccessGroupGID); err != nil {
			return fmt.Errorf("access_group_gid must be numeric, got %q", c.Auth.AccessGroupGID)
		}
	}
	if c.Auth.LoginRate <= 0 {
		return fmt.Errorf("login_rate must be > 0")
	}
	if c.Auth.LoginBurst < 1 {
		return fmt.Errorf("login_burst must be >= 1")
	}

	switch c.Inventory.Driver {
	case InventoryStatic:
	case InventoryLibvirt:
		if c.Inventory.LibvirtSocket == "" {
			return fmt.Errorf("libvirt inventory needs libvirt_socket")
		}
	default:
		return fmt.Errorf("unknown inventory driver %q", c.Inventory.Driver)
	}

	if log.ParseLevel(c.Log.Level) != log.Level(c.Log.Level) {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Metrics.CollectInterval < 0 {
		return fmt.Errorf("metrics collect_interval must not be negative")
	}
	return nil
}

// TokenTTL is the lifetime of issued access tokens
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenExpireMinutes) * time.Minute
}

// UsersPath is the users file location, inside the data directory unless
// configured explicitly
func (c Config) UsersPath() string {
	if c.Auth.UsersFile != "" {
		return c.Auth.UsersFile
	}
	return filepath.Join(c.DataDir, "users.json")
}
