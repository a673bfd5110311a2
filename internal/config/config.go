package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Version  string         `yaml:"version" json:"version"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Utils    UtilsConfig    `yaml:"utils" json:"utils"`
	Leveling LevelingConfig `yaml:"leveling" json:"leveling"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// StoreConfig selects the document store backend. "memory" keeps everything
// in-process, "file" persists the memory store as JSON under DataDir,
// "sqlite" and "postgres" use the SQL backends.
type StoreConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

type UtilsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type LevelingConfig struct {
	MaxLevel int `yaml:"max_level" json:"max_level"`
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/scheda.db"
	}
	if c.Utils.CacheTTL <= 0 {
		c.Utils.CacheTTL = 5 * time.Minute
	}
	if c.Leveling.MaxLevel <= 0 {
		c.Leveling.MaxLevel = 10
	}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("postgres backend requires store.postgres_dsn")
	}
	return nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine; run on defaults.
			c := &Config{}
			c.ApplyDefaults()
			return c, nil
		}
		return nil, err
	}
	var r Config
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// FromEnv applies environment overrides on top of the loaded config.
// Falls back to the existing values if variables are not set.
func FromEnv(c *Config) *Config {
	if c == nil {
		c = &Config{}
		c.ApplyDefaults()
	}
	if v := os.Getenv("SCHEDA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SCHEDA_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("SCHEDA_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("SCHEDA_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("SCHEDA_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("SCHEDA_UTILS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Utils.CacheTTL = d
		}
	}
	return c
}
