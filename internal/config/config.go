package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Models      []ModelConfig             `json:"models"`
	Blob        BlobConfig                `json:"blob"`
	Auth        AuthConfig                `json:"auth"`
}

type BasicConfig struct {
	ServerAddress   string `json:"server_address"`
	RateLimit       int    `json:"rate_limit"`
	RateWindowHours int    `json:"rate_window_hours"`
	PublicAPIUserID int64  `json:"public_api_user_id"`
	EnableWebSearch bool   `json:"enable_web_search"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// ModelConfig describes one selectable entry of the model registry.
type ModelConfig struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
}

// AuthConfig tunes session tokens and the cookies that carry them.
type AuthConfig struct {
	TokenTTLHours  int    `json:"token_ttl_hours"`
	CookieName     string `json:"cookie_name"`
	CSRFCookieName string `json:"csrf_cookie_name"`
}

type BlobConfig struct {
	Backend  string `json:"backend"`
	LocalDir string `json:"local_dir"`
	BaseURL  string `json:"base_url"`
	Bucket   string `json:"bucket"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults(filepath.Dir(absPath))
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with the service defaults. Relative
// paths are resolved against baseDir.
func (c *Config) ApplyDefaults(baseDir string) {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.RateLimit <= 0 {
		c.BasicConfig.RateLimit = 100
	}
	if c.BasicConfig.RateWindowHours <= 0 {
		c.BasicConfig.RateWindowHours = 24
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: filepath.Join(baseDir, "lobe-chat.db")}
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = "local"
	}
	if c.Blob.LocalDir == "" {
		c.Blob.LocalDir = "data/uploads"
	}
	if !filepath.IsAbs(c.Blob.LocalDir) {
		c.Blob.LocalDir = filepath.Join(baseDir, c.Blob.LocalDir)
	}
	if c.Blob.BaseURL == "" {
		c.Blob.BaseURL = "/files"
	}
}
