package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models taskflow.yml.
type Config struct {
	Uploads struct {
		MaxSizeBytes        int64    `yaml:"max_size_bytes"`
		AllowedExtensions   []string `yaml:"allowed_extensions"`
		AllowedContentTypes []string `yaml:"allowed_content_types"`
		Dir                 string   `yaml:"dir"`
	} `yaml:"uploads"`
	Pagination struct {
		DefaultSize int `yaml:"default_size"`
		MaxSize     int `yaml:"max_size"`
	} `yaml:"pagination"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        bool     `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskflow.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Uploads.MaxSizeBytes = 5 * 1024 * 1024
	cfg.Uploads.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf", ".txt", ".zip"}
	cfg.Uploads.AllowedContentTypes = []string{
		"image/jpeg", "image/png", "application/pdf", "text/plain",
		"application/zip", "application/x-zip-compressed",
	}
	cfg.Uploads.Dir = "uploads"
	cfg.Pagination.DefaultSize = 20
	cfg.Pagination.MaxSize = 100
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Uploads.MaxSizeBytes <= 0 {
		return fmt.Errorf("config.uploads.max_size_bytes must be positive")
	}
	for _, ext := range c.Uploads.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config.uploads.allowed_extensions entry %q must start with a dot", ext)
		}
	}
	if c.Pagination.DefaultSize <= 0 {
		return fmt.Errorf("config.pagination.default_size must be positive")
	}
	if c.Pagination.MaxSize < c.Pagination.DefaultSize {
		return fmt.Errorf("config.pagination.max_size must be at least default_size")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Load reads config from the workspace, falling back to defaults when no
// file exists. Defaults fill any zero-valued section.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Uploads.MaxSizeBytes == 0 {
		cfg.Uploads.MaxSizeBytes = def.Uploads.MaxSizeBytes
	}
	if len(cfg.Uploads.AllowedExtensions) == 0 {
		cfg.Uploads.AllowedExtensions = def.Uploads.AllowedExtensions
	}
	if len(cfg.Uploads.AllowedContentTypes) == 0 {
		cfg.Uploads.AllowedContentTypes = def.Uploads.AllowedContentTypes
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = def.Uploads.Dir
	}
	if cfg.Pagination.DefaultSize == 0 {
		cfg.Pagination.DefaultSize = def.Pagination.DefaultSize
	}
	if cfg.Pagination.MaxSize == 0 {
		cfg.Pagination.MaxSize = def.Pagination.MaxSize
	}
}
