package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Service struct {
		BaseURL string `yaml:"base_url"`
		// Timeout bounds each request; zero waits indefinitely.
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"service"`
	Workflow struct {
		SampleInterval  time.Duration `yaml:"sample_interval"`
		MinBeforePhotos int           `yaml:"min_before_photos"`
		MinAfterPhotos  int           `yaml:"min_after_photos"`
	} `yaml:"workflow"`
	Progress struct {
		DefaultPercent int `yaml:"default_percent"`
	} `yaml:"progress"`
	DevServer struct {
		Addr   string `yaml:"addr"`
		Secret string `yaml:"secret"`
		Seed   string `yaml:"seed"`
	} `yaml:"devserver"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("config.service.base_url is required")
	}
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.service.base_url must be an absolute http(s) url")
	}
	if c.Service.Timeout < 0 {
		return fmt.Errorf("config.service.timeout must not be negative")
	}
	if c.Workflow.SampleInterval <= 0 {
		return fmt.Errorf("config.workflow.sample_interval must be positive")
	}
	if c.Workflow.MinBeforePhotos < 1 {
		return fmt.Errorf("config.workflow.min_before_photos must be at least 1")
	}
	if c.Workflow.MinAfterPhotos < 1 {
		return fmt.Errorf("config.workflow.min_after_photos must be at least 1")
	}
	if p := c.Progress.DefaultPercent; p < 0 || p > 100 {
		return fmt.Errorf("config.progress.default_percent must be within 0..100")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("config: default template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
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

const defaultTemplate = `service:
  base_url: http://127.0.0.1:8787
  # 0 disables the per-request timeout
  timeout: 0s

workflow:
  sample_interval: 1s
  min_before_photos: 1
  min_after_photos: 1

progress:
  default_percent: 25

devserver:
  addr: 127.0.0.1:8787
  secret: fieldline-dev-secret
  seed: ""
`
