package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models fulfillsim.yml.
type Config struct {
	Shop struct {
		Domain      string `yaml:"domain"`
		AccessToken string `yaml:"access_token"`
		APIVersion  string `yaml:"api_version"`
		// Endpoint overrides the derived Admin API URL; used for local
		// development against a stub platform.
		Endpoint string `yaml:"endpoint"`
	} `yaml:"shop"`
	Webhook struct {
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
	Provision struct {
		OrdersFirst int `yaml:"orders_first"`
	} `yaml:"provision"`
}

const defaultAPIVersion = "2024-10"

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Shop.Domain == "" && c.Shop.Endpoint == "" {
		return fmt.Errorf("config.shop.domain is required")
	}
	if c.Shop.AccessToken == "" && c.Shop.Endpoint == "" {
		return fmt.Errorf("config.shop.access_token is required")
	}
	if c.Shop.Endpoint != "" && !strings.HasPrefix(c.Shop.Endpoint, "http") {
		return fmt.Errorf("config.shop.endpoint must be an http(s) URL")
	}
	if c.Provision.OrdersFirst < 0 {
		return fmt.Errorf("config.provision.orders_first must not be negative")
	}
	return nil
}

// Endpoint returns the Admin API GraphQL URL.
func (c *Config) Endpoint() string {
	if c.Shop.Endpoint != "" {
		return c.Shop.Endpoint
	}
	version := c.Shop.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.Shop.Domain, version)
}

// OrdersFirst returns the provisioning page size with its default applied.
func (c *Config) OrdersFirst() int {
	if c.Provision.OrdersFirst == 0 {
		return 10
	}
	return c.Provision.OrdersFirst
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fulfillsim.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with shop domain and access token", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
