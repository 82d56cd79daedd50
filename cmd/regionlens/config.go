package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marchfour/regionlens/browser"
	"github.com/marchfour/regionlens/overlay"
)

// FileConfig is the YAML daemon configuration.
//
// Example:
//
//	service_url: http://localhost:8000
//	listen: 127.0.0.1:8470
//	history_db: ~/.regionlens/history.db
//	page_url: https://www.amazon.com/dp/B0EXAMPLE1
//	browser:
//	  stealth: true
//	overlay:
//	  poll_interval: 1500ms
type FileConfig struct {
	// ServiceURL is the comparison service base URL.
	ServiceURL string `yaml:"service_url"`

	// Listen is the local status API address. Empty disables the API.
	Listen string `yaml:"listen"`

	// HistoryDB is the check-log SQLite path. Empty disables history.
	HistoryDB string `yaml:"history_db"`

	// PageURL is the product page to open. Empty attaches to the
	// first existing tab of a remote browser instead.
	PageURL string `yaml:"page_url"`

	Browser browser.Config `yaml:"browser"`
	Overlay overlay.Config `yaml:"overlay"`
}

// LoadConfigFile reads and validates a YAML config.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *FileConfig) validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("service_url is required")
	}
	if c.PageURL == "" && c.Browser.Remote == "" {
		return fmt.Errorf("page_url is required unless browser.remote is set")
	}
	return nil
}
