package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the acpdemo YAML configuration. Fields absent from the file
// keep their defaults.
type Config struct {
	Transport string        `yaml:"transport"` // "stdio" or "ws"
	Timeout   time.Duration `yaml:"timeout"`

	WS struct {
		Addr string `yaml:"addr"` // agent listen address
		URL  string `yaml:"url"`  // client dial URL
		Path string `yaml:"path"`
	} `yaml:"ws"`
}

func defaultConfig() Config {
	cfg := Config{
		Transport: "stdio",
		Timeout:   60 * time.Second,
	}
	cfg.WS.Addr = "localhost:8143"
	cfg.WS.URL = "ws://localhost:8143/acp"
	return cfg
}

// loadConfig reads the YAML config at path, or returns defaults when
// path is empty.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	switch cfg.Transport {
	case "stdio", "ws":
	default:
		return cfg, fmt.Errorf("config: unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}
