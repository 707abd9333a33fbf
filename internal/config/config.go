// Package config loads the gojacp configuration file.
//
// The file is optional. When present it can adjust logging, history retention,
// and declare MCP servers that are reachable from every session in addition to
// the ones the ACP client passes in session/new.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/atinylittleshell/gojacp/internal/script/mcp"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

// Config is the root of the configuration file.
type Config struct {
	// LogLevel is a zap level string ("debug", "info", "warn", "error").
	LogLevel string `yaml:"logLevel"`

	History HistoryConfig `yaml:"history"`

	// MCPServers are merged into every session underneath the servers the
	// client supplies. A client-supplied server with the same name wins.
	MCPServers map[string]MCPServerConfig `yaml:"mcpServers"`
}

// HistoryConfig controls invocation history recording.
type HistoryConfig struct {
	Disabled bool `yaml:"disabled"`
	// MaxEntries caps the number of retained invocations. 0 means unlimited.
	MaxEntries int `yaml:"maxEntries"`
}

// MCPServerConfig declares one MCP server in the configuration file.
// Exactly one of Command or URL must be set.
type MCPServerConfig struct {
	// Command is a full command line, split with shell quoting rules.
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env"`

	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Load reads the configuration file at path. A missing file is not an error
// and yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// ServerConfigs converts the declared MCP servers into manager configurations,
// splitting each command line into argv with shell quoting rules. Environment
// variables in command lines are expanded from the current environment.
func (c *Config) ServerConfigs() (map[string]mcp.ServerConfig, error) {
	servers := make(map[string]mcp.ServerConfig, len(c.MCPServers))

	for name, sc := range c.MCPServers {
		if sc.Command == "" && sc.URL == "" {
			return nil, fmt.Errorf("mcp server %q must specify either command or url", name)
		}
		if sc.Command != "" && sc.URL != "" {
			return nil, fmt.Errorf("mcp server %q must specify only one of command and url", name)
		}

		cfg := mcp.ServerConfig{
			Env:     sc.Env,
			URL:     sc.URL,
			Headers: sc.Headers,
		}

		if sc.Command != "" {
			fields, err := shell.Fields(sc.Command, nil)
			if err != nil {
				return nil, fmt.Errorf("mcp server %q has an invalid command line: %w", name, err)
			}
			if len(fields) == 0 {
				return nil, fmt.Errorf("mcp server %q has an empty command line", name)
			}
			cfg.Command = fields[0]
			cfg.Args = fields[1:]
		}

		servers[name] = cfg
	}

	return servers, nil
}
