package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Proxy       ProxyConfig       `toml:"proxy"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Memory      MemoryConfig      `toml:"memory"`
	Capture     CaptureConfig     `toml:"capture"`
	Reflection  ReflectionConfig  `toml:"reflection"`
	Eventstream EventstreamConfig `toml:"eventstream"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Upstream string `toml:"upstream,omitempty"`
	Listen   string `toml:"listen,omitempty"`
	Workers  uint   `toml:"workers,omitempty"`
	Queue    uint   `toml:"queue,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// proxy and API servers (e.g. mnemo search).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
	APITarget   string `toml:"api_target,omitempty"`
}

// MemoryConfig holds memory store settings.
type MemoryConfig struct {
	// Provider selects the driver: "remote", "sqlite", or "local".
	Provider string `toml:"provider,omitempty"`

	// BaseURL and APIKey configure the remote provider.
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`

	// SQLitePath configures the sqlite provider. Empty means a
	// memories.db inside the resolved .mnemo/ directory.
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// UserID and AgentID identify stored memories.
	UserID  string `toml:"user_id,omitempty"`
	AgentID string `toml:"agent_id,omitempty"`
}

// CaptureConfig holds capture pipeline settings.
type CaptureConfig struct {
	// ExcludedModels are model-identifier substrings never persisted.
	ExcludedModels []string `toml:"excluded_models,omitempty"`
}

// ReflectionConfig holds reflection scheduler settings.
type ReflectionConfig struct {
	Enabled   bool `toml:"enabled,omitempty"`
	Window    int  `toml:"window,omitempty"`
	Threshold int  `toml:"threshold,omitempty"`
	Workers   uint `toml:"workers,omitempty"`
	Queue     uint `toml:"queue,omitempty"`
}

// EventstreamConfig holds turn event publishing settings.
type EventstreamConfig struct {
	// Provider selects the publisher: "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
// List-valued keys accept comma-separated values.
var configKeys = map[string]configKeyInfo{
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.workers": {
		get: func(c *Config) string { return formatUint(c.Proxy.Workers) },
		set: func(c *Config, v string) error { return parseUint("proxy.workers", v, &c.Proxy.Workers) },
	},
	"proxy.queue": {
		get: func(c *Config) string { return formatUint(c.Proxy.Queue) },
		set: func(c *Config, v string) error { return parseUint("proxy.queue", v, &c.Proxy.Queue) },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.proxy_target": {
		get: func(c *Config) string { return c.Client.ProxyTarget },
		set: func(c *Config, v string) error { c.Client.ProxyTarget = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"memory.provider": {
		get: func(c *Config) string { return c.Memory.Provider },
		set: func(c *Config, v string) error { c.Memory.Provider = v; return nil },
	},
	"memory.base_url": {
		get: func(c *Config) string { return c.Memory.BaseURL },
		set: func(c *Config, v string) error { c.Memory.BaseURL = v; return nil },
	},
	"memory.api_key": {
		get: func(c *Config) string { return c.Memory.APIKey },
		set: func(c *Config, v string) error { c.Memory.APIKey = v; return nil },
	},
	"memory.sqlite_path": {
		get: func(c *Config) string { return c.Memory.SQLitePath },
		set: func(c *Config, v string) error { c.Memory.SQLitePath = v; return nil },
	},
	"memory.user_id": {
		get: func(c *Config) string { return c.Memory.UserID },
		set: func(c *Config, v string) error { c.Memory.UserID = v; return nil },
	},
	"memory.agent_id": {
		get: func(c *Config) string { return c.Memory.AgentID },
		set: func(c *Config, v string) error { c.Memory.AgentID = v; return nil },
	},
	"capture.excluded_models": {
		get: func(c *Config) string { return strings.Join(c.Capture.ExcludedModels, ",") },
		set: func(c *Config, v string) error { c.Capture.ExcludedModels = splitList(v); return nil },
	},
	"reflection.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Reflection.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for reflection.enabled: %w", err)
			}
			c.Reflection.Enabled = b
			return nil
		},
	},
	"reflection.window": {
		get: func(c *Config) string { return formatInt(c.Reflection.Window) },
		set: func(c *Config, v string) error { return parseInt("reflection.window", v, &c.Reflection.Window) },
	},
	"reflection.threshold": {
		get: func(c *Config) string { return formatInt(c.Reflection.Threshold) },
		set: func(c *Config, v string) error {
			return parseInt("reflection.threshold", v, &c.Reflection.Threshold)
		},
	},
	"reflection.workers": {
		get: func(c *Config) string { return formatUint(c.Reflection.Workers) },
		set: func(c *Config, v string) error { return parseUint("reflection.workers", v, &c.Reflection.Workers) },
	},
	"reflection.queue": {
		get: func(c *Config) string { return formatUint(c.Reflection.Queue) },
		set: func(c *Config, v string) error { return parseUint("reflection.queue", v, &c.Reflection.Queue) },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.Eventstream.Provider },
		set: func(c *Config, v string) error { c.Eventstream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.Eventstream.Brokers, ",") },
		set: func(c *Config, v string) error { c.Eventstream.Brokers = splitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.Eventstream.Topic },
		set: func(c *Config, v string) error { c.Eventstream.Topic = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, target *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func parseInt(key, v string, target *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = n
	return nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
