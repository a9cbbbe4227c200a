package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/coilworks/mnemo/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MNEMO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MNEMO_PROXY_LISTEN, MNEMO_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MNEMO_PROXY_LISTEN, MNEMO_MEMORY_PROVIDER, etc.
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Proxy
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.workers", d.Proxy.Workers)
	v.SetDefault("proxy.queue", d.Proxy.Queue)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.proxy_target", d.Client.ProxyTarget)
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Memory
	v.SetDefault("memory.provider", d.Memory.Provider)
	v.SetDefault("memory.base_url", d.Memory.BaseURL)
	v.SetDefault("memory.api_key", d.Memory.APIKey)
	v.SetDefault("memory.sqlite_path", d.Memory.SQLitePath)
	v.SetDefault("memory.user_id", d.Memory.UserID)
	v.SetDefault("memory.agent_id", d.Memory.AgentID)

	// Capture
	v.SetDefault("capture.excluded_models", d.Capture.ExcludedModels)

	// Reflection
	v.SetDefault("reflection.enabled", d.Reflection.Enabled)
	v.SetDefault("reflection.window", d.Reflection.Window)
	v.SetDefault("reflection.threshold", d.Reflection.Threshold)
	v.SetDefault("reflection.workers", d.Reflection.Workers)
	v.SetDefault("reflection.queue", d.Reflection.Queue)

	// Eventstream
	v.SetDefault("eventstream.provider", d.Eventstream.Provider)
	v.SetDefault("eventstream.brokers", d.Eventstream.Brokers)
	v.SetDefault("eventstream.topic", d.Eventstream.Topic)
}
