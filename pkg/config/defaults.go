package config

const (
	defaultUpstream     = "https://api.anthropic.com"
	defaultProxyListen  = ":8080"
	defaultAPIListen    = ":8081"
	defaultProxyWorkers = 3
	defaultProxyQueue   = 256

	defaultClientProxyTarget = "http://localhost:8080"
	defaultClientAPITarget   = "http://localhost:8081"

	defaultMemoryProvider = "local"
	defaultUserID         = "mnemo"

	defaultReflectionWindow    = 5
	defaultReflectionThreshold = 5
	defaultReflectionWorkers   = 2
	defaultReflectionQueue     = 16

	defaultEventstreamProvider = "none"
	defaultEventstreamTopic    = "mnemo.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Upstream: defaultUpstream,
			Listen:   defaultProxyListen,
			Workers:  defaultProxyWorkers,
			Queue:    defaultProxyQueue,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
			APITarget:   defaultClientAPITarget,
		},
		Memory: MemoryConfig{
			Provider: defaultMemoryProvider,
			UserID:   defaultUserID,
		},
		Reflection: ReflectionConfig{
			Enabled:   true,
			Window:    defaultReflectionWindow,
			Threshold: defaultReflectionThreshold,
			Workers:   defaultReflectionWorkers,
			Queue:     defaultReflectionQueue,
		},
		Eventstream: EventstreamConfig{
			Provider: defaultEventstreamProvider,
			Topic:    defaultEventstreamTopic,
		},
	}
}
