package config

// Config holds critic configuration.
// Stored at: ~/.critic/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	History      HistoryCfg                `mapstructure:"history" yaml:"history"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type       string `mapstructure:"type" yaml:"type"`               // "openai", "gemini", "mock"
	Model      string `mapstructure:"model" yaml:"model"`             // Default model name
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`         // API key (supports ${ENV_VAR} syntax)
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`       // Override endpoint (OpenAI-compatible hosts)
	Mode       string `mapstructure:"mode" yaml:"mode"`               // "structured" or "freetext"
	RateLimit  int    `mapstructure:"rate_limit" yaml:"rate_limit"`   // Requests per minute
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"` // Retry attempts on transient failures
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default selections for review runs.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// HistoryCfg bounds the in-memory call history.
type HistoryCfg struct {
	MaxCalls int `mapstructure:"max_calls" yaml:"max_calls"`
}

// DefaultConfig returns configuration with sensible defaults. The provider
// modes mirror how each API is best driven: OpenAI-compatible hosts get the
// free-text prompt with local extraction, Gemini gets function calling.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				Mode:      "freetext",
				RateLimit: 60,
				Enabled:   true,
			},
			"gemini": {
				Type:      "gemini",
				Model:     "gemini-2.5-flash",
				APIKey:    "${GEMINI_API_KEY}",
				Mode:      "structured",
				RateLimit: 15,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openai",
		},
		Server: ServerCfg{
			ListenAddr: ":8080",
		},
		History: HistoryCfg{
			MaxCalls: 256,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
