package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the engine configuration loaded from engine.yaml.
type Config struct {
	Temporal struct {
		HostPort  string `mapstructure:"host_port"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"temporal"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	LLM struct {
		ServiceURL string `mapstructure:"service_url"`
	} `mapstructure:"llm"`

	Search struct {
		Provider string `mapstructure:"provider"`
		APIKey   string `mapstructure:"api_key"`
		Depth    string `mapstructure:"depth"`
	} `mapstructure:"search"`

	Streaming struct {
		RingCapacity int `mapstructure:"ring_capacity"`
	} `mapstructure:"streaming"`

	Observability struct {
		Metrics struct {
			Enabled bool `mapstructure:"enabled"`
			Port    int  `mapstructure:"port"`
		} `mapstructure:"metrics"`
		Logging struct {
			Level  string `mapstructure:"level"`
			Format string `mapstructure:"format"`
		} `mapstructure:"logging"`
	} `mapstructure:"observability"`
}

// Load reads engine.yaml from CONFIG_PATH or ./config/engine.yaml and applies
// environment overrides for deployment-specific values.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/engine.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is tolerated: everything has an env or default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(cfgPath); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	} else if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&c)
	applyDefaults(&c)
	return &c, nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		c.Temporal.HostPort = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("LLM_SERVICE_URL"); v != "" {
		c.LLM.ServiceURL = v
	}
	if v := os.Getenv("SEARCH_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		c.Search.Provider = v
	}
}

func applyDefaults(c *Config) {
	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.LLM.ServiceURL == "" {
		c.LLM.ServiceURL = "http://llm-service:8000"
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "tavily"
	}
	if c.Streaming.RingCapacity == 0 {
		c.Streaming.RingCapacity = 256
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = 8081
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}
