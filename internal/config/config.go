// Package config loads estransport's Config from YAML + environment
// via viper, with live reload via fsnotify, mirroring the teacher's
// Load(onConfigChange func()) shape verbatim.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultFileWriteDelay = 150 * time.Millisecond
	defaultDebounce       = 500 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults: a
// single local seed node, ping-based resurrection, round-robin
// selection, no sniffing.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Seeds: []EndpointConfig{
				{URL: "http://localhost:9200"},
			},
			ResurrectStrategy: "ping",
			PingTimeout:       3 * time.Second,
		},
		Transport: TransportConfig{
			MaxRetries:     3,
			RequestTimeout: 30 * time.Second,
			NodeSelector:   "round-robin",
			SniffEndpoint:  "/_nodes/http",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file and environment variables,
// watching for changes and invoking onConfigChange (debounced) on
// every reload, exactly as the teacher's config.Load does.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("ESTRANSPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("ESTRANSPORT_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < defaultDebounce {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}
