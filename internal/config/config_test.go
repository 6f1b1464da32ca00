package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Pool.Seeds) != 1 {
		t.Fatalf("expected 1 default seed, got %d", len(cfg.Pool.Seeds))
	}
	if cfg.Pool.Seeds[0].URL != "http://localhost:9200" {
		t.Errorf("unexpected default seed URL: %s", cfg.Pool.Seeds[0].URL)
	}
	if cfg.Pool.ResurrectStrategy != "ping" {
		t.Errorf("expected default resurrect strategy 'ping', got %s", cfg.Pool.ResurrectStrategy)
	}
	if cfg.Transport.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Transport.MaxRetries)
	}
	if cfg.Transport.NodeSelector != "round-robin" {
		t.Errorf("expected default selector round-robin, got %s", cfg.Transport.NodeSelector)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.MaxRetries != 3 {
		t.Errorf("expected default max retries, got %d", cfg.Transport.MaxRetries)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"ESTRANSPORT_TRANSPORT_MAX_RETRIES":     "5",
		"ESTRANSPORT_TRANSPORT_NODE_SELECTOR":   "random",
		"ESTRANSPORT_LOGGING_LEVEL":             "debug",
		"ESTRANSPORT_TRANSPORT_REQUEST_TIMEOUT": "15s",
	}
	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Transport.MaxRetries != 5 {
		t.Errorf("expected max retries 5 from env var, got %d", cfg.Transport.MaxRetries)
	}
	if cfg.Transport.NodeSelector != "random" {
		t.Errorf("expected selector random from env var, got %s", cfg.Transport.NodeSelector)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug from env var, got %s", cfg.Logging.Level)
	}
	if cfg.Transport.RequestTimeout != 15*time.Second {
		t.Errorf("expected request timeout 15s from env var, got %v", cfg.Transport.RequestTimeout)
	}
}

func TestDefaultConfig_CloudDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Cloud.Enabled {
		t.Error("expected cloud pool disabled by default")
	}
}
