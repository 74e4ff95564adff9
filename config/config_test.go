package config_test

import (
	"os"
	"testing"

	"github.com/AlfredDev/conductor-gateway/config"
)

func TestLoadFallsBackToDefaultsWithoutFile(t *testing.T) {
	os.Setenv("CONDUCTOR_CONFIG_PATH", "/nonexistent/config.yaml")
	os.Setenv("ENV", "test")
	defer func() {
		os.Unsetenv("CONDUCTOR_CONFIG_PATH")
		os.Unsetenv("ENV")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Conductor.SchedulingStrategy != "round_robin" {
		t.Fatalf("expected default strategy round_robin, got %s", cfg.Conductor.SchedulingStrategy)
	}
	if _, ok := cfg.Providers["cerebras"]; !ok {
		t.Fatalf("expected default providers to include cerebras")
	}
	if _, ok := cfg.Providers["nvidia"]; !ok {
		t.Fatalf("expected default providers to include nvidia")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	os.Setenv("CONDUCTOR_CONFIG_PATH", "/nonexistent/config.yaml")
	os.Setenv("CONDUCTOR_HOST", "127.0.0.1")
	os.Setenv("CONDUCTOR_PORT", "9001")
	defer func() {
		os.Unsetenv("CONDUCTOR_CONFIG_PATH")
		os.Unsetenv("CONDUCTOR_HOST")
		os.Unsetenv("CONDUCTOR_PORT")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("expected host override, got %s", cfg.Host)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected port override, got %d", cfg.Port)
	}
	if cfg.Addr() != "127.0.0.1:9001" {
		t.Fatalf("expected Addr() 127.0.0.1:9001, got %s", cfg.Addr())
	}
}

func TestKeyEnvOverrideInjectsProviderKey(t *testing.T) {
	os.Setenv("CONDUCTOR_CONFIG_PATH", "/nonexistent/config.yaml")
	os.Setenv("CEREBRAS_API_KEY", "sk-test-123")
	defer func() {
		os.Unsetenv("CONDUCTOR_CONFIG_PATH")
		os.Unsetenv("CEREBRAS_API_KEY")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	pc := cfg.Providers["cerebras"]
	if len(pc.Keys) != 1 || pc.Keys[0].APIKey != "sk-test-123" {
		t.Fatalf("expected CEREBRAS_API_KEY to populate a key, got %+v", pc.Keys)
	}
}
