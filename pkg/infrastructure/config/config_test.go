package config

import (
	"os"
	"testing"
)

func TestDefaultConfigFailsValidationWithoutToken(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing token")
	}
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	t.Setenv("JUDGE_TOKEN", "secret")
	t.Setenv("JUDGE_PORT", "9000")
	t.Setenv("JUDGE_THREADS", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "secret" {
		t.Errorf("expected token override, got %q", cfg.Token)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port override, got %d", cfg.Port)
	}
	if cfg.Threads != 4 {
		t.Errorf("expected threads override, got %d", cfg.Threads)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level override, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsBadThreads(t *testing.T) {
	t.Setenv("JUDGE_TOKEN", "secret")
	t.Setenv("JUDGE_THREADS", "0")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected validation error for threads=0")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := t.TempDir() + "/config.json"
	if err := os.WriteFile(path, []byte(`{"token":"file-token","port":4000}`), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "file-token" {
		t.Errorf("expected token from file, got %q", cfg.Token)
	}
	if cfg.Port != 4000 {
		t.Errorf("expected port from file, got %d", cfg.Port)
	}
}

func TestLoadConfigMissingFileIsNotFatal(t *testing.T) {
	t.Setenv("JUDGE_TOKEN", "secret")
	if _, err := LoadConfig("/no/such/config.json"); err != nil {
		t.Fatalf("unexpected error for missing config file: %v", err)
	}
}
