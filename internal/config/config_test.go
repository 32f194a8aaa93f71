package config

import (
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"API_BASE_URL":    "http://localhost:4000",
		"CREDENTIALS_DIR": "/tmp/commchat-test",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SocketURL != "http://localhost:4000" {
		t.Fatalf("expected socket URL to default to API base, got %q", cfg.SocketURL)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %v", cfg.RequestTimeout)
	}
	if cfg.PushPlatform != "cli" {
		t.Fatalf("expected default push platform cli, got %q", cfg.PushPlatform)
	}
}

func TestLoadConfigFromEnv_MissingBaseURL(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_InvalidBaseURL(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{"API_BASE_URL": "localhost:4000"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"API_BASE_URL":            "https://chat.example.com/",
		"SOCKET_URL":              "https://ws.example.com",
		"CREDENTIALS_DIR":         "/tmp/commchat-test",
		"REQUEST_TIMEOUT_SECONDS": "30",
		"PUSH_PLATFORM":           "android",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.APIBaseURL != "https://chat.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.SocketURL != "https://ws.example.com" {
		t.Fatalf("expected socket URL override, got %q", cfg.SocketURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.PushPlatform != "android" {
		t.Fatalf("expected push platform android, got %q", cfg.PushPlatform)
	}
}

func TestLoadConfigFromEnv_InvalidTimeout(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{
		"API_BASE_URL":            "http://localhost:4000",
		"CREDENTIALS_DIR":         "/tmp/commchat-test",
		"REQUEST_TIMEOUT_SECONDS": "zero",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
