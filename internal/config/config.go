package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIBaseURL     string
	SocketURL      string
	CredentialsDir string
	RequestTimeout time.Duration
	PushPlatform   string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		RequestTimeout: 10 * time.Second,
		PushPlatform:   "cli",
	}

	cfg.APIBaseURL = strings.TrimRight(env.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("API_BASE_URL is required")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return Config{}, fmt.Errorf("invalid API_BASE_URL")
	}

	cfg.SocketURL = strings.TrimRight(env.Getenv("SOCKET_URL"), "/")
	if cfg.SocketURL == "" {
		cfg.SocketURL = cfg.APIBaseURL
	}

	cfg.CredentialsDir = env.Getenv("CREDENTIALS_DIR")
	if cfg.CredentialsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("CREDENTIALS_DIR is required when no home directory is available")
		}
		cfg.CredentialsDir = filepath.Join(home, ".commchat")
	}

	if raw := env.Getenv("REQUEST_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS")
		}
		cfg.RequestTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("PUSH_PLATFORM"); raw != "" {
		cfg.PushPlatform = raw
	}

	return cfg, nil
}
