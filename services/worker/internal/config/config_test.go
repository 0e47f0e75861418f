package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseConfig = `
baseURL: "http://localhost:8080"
databaseDriver: "sqlite"
databaseURL: "file:waifugen.db"
redisAddr: "localhost:6379"
callbackSecret: "callback-secret-callback-secret-xx"
describerURL: "http://describer:9000"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8081" {
		t.Fatalf("port = %q, want 8081", cfg.Port)
	}
	if cfg.QueueConcurrency != 2 || cfg.QueueMaxRetries != 3 {
		t.Fatalf("unexpected queue defaults: %d %d", cfg.QueueConcurrency, cfg.QueueMaxRetries)
	}
	if cfg.StorageBackend != "local" || cfg.QueueBackend != "redis" {
		t.Fatalf("unexpected backends: %q %q", cfg.StorageBackend, cfg.QueueBackend)
	}
}

func TestLoadRejectsShortCallbackSecret(t *testing.T) {
	content := strings.Replace(baseConfig, "callback-secret-callback-secret-xx", "short", 1)
	if _, err := Load(writeConfig(t, content)); err == nil || !strings.Contains(err.Error(), "callbackSecret") {
		t.Fatalf("expected callbackSecret error, got %v", err)
	}
}

func TestLoadRequiresRabbitURL(t *testing.T) {
	content := baseConfig + "queueBackend: \"rabbitmq\"\n"
	if _, err := Load(writeConfig(t, content)); err == nil || !strings.Contains(err.Error(), "rabbitmqURL") {
		t.Fatalf("expected rabbitmqURL error, got %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	content := baseConfig + "sweepInterval: \"soon\"\n"
	if _, err := Load(writeConfig(t, content)); err == nil || !strings.Contains(err.Error(), "sweepInterval") {
		t.Fatalf("expected sweepInterval error, got %v", err)
	}
}

func TestEnvOverridesDescriberURL(t *testing.T) {
	t.Setenv("DESCRIPTION_SERVICE_URL", "http://other:9001")
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DescriberURL != "http://other:9001" {
		t.Fatalf("describerURL = %q", cfg.DescriberURL)
	}
}

func TestParseDurationFallback(t *testing.T) {
	got, err := ParseDuration("x", "", 30*time.Second)
	if err != nil || got != 30*time.Second {
		t.Fatalf("got %v %v", got, err)
	}
}
