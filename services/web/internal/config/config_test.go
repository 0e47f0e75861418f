package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseConfig = `
port: "8080"
logLevel: "info"
baseURL: "http://localhost:8080"
databaseDriver: "sqlite"
databaseURL: "file:waifugen.db"
redisAddr: "localhost:6379"
sessionSecret: "0123456789abcdef0123456789abcdef"
verificationSecret: "fedcba9876543210fedcba9876543210"
callbackSecret: "callback-secret-callback-secret-xx"
imageApiKey: "key"
storageDir: "data/objects"
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
	if cfg.SignupCredits != 5 {
		t.Fatalf("signupCredits = %d, want 5", cfg.SignupCredits)
	}
	if cfg.CreditsPerUnit != 10 {
		t.Fatalf("creditsPerUnit = %d, want 10", cfg.CreditsPerUnit)
	}
	if cfg.StorageBackend != "local" || cfg.QueueBackend != "redis" {
		t.Fatalf("unexpected backends: %q %q", cfg.StorageBackend, cfg.QueueBackend)
	}
	if cfg.SessionCookieName != "session" {
		t.Fatalf("sessionCookieName = %q", cfg.SessionCookieName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IMG_API_KEY", "env-key")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec")
	t.Setenv("STRIPE_PRICE_ID", "price_1")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ImageAPIKey != "env-key" {
		t.Fatalf("imageApiKey = %q", cfg.ImageAPIKey)
	}
	if cfg.SMTPPort != 2525 {
		t.Fatalf("smtpPort = %d", cfg.SMTPPort)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("allowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := map[string]string{
		"short session secret": strings.Replace(baseConfig, "0123456789abcdef0123456789abcdef", "short", 1),
		"partial stripe":       baseConfig + "stripeSecretKey: sk_test\n",
		"bad duration":         baseConfig + "descriptionTimeout: soon\n",
		"unknown storage":      baseConfig + "storageBackend: ftp\n",
		"partial google":       baseConfig + "googleClientId: abc\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatalf("expected config to be rejected")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("x", "", 10*time.Minute)
	if err != nil || d != 10*time.Minute {
		t.Fatalf("fallback = %v, %v", d, err)
	}
	d, err = ParseDuration("x", "90s", 0)
	if err != nil || d != 90*time.Second {
		t.Fatalf("parsed = %v, %v", d, err)
	}
	if _, err := ParseDuration("x", "-1s", 0); err == nil {
		t.Fatalf("expected negative duration to fail")
	}
}
