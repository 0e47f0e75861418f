package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file location, overridable with WAIFUGEN_CONFIG.
var ConfigPath = envOr("WAIFUGEN_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	BaseURL        string   `yaml:"baseURL"`
	MaxConnections int      `yaml:"maxConnections"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	DatabaseDriver string `yaml:"databaseDriver"`
	DatabaseURL    string `yaml:"databaseURL"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`

	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	SessionSecret          string            `yaml:"sessionSecret"`
	SessionKeyID           string            `yaml:"sessionKeyId"`
	SessionPreviousSecrets map[string]string `yaml:"sessionPreviousSecrets"`
	SessionTTL             string            `yaml:"sessionTTL"`
	SessionCookieName      string            `yaml:"sessionCookieName"`
	SessionCookieSecure    bool              `yaml:"sessionCookieSecure"`
	JWTLeeway              string            `yaml:"jwtLeeway"`

	VerificationSecret string `yaml:"verificationSecret"`
	CallbackSecret     string `yaml:"callbackSecret"`
	CallbackKeyID      string `yaml:"callbackKeyId"`

	SignupCredits  int `yaml:"signupCredits"`
	CreditsPerUnit int `yaml:"creditsPerUnit"`

	ImageAPIURL  string `yaml:"imageApiURL"`
	ImageAPIKey  string `yaml:"imageApiKey"`
	ImageModel   string `yaml:"imageModel"`
	ImageTimeout string `yaml:"imageTimeout"`

	DescriptionTimeout string `yaml:"descriptionTimeout"`
	MediaServiceURL    string `yaml:"mediaServiceURL"`

	ChatStubDelay string `yaml:"chatStubDelay"`
	ChatModelURL  string `yaml:"chatModelURL"`
	ChatModelKey  string `yaml:"chatModelKey"`
	ChatModel     string `yaml:"chatModel"`

	StorageBackend string `yaml:"storageBackend"`
	StorageDir     string `yaml:"storageDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	PresignTTL     string `yaml:"presignTTL"`

	QueueBackend    string `yaml:"queueBackend"`
	QueueName       string `yaml:"queueName"`
	RabbitMQURL     string `yaml:"rabbitmqURL"`
	QueueMaxRetries int    `yaml:"queueMaxRetries"`

	StripeSecretKey     string `yaml:"stripeSecretKey"`
	StripeWebhookSecret string `yaml:"stripeWebhookSecret"`
	StripePriceID       string `yaml:"stripePriceId"`

	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	SMTPFrom     string `yaml:"smtpFrom"`

	GoogleClientID     string `yaml:"googleClientId"`
	GoogleClientSecret string `yaml:"googleClientSecret"`

	SignupRateLimitPerMinute   int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`
	GenerateRateLimitPerMinute int `yaml:"generateRateLimitPerMinute"`
	WebhookRateLimitPerMinute  int `yaml:"webhookRateLimitPerMinute"`
}

// Load reads config from path (defaults to ConfigPath).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.VerificationSecret, "VERIFICATION_SECRET")
	setString(&cfg.CallbackSecret, "CALLBACK_SECRET")
	setString(&cfg.ImageAPIKey, "IMG_API_KEY")
	setString(&cfg.MediaServiceURL, "MEDIA_SERVICE_URL")
	setString(&cfg.ChatModelKey, "CHAT_MODEL_KEY")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.RabbitMQURL, "RABBITMQ_URL")
	setString(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&cfg.StripePriceID, "STRIPE_PRICE_ID")
	setString(&cfg.SMTPHost, "SMTP_HOST")
	setString(&cfg.SMTPUsername, "SMTP_USERNAME")
	setString(&cfg.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	if v := os.Getenv("WEB_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("WEB_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.SignupCredits == 0 {
		cfg.SignupCredits = 5
	}
	if cfg.CreditsPerUnit == 0 {
		cfg.CreditsPerUnit = 10
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "session"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "local"
	}
	if cfg.QueueBackend == "" {
		cfg.QueueBackend = "redis"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: baseURL is required (set in config.yaml or BASE_URL)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q", cfg.DatabaseDriver)
	}
	if len(cfg.SessionSecret) < 32 {
		return errors.New("config: sessionSecret must be at least 32 bytes (set in config.yaml or SESSION_SECRET)")
	}
	if len(cfg.VerificationSecret) < 32 {
		return errors.New("config: verificationSecret must be at least 32 bytes (set in config.yaml or VERIFICATION_SECRET)")
	}
	if len(cfg.CallbackSecret) < 32 {
		return errors.New("config: callbackSecret must be at least 32 bytes (set in config.yaml or CALLBACK_SECRET)")
	}
	if strings.TrimSpace(cfg.ImageAPIKey) == "" {
		return errors.New("config: imageApiKey is required (set in config.yaml or IMG_API_KEY)")
	}
	switch cfg.StorageBackend {
	case "local":
		if strings.TrimSpace(cfg.StorageDir) == "" {
			return errors.New("config: storageDir is required for the local storage backend")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio storage backend")
		}
	default:
		return fmt.Errorf("config: unsupported storageBackend %q", cfg.StorageBackend)
	}
	switch cfg.QueueBackend {
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis queue backend")
		}
	case "rabbitmq":
		if strings.TrimSpace(cfg.RabbitMQURL) == "" {
			return errors.New("config: rabbitmqURL is required for the rabbitmq queue backend")
		}
	default:
		return fmt.Errorf("config: unsupported queueBackend %q", cfg.QueueBackend)
	}
	stripeSet := cfg.StripeSecretKey != "" || cfg.StripeWebhookSecret != "" || cfg.StripePriceID != ""
	if stripeSet && (cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" || cfg.StripePriceID == "") {
		return errors.New("config: stripeSecretKey, stripeWebhookSecret and stripePriceId must be set together")
	}
	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		return errors.New("config: googleClientId and googleClientSecret must be set together")
	}
	if cfg.SignupCredits < 0 || cfg.CreditsPerUnit < 0 {
		return errors.New("config: credit amounts must be >= 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.GenerateRateLimitPerMinute < 0 || cfg.WebhookRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"sessionTTL":         cfg.SessionTTL,
		"jwtLeeway":          cfg.JWTLeeway,
		"imageTimeout":       cfg.ImageTimeout,
		"descriptionTimeout": cfg.DescriptionTimeout,
		"chatStubDelay":      cfg.ChatStubDelay,
		"presignTTL":         cfg.PresignTTL,
	} {
		if _, err := ParseDuration(name, raw, 0); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration parses an optional duration string, returning fallback when empty.
func ParseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", name)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
