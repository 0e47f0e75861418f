package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file location, overridable with WAIFUGEN_WORKER_CONFIG.
var ConfigPath = envOr("WAIFUGEN_WORKER_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	// BaseURL is the public web address used for callback URLs.
	BaseURL string `yaml:"baseURL"`

	DatabaseDriver string `yaml:"databaseDriver"`
	DatabaseURL    string `yaml:"databaseURL"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`

	CallbackSecret string `yaml:"callbackSecret"`
	CallbackKeyID  string `yaml:"callbackKeyId"`

	DescriberURL     string `yaml:"describerURL"`
	DescriberTimeout string `yaml:"describerTimeout"`
	SweepInterval    string `yaml:"sweepInterval"`

	StorageBackend string `yaml:"storageBackend"`
	StorageDir     string `yaml:"storageDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	PresignTTL     string `yaml:"presignTTL"`

	QueueBackend     string `yaml:"queueBackend"`
	QueueName        string `yaml:"queueName"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries"`
	QueueRetryDelay  string `yaml:"queueRetryDelay"`
	RabbitMQURL      string `yaml:"rabbitmqURL"`
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
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.CallbackSecret, "CALLBACK_SECRET")
	setString(&cfg.DescriberURL, "DESCRIPTION_SERVICE_URL")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.RabbitMQURL, "RABBITMQ_URL")
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8081"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "local"
	}
	if cfg.QueueBackend == "" {
		cfg.QueueBackend = "redis"
	}
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.QueueMaxRetries == 0 {
		cfg.QueueMaxRetries = 3
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: baseURL is required (set in config.yaml or BASE_URL)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.DescriberURL) == "" {
		return errors.New("config: describerURL is required (set in config.yaml or DESCRIPTION_SERVICE_URL)")
	}
	if len(cfg.CallbackSecret) < 32 {
		return errors.New("config: callbackSecret must be at least 32 bytes (set in config.yaml or CALLBACK_SECRET)")
	}
	switch cfg.StorageBackend {
	case "local":
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
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 {
		return errors.New("config: queueConcurrency and queueMaxRetries must be >= 0")
	}
	for name, raw := range map[string]string{
		"describerTimeout": cfg.DescriberTimeout,
		"sweepInterval":    cfg.SweepInterval,
		"presignTTL":       cfg.PresignTTL,
		"queueRetryDelay":  cfg.QueueRetryDelay,
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

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
