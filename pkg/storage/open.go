package storage

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendMinio = "minio"
	BackendLocal = "local"
)

// Config selects the object store backend.
type Config struct {
	Backend       string
	Dir           string
	PublicBaseURL string
	Minio         MinioConfig
}

func Open(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLocal:
		return NewFileStore(cfg.Dir, cfg.PublicBaseURL)
	case BackendMinio:
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
