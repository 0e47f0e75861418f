package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"

	DefaultName = "waifugen:descriptions"
)

// Config selects and configures the queue backend shared by producer and consumer.
type Config struct {
	Backend    string
	Name       string
	Group      string
	Consumer   string
	AMQPURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// Open builds the configured JobQueue. client is only used by the redis backend.
func Open(client redis.UniversalClient, cfg Config) (JobQueue, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = DefaultName
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendRedis:
		return NewRedisJobQueue(client, RedisQueueConfig{
			Stream:     name,
			Group:      cfg.Group,
			Consumer:   cfg.Consumer,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
	case BackendRabbitMQ:
		return NewAMQPJobQueue(AMQPQueueConfig{
			URL:        cfg.AMQPURL,
			Queue:      name,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
