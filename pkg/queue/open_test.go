package queue

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestOpenSelectsBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := Open(client, Config{})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	rq, ok := q.(*RedisJobQueue)
	if !ok {
		t.Fatalf("expected redis queue, got %T", q)
	}
	if rq.stream != DefaultName {
		t.Fatalf("unexpected stream %q", rq.stream)
	}

	if _, err := Open(client, Config{Backend: "kafka"}); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
	if _, err := Open(nil, Config{Backend: BackendRabbitMQ}); err == nil {
		t.Fatalf("expected rabbitmq without url to fail")
	}
}
