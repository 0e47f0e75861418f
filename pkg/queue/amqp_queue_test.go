package queue

import (
	"testing"
	"time"
)

func TestAMQPMessageRoundTrip(t *testing.T) {
	in := amqpMessage{JobID: "job-1", TaskID: "task-1", Attempts: 2, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	body, err := encodeAMQPMessage(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeAMQPMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.JobID != in.JobID || out.TaskID != in.TaskID || out.Attempts != 2 || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("unexpected message: %+v", out)
	}
}

func TestAMQPMessageRejectsIncompleteBody(t *testing.T) {
	for _, body := range []string{`not json`, `{"job_id":"j"}`, `{"task_id":"t"}`} {
		if _, err := decodeAMQPMessage([]byte(body)); err == nil {
			t.Fatalf("expected %q to be rejected", body)
		}
	}
}

func TestNewAMQPJobQueueValidatesConfig(t *testing.T) {
	if _, err := NewAMQPJobQueue(AMQPQueueConfig{Queue: "descriptions"}); err == nil {
		t.Fatalf("expected missing url to fail")
	}
	if _, err := NewAMQPJobQueue(AMQPQueueConfig{URL: "amqp://localhost"}); err == nil {
		t.Fatalf("expected missing queue name to fail")
	}
}

func TestJobFinal(t *testing.T) {
	if (Job{Attempts: 1, MaxAttempts: 3}).Final() {
		t.Fatalf("first of three attempts is not final")
	}
	if !(Job{Attempts: 3, MaxAttempts: 3}).Final() {
		t.Fatalf("third of three attempts is final")
	}
}
