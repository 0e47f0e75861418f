package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"waifugen/internal/util"
)

type AMQPQueueConfig struct {
	URL        string
	Queue      string
	MaxRetries int
	RetryDelay time.Duration
	Prefetch   int
}

// AMQPJobQueue is a JobQueue on a durable RabbitMQ queue. Retries are
// republished with the attempt count in the body.
type AMQPJobQueue struct {
	conn       *amqp.Connection
	queue      string
	maxRetries int
	retryDelay time.Duration
	prefetch   int

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

type amqpMessage struct {
	JobID     string    `json:"job_id"`
	TaskID    string    `json:"task_id"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAMQPJobQueue(cfg AMQPQueueConfig) (*AMQPJobQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	name := strings.TrimSpace(cfg.Queue)
	if name == "" {
		return nil, errors.New("queue name required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPJobQueue{
		conn:       conn,
		queue:      name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		prefetch:   prefetch,
		pubCh:      ch,
	}, nil
}

// Enqueue publishes a persistent message for the description task.
func (q *AMQPJobQueue) Enqueue(ctx context.Context, taskID string) (Job, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Job{}, errors.New("taskId required")
	}
	msg := amqpMessage{JobID: util.NewID(), TaskID: taskID, CreatedAt: time.Now().UTC()}
	if err := q.publish(ctx, msg); err != nil {
		return Job{}, err
	}
	return Job{
		ID:          msg.JobID,
		TaskID:      taskID,
		Status:      StatusQueued,
		MaxAttempts: q.maxRetries,
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.CreatedAt,
	}, nil
}

func (q *AMQPJobQueue) publish(ctx context.Context, msg amqpMessage) error {
	body, err := encodeAMQPMessage(msg)
	if err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.JobID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Start opens a consuming channel and launches concurrency workers on it.
func (q *AMQPJobQueue) Start(ctx context.Context, concurrency int, handler Handler) error {
	if handler == nil {
		return errors.New("queue handler required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				q.handleDelivery(ctx, d, handler)
			}
		}()
	}
	go func() {
		wg.Wait()
		_ = ch.Close()
	}()
	return nil
}

func (q *AMQPJobQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	msg, err := decodeAMQPMessage(d.Body)
	if err != nil {
		slog.Warn("queue_message_dropped", "queue", q.queue, "err", err)
		_ = d.Ack(false)
		return
	}
	msg.Attempts++
	job := Job{
		ID:          msg.JobID,
		TaskID:      msg.TaskID,
		Status:      StatusProcessing,
		Attempts:    msg.Attempts,
		MaxAttempts: q.maxRetries,
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := handler(ctx, job); err == nil || job.Final() {
		_ = d.Ack(false)
		return
	}
	select {
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	case <-time.After(q.retryDelay):
	}
	if err := q.publish(ctx, msg); err != nil {
		// leave it to the broker to redeliver the original
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close shuts the connection and every channel on it.
func (q *AMQPJobQueue) Close() error {
	if q.conn == nil || q.conn.IsClosed() {
		return nil
	}
	return q.conn.Close()
}

func encodeAMQPMessage(msg amqpMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func decodeAMQPMessage(body []byte) (amqpMessage, error) {
	var msg amqpMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return amqpMessage{}, fmt.Errorf("decode job: %w", err)
	}
	if strings.TrimSpace(msg.JobID) == "" || strings.TrimSpace(msg.TaskID) == "" {
		return amqpMessage{}, errors.New("job_id and task_id required")
	}
	return msg, nil
}
