package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"waifugen/internal/metrics"
	"waifugen/internal/servicetoken"
	"waifugen/internal/util"
	"waifugen/pkg/ai"
	"waifugen/pkg/domain"
	"waifugen/pkg/queue"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
)

const callbackPath = "/creation_description_complete"

// TaskStore is the part of the store the worker touches.
type TaskStore interface {
	GetDescriptionTask(ctx context.Context, id string) (domain.DescriptionTask, bool, error)
	GetCreation(ctx context.Context, id string) (domain.Creation, bool, error)
	MarkTaskDispatched(ctx context.Context, id string) error
	RecordTaskError(ctx context.Context, id, errMsg string, final bool) error
	ExpireDescriptionTasks(ctx context.Context, now time.Time) (int, error)
}

// Config holds runtime dependencies.
type Config struct {
	Store     TaskStore
	Queue     queue.JobQueue
	Objects   storage.ObjectStore
	Describer ai.Describer
	Signer    *servicetoken.Signer
	Metrics   *metrics.Metrics

	BaseURL       string
	Concurrency   int
	SweepInterval time.Duration
	PresignTTL    time.Duration
}

// App dispatches description tasks and expires the ones nobody answered.
type App struct {
	store     TaskStore
	queue     queue.JobQueue
	objects   storage.ObjectStore
	describer ai.Describer
	signer    *servicetoken.Signer
	metrics   *metrics.Metrics

	callbackURL   string
	concurrency   int
	sweepInterval time.Duration
	presignTTL    time.Duration
	now           func() time.Time
}

// New constructs the worker.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store required")
	case cfg.Queue == nil:
		return nil, errors.New("job queue required")
	case cfg.Objects == nil:
		return nil, errors.New("object store required")
	case cfg.Describer == nil:
		return nil, errors.New("describer required")
	case cfg.Signer == nil:
		return nil, errors.New("callback signer required")
	case strings.TrimSpace(cfg.BaseURL) == "":
		return nil, errors.New("base URL required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &App{
		store:         cfg.Store,
		queue:         cfg.Queue,
		objects:       cfg.Objects,
		describer:     cfg.Describer,
		signer:        cfg.Signer,
		metrics:       cfg.Metrics,
		callbackURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + callbackPath,
		concurrency:   cfg.Concurrency,
		sweepInterval: cfg.SweepInterval,
		presignTTL:    cfg.PresignTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run starts the queue consumers and the sweeper and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.queue.Start(ctx, a.concurrency, a.Handle); err != nil {
			return fmt.Errorf("start consumers: %w", err)
		}
		<-ctx.Done()
		return nil
	})
	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})
	return g.Wait()
}

// Handle dispatches one task. Returning an error asks the queue to retry.
func (a *App) Handle(ctx context.Context, job queue.Job) error {
	logger := util.LoggerFromContext(ctx).With("task_id", job.TaskID, "job_id", job.ID, "attempt", job.Attempts)
	task, ok, err := a.store.GetDescriptionTask(ctx, job.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if !ok {
		logger.Warn("description task missing, dropping job")
		return nil
	}
	if !task.Status.Open() {
		logger.Info("description task already closed", "status", task.Status)
		a.metrics.DescriptionTask("skipped")
		return nil
	}
	ttl := task.DeadlineAt.Sub(a.now())
	if ttl <= 0 {
		// left for the sweeper
		logger.Info("description task past deadline")
		return nil
	}
	creation, ok, err := a.store.GetCreation(ctx, task.CreationID)
	if err != nil {
		return fmt.Errorf("load creation: %w", err)
	}
	if !ok {
		logger.Warn("creation missing for description task", "creation_id", task.CreationID)
		if err := a.store.RecordTaskError(ctx, task.ID, "creation not found", true); err != nil && !errors.Is(err, store.ErrTaskClosed) {
			return fmt.Errorf("record task error: %w", err)
		}
		a.metrics.DescriptionTask("failed")
		return nil
	}

	if err := a.dispatch(ctx, task, creation, ttl); err != nil {
		final := job.Final()
		logger.Warn("description dispatch failed", "err", err, "final", final)
		if recErr := a.store.RecordTaskError(ctx, task.ID, err.Error(), final); recErr != nil && !errors.Is(recErr, store.ErrTaskClosed) {
			logger.Error("record task error failed", "err", recErr)
		}
		if final {
			a.metrics.DescriptionTask("failed")
		}
		return err
	}
	if err := a.store.MarkTaskDispatched(ctx, task.ID); err != nil {
		if errors.Is(err, store.ErrTaskClosed) {
			// the callback beat us
			return nil
		}
		return fmt.Errorf("mark dispatched: %w", err)
	}
	a.metrics.DescriptionTask("dispatched")
	logger.Info("description task dispatched", "creation_id", creation.ID)
	return nil
}

func (a *App) dispatch(ctx context.Context, task domain.DescriptionTask, creation domain.Creation, ttl time.Duration) error {
	imageURL, err := a.objects.PresignGet(ctx, creation.ImageKey, a.presignTTL)
	if err != nil {
		return fmt.Errorf("presign image: %w", err)
	}
	token, err := a.signer.Sign(task.ID, ttl)
	if err != nil {
		return fmt.Errorf("sign callback token: %w", err)
	}
	return a.describer.RequestDescription(ctx, ai.DescriptionRequest{
		CreationID:    creation.ID,
		TaskID:        task.ID,
		Name:          creation.DisplayName,
		Prompt:        creation.Prompt,
		ImageURL:      imageURL,
		CallbackURL:   a.callbackURL,
		CallbackToken: token,
	})
}

// Sweep expires open tasks whose deadline has passed.
func (a *App) Sweep(ctx context.Context) (int, error) {
	n, err := a.store.ExpireDescriptionTasks(ctx, a.now())
	if err != nil {
		return 0, err
	}
	for range n {
		a.metrics.DescriptionTask("expired")
	}
	return n, nil
}

func (a *App) sweepLoop(ctx context.Context) {
	logger := util.LoggerFromContext(ctx)
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("expire description tasks failed", "err", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("description tasks expired", "count", n)
			}
		}
	}
}
