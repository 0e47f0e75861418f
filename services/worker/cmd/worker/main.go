package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"waifugen/internal/metrics"
	"waifugen/internal/servicetoken"
	"waifugen/internal/util"
	"waifugen/pkg/ai"
	"waifugen/pkg/queue"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
	"waifugen/services/worker/internal/app"
	"waifugen/services/worker/internal/config"
	"waifugen/services/worker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	describerTimeout, _ := config.ParseDuration("describerTimeout", cfg.DescriberTimeout, 10*time.Second)
	sweepInterval, _ := config.ParseDuration("sweepInterval", cfg.SweepInterval, 30*time.Second)
	presignTTL, _ := config.ParseDuration("presignTTL", cfg.PresignTTL, time.Hour)
	retryDelay, _ := config.ParseDuration("queueRetryDelay", cfg.QueueRetryDelay, 5*time.Second)

	var redisClient redis.UniversalClient
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	}

	st, err := store.NewGormStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	objects, err := storage.Open(ctx, storage.Config{
		Backend:       cfg.StorageBackend,
		Dir:           cfg.StorageDir,
		PublicBaseURL: cfg.BaseURL,
		Minio: storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		},
	})
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	hostname, _ := os.Hostname()
	jobs, err := queue.Open(redisClient, queue.Config{
		Backend:    cfg.QueueBackend,
		Name:       cfg.QueueName,
		Group:      cfg.QueueGroup,
		Consumer:   hostname + "-" + util.NewID()[:8],
		AMQPURL:    cfg.RabbitMQURL,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: retryDelay,
	})
	if err != nil {
		return fmt.Errorf("open job queue: %w", err)
	}
	defer jobs.Close()

	signer, err := servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
		Secret:   cfg.CallbackSecret,
		KeyID:    cfg.CallbackKeyID,
		Issuer:   "waifugen-worker",
		Audience: "waifugen-web",
	})
	if err != nil {
		return fmt.Errorf("init callback signer: %w", err)
	}
	m := metrics.New("worker")

	worker, err := app.New(app.Config{
		Store:         st,
		Queue:         jobs,
		Objects:       objects,
		Describer:     ai.NewHTTPDescriber(cfg.DescriberURL, describerTimeout),
		Signer:        signer,
		Metrics:       m,
		BaseURL:       cfg.BaseURL,
		Concurrency:   cfg.QueueConcurrency,
		SweepInterval: sweepInterval,
		PresignTTL:    presignTTL,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.New(server.Config{Ping: st.Ping, Metrics: m}).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker started", "concurrency", cfg.QueueConcurrency, "queue", cfg.QueueBackend)
		return worker.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("worker server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
