package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/net/netutil"
	"waifugen/internal/metrics"
	"waifugen/internal/servicetoken"
	"waifugen/internal/usertoken"
	"waifugen/internal/util"
	"waifugen/pkg/ai"
	"waifugen/pkg/mail"
	"waifugen/pkg/oauth"
	"waifugen/pkg/payment"
	"waifugen/pkg/queue"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
	"waifugen/services/web/internal/app"
	"waifugen/services/web/internal/config"
	"waifugen/services/web/internal/security"
	"waifugen/services/web/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("web exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionTTL, _ := config.ParseDuration("sessionTTL", cfg.SessionTTL, 7*24*time.Hour)
	leeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway, servicetoken.DefaultLeeway)
	imageTimeout, _ := config.ParseDuration("imageTimeout", cfg.ImageTimeout, 90*time.Second)
	descriptionTimeout, _ := config.ParseDuration("descriptionTimeout", cfg.DescriptionTimeout, 10*time.Minute)
	chatDelay, _ := config.ParseDuration("chatStubDelay", cfg.ChatStubDelay, 0)
	presignTTL, _ := config.ParseDuration("presignTTL", cfg.PresignTTL, time.Hour)

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

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if redisClient != nil {
		revoker = store.NewRedisTokenRevoker(redisClient, sessionTTL)
	}
	sessions, err := store.NewJWTSessionStoreWithOptions(cfg.SessionSecret, cfg.SessionKeyID, cfg.SessionPreviousSecrets, sessionTTL, revoker, store.JWTOptions{
		Issuer:   "waifugen-web",
		Audience: "waifugen-session",
		Leeway:   leeway,
	})
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	verifyTokens, err := usertoken.NewIssuer(usertoken.Config{
		Secret:   cfg.VerificationSecret,
		Issuer:   "waifugen-web",
		Audience: "waifugen-verify-email",
		Leeway:   leeway,
	})
	if err != nil {
		return fmt.Errorf("init verification tokens: %w", err)
	}
	callbackVerifier, err := servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
		Secret:         cfg.CallbackSecret,
		KeyID:          cfg.CallbackKeyID,
		Audience:       "waifugen-web",
		AllowedIssuers: []string{"waifugen-worker"},
		Leeway:         leeway,
	})
	if err != nil {
		return fmt.Errorf("init callback verifier: %w", err)
	}

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
	jobs, err := queue.Open(redisClient, queue.Config{
		Backend:    cfg.QueueBackend,
		Name:       cfg.QueueName,
		AMQPURL:    cfg.RabbitMQURL,
		MaxRetries: cfg.QueueMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("open job queue: %w", err)
	}
	defer jobs.Close()

	var responder ai.ChatResponder = ai.StubResponder{Delay: chatDelay}
	if cfg.ChatModelURL != "" {
		responder = ai.NewOpenAICompatResponder(cfg.ChatModelURL, cfg.ChatModelKey, cfg.ChatModel, 30*time.Second)
	}
	var slideshow ai.SlideshowClient
	if cfg.MediaServiceURL != "" {
		slideshow = ai.NewHTTPSlideshowClient(cfg.MediaServiceURL, 5*time.Minute)
	}

	var payments payment.Processor
	if cfg.StripeSecretKey != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		processor, err := payment.NewStripeProcessor(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
			SuccessURL:    base + "/dashboard?checkout=success",
			CancelURL:     base + "/dashboard?checkout=cancelled",
		})
		if err != nil {
			return fmt.Errorf("init stripe: %w", err)
		}
		payments = processor
	}

	var mailer mail.Sender = mail.LogSender{}
	if cfg.SMTPHost != "" {
		sender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  15 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("init smtp: %w", err)
		}
		mailer = sender
	}

	var provider oauth.Provider
	if cfg.GoogleClientID != "" {
		google, err := oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + "/auth/google/callback",
			Timeout:      10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("init google oauth: %w", err)
		}
		provider = google
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	m := metrics.New("web")

	appCore, err := app.New(app.Config{
		Store:              st,
		Sessions:           sessions,
		VerifyTokens:       verifyTokens,
		CallbackVerifier:   callbackVerifier,
		Mailer:             mailer,
		Images:             ai.NewGetimgClient(cfg.ImageAPIURL, cfg.ImageAPIKey, imageTimeout),
		Objects:            objects,
		Queue:              jobs,
		Responder:          responder,
		Slideshow:          slideshow,
		Payments:           payments,
		OAuth:              provider,
		Metrics:            m,
		BaseURL:            cfg.BaseURL,
		ImageModel:         cfg.ImageModel,
		SignupCredits:      cfg.SignupCredits,
		CreditsPerUnit:     cfg.CreditsPerUnit,
		DescriptionTimeout: descriptionTimeout,
		PresignTTL:         presignTTL,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	var mediaObjects storage.ObjectStore
	if strings.EqualFold(cfg.StorageBackend, storage.BackendLocal) {
		mediaObjects = objects
	}
	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Objects:                    mediaObjects,
		Metrics:                    m,
		Alerter:                    security.NewAuditAlerter(redisClient, ""),
		Redis:                      redisClient,
		TrustedProxies:             trusted,
		AllowedOrigins:             cfg.AllowedOrigins,
		SessionCookieName:          cfg.SessionCookieName,
		SessionCookieSecure:        cfg.SessionCookieSecure,
		SessionTTL:                 sessionTTL,
		SignupRateLimitPerMinute:   cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		GenerateRateLimitPerMinute: cfg.GenerateRateLimitPerMinute,
		WebhookRateLimitPerMinute:  cfg.WebhookRateLimitPerMinute,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server listening", "addr", addr, "max_connections", cfg.MaxConnections)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
