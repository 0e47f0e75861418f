package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"waifugen/internal/metrics"
	"waifugen/internal/servicetoken"
	"waifugen/internal/usertoken"
	"waifugen/pkg/ai"
	"waifugen/pkg/mail"
	"waifugen/pkg/oauth"
	"waifugen/pkg/payment"
	"waifugen/pkg/queue"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
)

// Config wires the collaborators of the web application. Payments, OAuth,
// Slideshow and Metrics are optional.
type Config struct {
	Store            store.Store
	Sessions         store.SessionStore
	VerifyTokens     *usertoken.Issuer
	CallbackVerifier *servicetoken.Verifier
	Mailer           mail.Sender
	Images           ai.ImageGenerator
	Objects          storage.ObjectStore
	Queue            queue.JobQueue
	Responder        ai.ChatResponder
	Slideshow        ai.SlideshowClient
	Payments         payment.Processor
	OAuth            oauth.Provider
	Metrics          *metrics.Metrics

	BaseURL            string
	ImageModel         string
	SignupCredits      int
	CreditsPerUnit     int
	DescriptionTimeout time.Duration
	PresignTTL         time.Duration
}

// App holds the web use cases.
type App struct {
	store            store.Store
	sessions         store.SessionStore
	verifyTokens     *usertoken.Issuer
	callbackVerifier *servicetoken.Verifier
	mailer           mail.Sender
	images           ai.ImageGenerator
	objects          storage.ObjectStore
	queue            queue.JobQueue
	responder        ai.ChatResponder
	slideshow        ai.SlideshowClient
	payments         payment.Processor
	oauth            oauth.Provider
	metrics          *metrics.Metrics

	baseURL            string
	imageModel         string
	signupCredits      int
	creditsPerUnit     int
	descriptionTimeout time.Duration
	presignTTL         time.Duration
	now                func() time.Time
}

// New validates the required collaborators and applies defaults.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store required")
	case cfg.Sessions == nil:
		return nil, errors.New("session store required")
	case cfg.VerifyTokens == nil:
		return nil, errors.New("verification token issuer required")
	case cfg.CallbackVerifier == nil:
		return nil, errors.New("callback token verifier required")
	case cfg.Images == nil:
		return nil, errors.New("image generator required")
	case cfg.Objects == nil:
		return nil, errors.New("object store required")
	case cfg.Queue == nil:
		return nil, errors.New("job queue required")
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.LogSender{}
	}
	if cfg.Responder == nil {
		cfg.Responder = ai.StubResponder{}
	}
	if cfg.SignupCredits < 0 {
		cfg.SignupCredits = 0
	}
	if cfg.CreditsPerUnit <= 0 {
		cfg.CreditsPerUnit = payment.DefaultCreditsPerUnit
	}
	if cfg.DescriptionTimeout <= 0 {
		cfg.DescriptionTimeout = 10 * time.Minute
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &App{
		store:              cfg.Store,
		sessions:           cfg.Sessions,
		verifyTokens:       cfg.VerifyTokens,
		callbackVerifier:   cfg.CallbackVerifier,
		mailer:             cfg.Mailer,
		images:             cfg.Images,
		objects:            cfg.Objects,
		queue:              cfg.Queue,
		responder:          cfg.Responder,
		slideshow:          cfg.Slideshow,
		payments:           cfg.Payments,
		oauth:              cfg.OAuth,
		metrics:            cfg.Metrics,
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		imageModel:         cfg.ImageModel,
		signupCredits:      cfg.SignupCredits,
		creditsPerUnit:     cfg.CreditsPerUnit,
		descriptionTimeout: cfg.DescriptionTimeout,
		presignTTL:         cfg.PresignTTL,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

// OAuthEnabled reports whether Google login is configured.
func (a *App) OAuthEnabled() bool {
	return a.oauth != nil
}

// Ping checks the database when the store supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
