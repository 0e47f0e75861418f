package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"waifugen/internal/metrics"
	"waifugen/internal/ratelimit"
	"waifugen/internal/util"
	"waifugen/pkg/domain"
	"waifugen/pkg/storage"
	"waifugen/services/web/internal/app"
	"waifugen/services/web/internal/security"
)

const (
	defaultCookieName = "session"
	oauthStateCookie  = "oauth_state"
	maxJSONBody       = 1 << 20
	maxWebhookBody    = 64 << 10
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Objects        storage.ObjectStore
	Metrics        *metrics.Metrics
	Alerter        *security.AuditAlerter
	Redis          redis.UniversalClient
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string

	SessionCookieName   string
	SessionCookieSecure bool
	SessionTTL          time.Duration

	SignupRateLimitPerMinute   int
	LoginRateLimitPerMinute    int
	GenerateRateLimitPerMinute int
	WebhookRateLimitPerMinute  int
}

// Server exposes the public HTTP API.
type Server struct {
	app            *app.App
	objects        storage.ObjectStore
	metrics        *metrics.Metrics
	alerter        *security.AuditAlerter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	mux            *http.ServeMux

	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration

	signupLimiter   ratelimit.Limiter
	loginLimiter    ratelimit.Limiter
	generateLimiter ratelimit.Limiter
	webhookLimiter  ratelimit.Limiter
}

// New constructs the server with routes configured. Rate limits are shared
// through Redis when a client is given and kept in process otherwise.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	newLimiter := func(name string, limit, fallback int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			limit = fallback
		}
		if cfg.Redis == nil {
			return ratelimit.NewLocalLimiter(limit, time.Minute)
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis, "waifugen:web:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", cfg.SignupRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	generateLimiter, err := newLimiter("generate", cfg.GenerateRateLimitPerMinute, 6)
	if err != nil {
		return nil, err
	}
	webhookLimiter, err := newLimiter("webhook", cfg.WebhookRateLimitPerMinute, 120)
	if err != nil {
		return nil, err
	}

	cookieName := strings.TrimSpace(cfg.SessionCookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	s := &Server{
		app:             cfg.App,
		objects:         cfg.Objects,
		metrics:         cfg.Metrics,
		alerter:         cfg.Alerter,
		trustedProxies:  cfg.TrustedProxies,
		allowedOrigins:  cfg.AllowedOrigins,
		mux:             http.NewServeMux(),
		cookieName:      cookieName,
		cookieSecure:    cfg.SessionCookieSecure,
		sessionTTL:      sessionTTL,
		signupLimiter:   signupLimiter,
		loginLimiter:    loginLimiter,
		generateLimiter: generateLimiter,
		webhookLimiter:  webhookLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var observe util.RequestObserver
	if s.metrics != nil {
		observe = s.metrics.ObserveRequest
	}
	return util.WithRequestID(util.WithRequestLog("web", observe, util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.objects != nil {
		s.mux.HandleFunc("GET /media/{key...}", s.handleMedia)
	}

	// auth
	s.mux.HandleFunc("GET /signup", s.handleAuthOptions)
	s.mux.HandleFunc("POST /signup", s.handleSignup)
	s.mux.HandleFunc("GET /login", s.handleAuthOptions)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /auth/google", s.handleGoogleStart)
	s.mux.HandleFunc("GET /auth/google/callback", s.handleGoogleCallback)
	s.mux.HandleFunc("GET /verify-email", s.handleVerifyEmail)
	s.mux.Handle("POST /verify-email/resend", s.authenticated(s.handleResendVerification))

	// creations
	s.mux.Handle("GET /dashboard", s.authenticated(s.handleDashboard))
	s.mux.Handle("GET /creator", s.authenticated(s.verified(s.handleCreator)))
	s.mux.Handle("POST /generateImage", s.authenticated(s.verified(s.creditGate(s.handleGenerateImage))))
	s.mux.Handle("GET /mycreations", s.authenticated(s.handleMyCreations))
	s.mux.Handle("GET /gallery", s.optionalUser(s.handleGallery))
	s.mux.Handle("GET /creations/{id}", s.optionalUser(s.handleCreation))
	s.mux.Handle("POST /creations/{id}/delete", s.authenticated(s.handleDeleteCreation))
	s.mux.Handle("POST /updateCreationPublicStatus", s.authenticated(s.handleUpdatePublicStatus))
	s.mux.Handle("POST /likeCreation", s.authenticated(s.handleLikeCreation))
	s.mux.Handle("GET /chat/{id}", s.authenticated(s.handleChatHistory))
	s.mux.Handle("POST /chat/{id}", s.authenticated(s.handleChatMessage))
	s.mux.Handle("POST /generate_slideshow", s.authenticated(s.verified(s.creditGate(s.handleSlideshow))))
	s.mux.Handle("GET /credits", s.authenticated(s.handleCredits))

	// payments and service callbacks
	s.mux.Handle("POST /create-checkout-session", s.authenticated(s.handleCreateCheckout))
	s.mux.HandleFunc("POST /stripe_webhook", s.handleStripeWebhook)
	s.mux.HandleFunc("POST /creation_description_complete", s.handleDescriptionComplete)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userContextKey struct{}

// UserFromContext returns the user loaded by the authenticated wrapper.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.sessionToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, found, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("load session user failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !found {
			s.audit(r, "web.authorize", "fail", "reason", "invalid_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// optionalUser loads the session user when one is present and otherwise
// passes a zero user, which only sees public creations.
func (s *Server) optionalUser(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.sessionToken(r)
		if !ok {
			next(w, r, domain.User{})
			return
		}
		user, found, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("load session user failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !found {
			next(w, r, domain.User{})
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

func (s *Server) verified(next authHandler) authHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.Verified {
			writeError(w, http.StatusForbidden, "Email not verified")
			return
		}
		next(w, r, user)
	}
}

// creditGate rejects the request before any work when the balance is empty.
// The debit itself happens later, together with the persisted creation.
func (s *Server) creditGate(next authHandler) authHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		ok, err := s.app.HasSufficientBalance(r.Context(), user.ID, 1)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("credit check failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Error checking credits")
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, app.ErrNotEnoughCredits.Error())
			return
		}
		next(w, r, user)
	}
}

// sessionToken reads the session cookie, then the Authorization header.
func (s *Server) sessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(s.cookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}
	return bearerToken(r)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
