package servicetoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultLeeway is clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second
	// DefaultKeyID is the key id stamped on callback tokens.
	DefaultKeyID = "callback-active"
	// MaxTokenTTL caps callback token lifetime regardless of task deadline.
	MaxTokenTTL = 24 * time.Hour

	minSecretLength = 32
)

var (
	ErrTokenRequired   = errors.New("token required")
	ErrSubjectMismatch = errors.New("token subject mismatch")
)

// Signer issues callback tokens bound to a single description task.
type Signer struct {
	issuer   string
	audience string
	secret   []byte
	kid      string
}

// SignerOptions configures callback token signing.
type SignerOptions struct {
	Secret   string
	KeyID    string
	Issuer   string
	Audience string
}

// Verifier validates callback tokens against audience, issuer allowlist and subject.
type Verifier struct {
	audience       string
	allowedIssuers map[string]struct{}
	leeway         time.Duration
	secrets        map[string][]byte
}

// VerifierOptions configures callback token verification. PreviousSecrets maps
// kid -> secret for keys rotated out of signing.
type VerifierOptions struct {
	Secret          string
	KeyID           string
	PreviousSecrets map[string]string
	Audience        string
	AllowedIssuers  []string
	Leeway          time.Duration
}

// NewSignerWithOptions creates an HS256 signer.
func NewSignerWithOptions(opts SignerOptions) (*Signer, error) {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	if opts.Issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Audience == "" {
		return nil, errors.New("service token audience is required")
	}
	if len(opts.Secret) < minSecretLength {
		return nil, fmt.Errorf("service token secret must be at least %d bytes", minSecretLength)
	}
	keyID := strings.TrimSpace(opts.KeyID)
	if keyID == "" {
		keyID = DefaultKeyID
	}
	return &Signer{
		issuer:   opts.Issuer,
		audience: opts.Audience,
		secret:   []byte(opts.Secret),
		kid:      keyID,
	}, nil
}

// Sign issues a token whose subject is the task id. The lifetime is clamped
// to (0, MaxTokenTTL].
func (s *Signer) Sign(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("service token subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("service token ttl must be positive")
	}
	if ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        randomHexID(12),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.secret)
}

// NewVerifierWithOptions creates an HS256 verifier.
func NewVerifierWithOptions(opts VerifierOptions) (*Verifier, error) {
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		return nil, errors.New("service token audience is required")
	}
	issuers := make(map[string]struct{})
	for _, issuer := range opts.AllowedIssuers {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			continue
		}
		issuers[issuer] = struct{}{}
	}
	if len(issuers) == 0 {
		return nil, errors.New("at least one allowed issuer is required")
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	v := &Verifier{
		audience:       audience,
		allowedIssuers: issuers,
		leeway:         leeway,
		secrets:        make(map[string][]byte),
	}
	if opts.Secret != "" {
		if len(opts.Secret) < minSecretLength {
			return nil, fmt.Errorf("service token secret must be at least %d bytes", minSecretLength)
		}
		kid := strings.TrimSpace(opts.KeyID)
		if kid == "" {
			kid = DefaultKeyID
		}
		v.secrets[kid] = []byte(opts.Secret)
	}
	for kid, secret := range opts.PreviousSecrets {
		kid = strings.TrimSpace(kid)
		if kid == "" || secret == "" {
			continue
		}
		if _, exists := v.secrets[kid]; exists {
			return nil, fmt.Errorf("verify key %q collides with the active key", kid)
		}
		v.secrets[kid] = []byte(secret)
	}
	if len(v.secrets) == 0 {
		return nil, errors.New("service token verifier requires a secret")
	}
	return v, nil
}

// Verify validates signature, expiry, audience, issuer and that the subject
// equals expectedSubject.
func (v *Verifier) Verify(token, expectedSubject string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrTokenRequired
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("token key id required")
		}
		secret, ok := v.secrets[kid]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if _, ok := v.allowedIssuers[claims.Issuer]; !ok {
		return claims, errors.New("issuer not allowed")
	}
	if claims.ID == "" {
		return claims, errors.New("jti required")
	}
	if strings.TrimSpace(expectedSubject) == "" || claims.Subject != expectedSubject {
		return claims, ErrSubjectMismatch
	}
	return claims, nil
}

// BearerToken extracts a bearer token from request header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", false
	}
	return token, true
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}

// ParseKeyMap parses "kid=secret,kid2=secret2" into a map.
func ParseKeyMap(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	pairs := strings.Split(raw, ",")
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, value, ok := strings.Cut(pair, "=")
		kid = strings.TrimSpace(kid)
		value = strings.TrimSpace(value)
		if !ok || kid == "" || value == "" {
			return nil, fmt.Errorf("invalid key entry %q", kid)
		}
		out[kid] = value
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
