package servicetoken

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	testSecret  = strings.Repeat("s", 32)
	otherSecret = strings.Repeat("o", 32)
)

func newPair(t *testing.T, signKid, verifyKid string) (*Signer, *Verifier) {
	t.Helper()
	signer, err := NewSignerWithOptions(SignerOptions{
		Secret:   testSecret,
		KeyID:    signKid,
		Issuer:   "waifugen-worker",
		Audience: "waifugen-web",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifierWithOptions(VerifierOptions{
		Secret:         testSecret,
		KeyID:          verifyKid,
		Audience:       "waifugen-web",
		AllowedIssuers: []string{"waifugen-worker"},
		Leeway:         time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return signer, verifier
}

func TestSignerVerifierRoundTrip(t *testing.T) {
	signer, verifier := newPair(t, "", "")
	token, err := signer.Sign("task-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token, "task-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "waifugen-worker" || claims.Subject != "task-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifierRejectsOtherTask(t *testing.T) {
	signer, verifier := newPair(t, "", "")
	token, err := signer.Sign("task-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token, "task-2"); !errors.Is(err, ErrSubjectMismatch) {
		t.Fatalf("expected subject mismatch, got %v", err)
	}
}

func TestSignerRequiresSecret(t *testing.T) {
	if _, err := NewSignerWithOptions(SignerOptions{Issuer: "w", Audience: "web", Secret: "short"}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestSignerClampsTTL(t *testing.T) {
	signer, verifier := newPair(t, "", "")
	token, err := signer.Sign("task-1", 365*24*time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token, "task-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl > MaxTokenTTL {
		t.Fatalf("ttl %s exceeds max", ttl)
	}
	if _, err := signer.Sign("task-1", 0); err == nil {
		t.Fatalf("expected zero ttl to fail")
	}
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	signer, _ := NewSignerWithOptions(SignerOptions{
		Secret:   testSecret,
		Issuer:   "waifugen-worker",
		Audience: "somewhere-else",
	})
	_, verifier := newPair(t, "", "")
	token, _ := signer.Sign("task-1", time.Minute)
	if _, err := verifier.Verify(token, "task-1"); err == nil {
		t.Fatalf("expected audience mismatch")
	}
}

func TestVerifierRejectsUnknownKid(t *testing.T) {
	signer, verifier := newPair(t, "kid-1", "kid-2")
	token, _ := signer.Sign("task-1", time.Minute)
	if _, err := verifier.Verify(token, "task-1"); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestVerifierAcceptsPreviousSecret(t *testing.T) {
	oldSigner, err := NewSignerWithOptions(SignerOptions{
		Secret:   otherSecret,
		KeyID:    "kid-old",
		Issuer:   "waifugen-worker",
		Audience: "waifugen-web",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifierWithOptions(VerifierOptions{
		Secret:          testSecret,
		KeyID:           "kid-new",
		PreviousSecrets: map[string]string{"kid-old": otherSecret},
		Audience:        "waifugen-web",
		AllowedIssuers:  []string{"waifugen-worker"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, _ := oldSigner.Sign("task-9", time.Minute)
	if _, err := verifier.Verify(token, "task-9"); err != nil {
		t.Fatalf("expected rotated key to verify: %v", err)
	}
}

func TestVerifierRejectsForgedSignature(t *testing.T) {
	_, verifier := newPair(t, "", "")
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "waifugen-worker",
		Subject:   "task-1",
		Audience:  jwt.ClaimStrings{"waifugen-web"},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		ID:        "jti-forged",
	})
	forged.Header["kid"] = DefaultKeyID
	signed, err := forged.SignedString([]byte(otherSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(signed, "task-1"); err == nil {
		t.Fatalf("expected forged token to fail")
	}
}

func TestVerifierRejectsFutureIssuedAt(t *testing.T) {
	_, verifier := newPair(t, "", "")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "waifugen-worker",
		Subject:   "task-1",
		Audience:  jwt.ClaimStrings{"waifugen-web"},
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(2 * time.Minute)),
		NotBefore: jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		ID:        "jti-1",
	})
	token.Header["kid"] = DefaultKeyID
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := verifier.Verify(signed, "task-1"); err == nil {
		t.Fatalf("expected future iat token to fail")
	}
}

func TestParseKeyMap(t *testing.T) {
	parsed, err := ParseKeyMap("k1=aaa,k2=bbb")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != 2 || parsed["k2"] != "bbb" {
		t.Fatalf("unexpected parsed map: %v", parsed)
	}
	if _, err := ParseKeyMap("broken"); err == nil {
		t.Fatalf("expected malformed entry to fail")
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(req)
	if !ok || token != "abc" {
		t.Fatalf("expected bearer token")
	}
	req.Header.Set("Authorization", "Basic abc")
	if _, ok := BearerToken(req); ok {
		t.Fatalf("expected basic auth to be ignored")
	}
}
