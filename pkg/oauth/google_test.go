package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func newFakeGoogle(t *testing.T, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "g-123",
			"email":          "Neo@Example.com",
			"email_verified": verified,
			"name":           "Neo",
			"picture":        "https://img/neo.png",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app/auth/google/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		UserInfoURL:  srv.URL + "/userinfo",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestGoogleProviderExchange(t *testing.T) {
	p := newTestProvider(t, newFakeGoogle(t, true))
	profile, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if profile.ID != "g-123" || profile.Email != "neo@example.com" || profile.AvatarURL != "https://img/neo.png" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatalf("expected bad code to fail")
	}
}

func TestGoogleProviderRejectsUnverifiedEmail(t *testing.T) {
	p := newTestProvider(t, newFakeGoogle(t, false))
	if _, err := p.Exchange(context.Background(), "good-code"); !errors.Is(err, ErrEmailUnverified) {
		t.Fatalf("expected ErrEmailUnverified, got %v", err)
	}
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	p := newTestProvider(t, newFakeGoogle(t, true))
	state, err := NewState()
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	u, err := url.Parse(p.AuthCodeURL(state))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != state || q.Get("client_id") != "client" {
		t.Fatalf("unexpected auth url query: %v", q)
	}
}
