package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read exposition: %v", err)
	}
	return string(body)
}

func TestObserveRequestUsesRoutePattern(t *testing.T) {
	m := New("web")
	m.ObserveRequest(http.MethodGet, "GET /chat/{id}", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "GET /chat/{id}", http.StatusOK, 30*time.Millisecond)

	body := scrape(t, m)
	want := `http_requests_total{method="GET",path="/chat/{id}",service="web",status="200"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("missing %q in:\n%s", want, body)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New("web")
	m.Generation("success")
	m.CreditsGranted(10)
	m.CreditsGranted(-3)
	m.DescriptionTask("expired")

	body := scrape(t, m)
	for _, want := range []string{
		`waifugen_generations_total{outcome="success"} 1`,
		`waifugen_credits_granted_total 10`,
		`waifugen_description_tasks_total{outcome="expired"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestRoutePath(t *testing.T) {
	cases := map[string]string{
		"GET /chat/{id}": "/chat/{id}",
		"/healthz":       "/healthz",
		"unmatched":      "unmatched",
	}
	for in, want := range cases {
		if got := routePath(in); got != want {
			t.Fatalf("routePath(%q) = %q, want %q", in, got, want)
		}
	}
}
