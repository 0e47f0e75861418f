package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithRequestLogReportsMatchedRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /creations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var (
		gotMethod string
		gotRoute  string
		gotStatus int
	)
	h := WithRequestLog("web", func(method, route string, status int, _ time.Duration) {
		gotMethod, gotRoute, gotStatus = method, route, status
	}, mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/creations/abc", nil))
	if gotMethod != http.MethodGet || gotRoute != "GET /creations/{id}" || gotStatus != http.StatusTeapot {
		t.Fatalf("unexpected observation: %s %s %d", gotMethod, gotRoute, gotStatus)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if gotRoute != "unmatched" || gotStatus != http.StatusNotFound {
		t.Fatalf("expected unmatched 404, got %s %d", gotRoute, gotStatus)
	}
}

func TestWithRequestLogDefaultsStatusOnWrite(t *testing.T) {
	var gotStatus int
	h := WithRequestLog("", func(_, _ string, status int, _ time.Duration) {
		gotStatus = status
	}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if gotStatus != http.StatusOK {
		t.Fatalf("expected 200, got %d", gotStatus)
	}
}
