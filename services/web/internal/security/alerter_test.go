package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter := NewAuditAlerter(client, "test:alerts")
	if alerter == nil {
		t.Fatalf("expected alerter")
	}
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newTestAlerter(t)
	var lastTriggered bool
	for i := 0; i < 10; i++ {
		result, err := alerter.Observe(context.Background(), "web.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		lastTriggered = result.Triggered
	}
	if !lastTriggered {
		t.Fatalf("expected alert threshold to trigger")
	}
}

func TestAuditAlerterWebhookSignatureThreshold(t *testing.T) {
	alerter := newTestAlerter(t)
	for i := 1; i <= 5; i++ {
		result, err := alerter.Observe(context.Background(), "web.webhook.signature", "fail", "10.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered != (i == 5) {
			t.Fatalf("attempt %d: triggered=%v", i, result.Triggered)
		}
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	alerter := newTestAlerter(t)
	result, err := alerter.Observe(context.Background(), "web.custom", "success", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered {
		t.Fatalf("unexpected trigger for unknown rule")
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var alerter *AuditAlerter
	if _, err := alerter.Observe(context.Background(), "web.login", "fail", "ip"); err != nil {
		t.Fatalf("nil alerter should be a no-op: %v", err)
	}
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("nil client should disable alerting")
	}
}
