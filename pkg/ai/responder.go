package ai

import (
	"context"
	"time"

	"waifugen/pkg/domain"
)

const StubAnswer = "i agree with u"

// ChatResponder answers a user message about a creation.
type ChatResponder interface {
	Reply(ctx context.Context, creation domain.Creation, history []domain.ChatMessage, message string) (string, error)
}

// StubResponder always agrees, after an optional delay.
type StubResponder struct {
	Delay time.Duration
}

func (s StubResponder) Reply(ctx context.Context, _ domain.Creation, _ []domain.ChatMessage, _ string) (string, error) {
	if s.Delay <= 0 {
		return StubAnswer, nil
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return StubAnswer, nil
	}
}
