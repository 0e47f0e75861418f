package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"waifugen/internal/util"
	"waifugen/pkg/store"
)

const maxDescriptionLength = 4000

// DescriptionCallback is the body the description service posts back.
type DescriptionCallback struct {
	CreationID string `json:"creationId"`
	TaskID     string `json:"taskId"`
	Answer     string `json:"answer"`
}

// CompleteDescription accepts a description for an open task. The bearer
// token must have been issued for exactly this task.
func (a *App) CompleteDescription(ctx context.Context, token string, cb DescriptionCallback) error {
	cb.TaskID = strings.TrimSpace(cb.TaskID)
	cb.CreationID = strings.TrimSpace(cb.CreationID)
	if cb.TaskID == "" || token == "" {
		return ErrInvalidCallbackToken
	}
	if _, err := a.callbackVerifier.Verify(token, cb.TaskID); err != nil {
		util.LoggerFromContext(ctx).Warn("callback token rejected", "task_id", cb.TaskID, "err", err)
		return ErrInvalidCallbackToken
	}
	answer := strings.TrimSpace(cb.Answer)
	if answer == "" || utf8.RuneCountInString(answer) > maxDescriptionLength {
		return ErrInvalidDescription
	}
	if cb.CreationID == "" {
		return ErrTaskNotFound
	}
	err := a.store.CompleteDescription(ctx, cb.TaskID, cb.CreationID, answer)
	switch {
	case err == nil:
		a.metrics.DescriptionTask("completed")
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrTaskClosed):
		a.metrics.DescriptionTask("late")
		return ErrTaskClosed
	default:
		return fmt.Errorf("complete description: %w", err)
	}
}
