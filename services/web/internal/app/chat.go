package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"waifugen/pkg/domain"
)

const (
	maxChatMessageLength = 2000
	chatHistoryLimit     = 200
)

// ChatView is a creation with the viewer's conversation about it.
type ChatView struct {
	Creation domain.Creation      `json:"creation"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ChatHistory loads the conversation between user and a visible creation.
func (a *App) ChatHistory(ctx context.Context, user domain.User, creationID string) (ChatView, error) {
	c, err := a.visibleCreation(ctx, user, creationID)
	if err != nil {
		return ChatView{}, err
	}
	msgs, err := a.store.ListChatMessages(ctx, domain.ChatID(user.ID, c.ID), chatHistoryLimit)
	if err != nil {
		return ChatView{}, err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return ChatView{Creation: a.withURLs(ctx, c), Messages: msgs}, nil
}

// SendChatMessage stores the user's message, asks the responder and stores
// the answer.
func (a *App) SendChatMessage(ctx context.Context, user domain.User, creationID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxChatMessageLength {
		return "", ErrInvalidMessage
	}
	c, err := a.visibleCreation(ctx, user, creationID)
	if err != nil {
		return "", err
	}
	chatID := domain.ChatID(user.ID, c.ID)
	history, err := a.store.ListChatMessages(ctx, chatID, chatHistoryLimit)
	if err != nil {
		return "", err
	}
	if err := a.store.AppendChatMessage(ctx, domain.ChatMessage{
		ChatID:     chatID,
		UserID:     user.ID,
		CreationID: c.ID,
		Content:    message,
		Sender:     domain.SenderUser,
		CreatedAt:  a.now(),
	}); err != nil {
		return "", fmt.Errorf("store user message: %w", err)
	}
	answer, err := a.responder.Reply(ctx, c, history, message)
	if err != nil {
		return "", fmt.Errorf("chat reply: %w", err)
	}
	if err := a.store.AppendChatMessage(ctx, domain.ChatMessage{
		ChatID:     chatID,
		UserID:     user.ID,
		CreationID: c.ID,
		Content:    answer,
		Sender:     domain.SenderAI,
		CreatedAt:  a.now(),
	}); err != nil {
		return "", fmt.Errorf("store ai message: %w", err)
	}
	return answer, nil
}
