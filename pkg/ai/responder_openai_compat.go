package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"waifugen/pkg/domain"
)

const maxHistoryMessages = 20

// OpenAICompatResponder role-plays the creation through any OpenAI-compatible
// /v1/chat/completions endpoint (vLLM, LiteLLM, LocalAI, OpenRouter).
type OpenAICompatResponder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatResponder builds a responder. baseURL should include the /v1
// prefix, e.g. "http://localhost:8000/v1". apiKey may be empty for local models.
func NewOpenAICompatResponder(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatResponder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatResponder{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *OpenAICompatResponder) Reply(ctx context.Context, creation domain.Creation, history []domain.ChatMessage, message string) (string, error) {
	if r.model == "" {
		return "", fmt.Errorf("openai-compat chat model required")
	}
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages := make([]oaiMessage, 0, len(history)+2)
	messages = append(messages, oaiMessage{Role: "system", Content: personaPrompt(creation)})
	for _, m := range history {
		role := "user"
		if m.Sender == domain.SenderAI {
			role = "assistant"
		}
		messages = append(messages, oaiMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: message})

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["Authorization"] = "Bearer " + r.apiKey
	}
	var resp oaiChatResponse
	if err := postJSON(ctx, r.httpClient, "openai-compat", r.baseURL+"/chat/completions", headers,
		oaiChatRequest{Model: r.model, Messages: messages}, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return text, nil
}

func personaPrompt(c domain.Creation) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(c.DisplayName)
	b.WriteString(", an anime character. Stay in character and answer briefly.")
	if c.Description != "" {
		b.WriteString(" About you: ")
		b.WriteString(c.Description)
	}
	return b.String()
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}
