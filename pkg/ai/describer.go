package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// DescriptionRequest asks the description service to caption a creation and
// report back to CallbackURL with CallbackToken.
type DescriptionRequest struct {
	CreationID    string `json:"creationId"`
	TaskID        string `json:"taskId"`
	Name          string `json:"name"`
	Prompt        string `json:"prompt"`
	ImageURL      string `json:"imgUrl"`
	CallbackURL   string `json:"callback_url"`
	CallbackToken string `json:"callback_token"`
}

// Describer hands a creation to the description service.
type Describer interface {
	RequestDescription(ctx context.Context, req DescriptionRequest) error
}

// HTTPDescriber posts to <baseURL>/getCreationDescription/.
type HTTPDescriber struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDescriber(baseURL string, timeout time.Duration) *HTTPDescriber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDescriber{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDescriber) RequestDescription(ctx context.Context, req DescriptionRequest) error {
	return postJSON(ctx, d.httpClient, "describer", d.baseURL+"/getCreationDescription/", nil, req, nil)
}
