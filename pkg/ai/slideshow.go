package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type SlideshowRequest struct {
	VideoName   string   `json:"videoName"`
	Duration    int      `json:"duration"`
	FPS         int      `json:"fps"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Images      []string `json:"images"`
}

// SlideshowClient renders a video from image URLs on the media service.
type SlideshowClient interface {
	GenerateSlideshow(ctx context.Context, req SlideshowRequest) (json.RawMessage, error)
}

type HTTPSlideshowClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSlideshowClient(baseURL string, timeout time.Duration) *HTTPSlideshowClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSlideshowClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateSlideshow returns the media service reply untouched.
func (c *HTTPSlideshowClient) GenerateSlideshow(ctx context.Context, req SlideshowRequest) (json.RawMessage, error) {
	var reply json.RawMessage
	if err := postJSON(ctx, c.httpClient, "slideshow", c.baseURL+"/generateSlideshow/", nil, req, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}
