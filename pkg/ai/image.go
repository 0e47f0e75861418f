package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultImageEndpoint  = "https://api.getimg.ai/v1/stable-diffusion/text-to-image"
	DefaultImageModel     = "dark-sushi-mix-v2-25"
	DefaultNegativePrompt = "disfigured, 3D, cgi, extra limbs, bad quality, poor quality"
)

// ImageRequest is one text-to-image call.
type ImageRequest struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	Guidance       float64 `json:"guidance"`
	Scheduler      string  `json:"scheduler"`
	OutputFormat   string  `json:"output_format"`
}

// NewImageRequest fills the fixed generation parameters around prompt.
func NewImageRequest(model, prompt string) ImageRequest {
	if strings.TrimSpace(model) == "" {
		model = DefaultImageModel
	}
	return ImageRequest{
		Model:          model,
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		Width:          512,
		Height:         768,
		Steps:          20,
		Guidance:       7,
		Scheduler:      "euler_a",
		OutputFormat:   "png",
	}
}

// ImageResult is the decoded reply.
type ImageResult struct {
	Image  []byte
	Base64 string
	Seed   int64
	Cost   float64
}

// ImageGenerator produces an image from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// GetimgClient calls the getimg.ai text-to-image API.
type GetimgClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewGetimgClient(endpoint, apiKey string, timeout time.Duration) *GetimgClient {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultImageEndpoint
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GetimgClient{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type getimgResponse struct {
	Image string  `json:"image"`
	Seed  int64   `json:"seed"`
	Cost  float64 `json:"cost"`
}

func (c *GetimgClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if c.apiKey == "" {
		return ImageResult{}, fmt.Errorf("image api key required")
	}
	var resp getimgResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, "getimg", c.endpoint, headers, req, &resp); err != nil {
		return ImageResult{}, err
	}
	if resp.Image == "" {
		return ImageResult{}, ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return ImageResult{}, fmt.Errorf("decode image: %w", err)
	}
	return ImageResult{Image: data, Base64: resp.Image, Seed: resp.Seed, Cost: resp.Cost}, nil
}
