package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"waifugen/pkg/ai"
)

const (
	maxSlideshowImages   = 50
	maxSlideshowDuration = 600
	maxSlideshowFPS      = 60
)

// SlideshowInput is the body of POST /generate_slideshow. Images are paths
// relative to the public base URL.
type SlideshowInput struct {
	VideoName string   `json:"videoName"`
	Duration  int      `json:"duration"`
	FPS       int      `json:"fps"`
	Images    []string `json:"images"`
}

// GenerateSlideshow forwards the request to the media service with absolute
// image URLs and returns its reply unchanged.
func (a *App) GenerateSlideshow(ctx context.Context, in SlideshowInput) (json.RawMessage, error) {
	if a.slideshow == nil {
		return nil, ErrSlideshowDisabled
	}
	name := strings.TrimSpace(in.VideoName)
	if name == "" || len(in.Images) == 0 || len(in.Images) > maxSlideshowImages {
		return nil, ErrInvalidSlideshow
	}
	if in.Duration < 1 || in.Duration > maxSlideshowDuration || in.FPS < 1 || in.FPS > maxSlideshowFPS {
		return nil, ErrInvalidSlideshow
	}
	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		img = strings.TrimSpace(img)
		if img == "" || strings.Contains(img, "://") || strings.Contains(img, "..") {
			return nil, fmt.Errorf("%w: bad image path %q", ErrInvalidSlideshow, img)
		}
		images = append(images, a.baseURL+"/"+strings.TrimLeft(img, "/"))
	}
	reply, err := a.slideshow.GenerateSlideshow(ctx, ai.SlideshowRequest{
		VideoName: name,
		Duration:  in.Duration,
		FPS:       in.FPS,
		Images:    images,
	})
	if err != nil {
		return nil, fmt.Errorf("generate slideshow: %w", err)
	}
	return reply, nil
}
