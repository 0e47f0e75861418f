package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"waifugen/internal/util"
	"waifugen/pkg/ai"
	"waifugen/pkg/domain"
	"waifugen/pkg/imaging"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
)

const generationCost = 1

// GenerateInput is the creator form.
type GenerateInput struct {
	domain.Attributes
	WaifuName string `json:"waifuName"`
}

// GenerateResult is returned to the client after a successful generation.
type GenerateResult struct {
	Creation           domain.Creation `json:"creation"`
	Image              string          `json:"image"`
	RemainingCreations int             `json:"remainingCreations"`
}

// Generate calls the image API once, stores the image and its thumbnail, then
// persists the creation, the debit and the description task together. The
// description job is enqueued last; a queue failure does not fail the request.
func (a *App) Generate(ctx context.Context, user domain.User, in GenerateInput) (GenerateResult, error) {
	logger := util.LoggerFromContext(ctx)
	if err := ai.ValidateAttributes(in.Attributes); err != nil {
		return GenerateResult{}, err
	}
	name := strings.TrimSpace(in.WaifuName)
	if name == "" {
		name = RandomName()
	} else if err := ai.ValidateAttribute("waifuName", name); err != nil {
		return GenerateResult{}, err
	}

	req := ai.NewImageRequest(a.imageModel, ai.BuildPrompt(in.Attributes))
	img, err := a.images.GenerateImage(ctx, req)
	if err != nil {
		a.metrics.Generation("api_error")
		logger.Error("image generation failed", "user_id", user.ID, "err", err)
		return GenerateResult{}, ErrGenerationFailed
	}
	thumb, err := imaging.Thumbnail(img.Image, imaging.ThumbnailWidth, imaging.ThumbnailHeight)
	if err != nil {
		a.metrics.Generation("api_error")
		logger.Error("thumbnail failed", "user_id", user.ID, "err", err)
		return GenerateResult{}, ErrGenerationFailed
	}

	imageKey := storage.ImageKey(img.Image)
	thumbKey := storage.ThumbnailKey(img.Image)
	if err := a.objects.Put(ctx, imageKey, bytes.NewReader(img.Image), int64(len(img.Image)), "image/png"); err != nil {
		return GenerateResult{}, fmt.Errorf("store image: %w", err)
	}
	if err := a.objects.Put(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/png"); err != nil {
		a.deleteObjects(ctx, imageKey)
		return GenerateResult{}, fmt.Errorf("store thumbnail: %w", err)
	}

	now := a.now()
	creation := domain.Creation{
		ID:                uuid.NewString(),
		OwnerID:           user.ID,
		ImageKey:          imageKey,
		ThumbnailKey:      thumbKey,
		IsPublic:          true,
		DisplayName:       name,
		DescriptionStatus: domain.DescriptionPending,
		Attributes:        in.Attributes,
		GenerationParams: domain.GenerationParams{
			Model:          req.Model,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Width:          req.Width,
			Height:         req.Height,
			Scheduler:      req.Scheduler,
			Steps:          req.Steps,
			Guidance:       req.Guidance,
			Seed:           img.Seed,
			Cost:           img.Cost,
		},
		CreatedAt: now,
	}
	task := domain.DescriptionTask{
		ID:         uuid.NewString(),
		CreationID: creation.ID,
		Status:     domain.DescriptionPending,
		DeadlineAt: now.Add(a.descriptionTimeout),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	balance, err := a.store.SaveGeneratedCreation(ctx, creation, task, generationCost)
	if err != nil {
		a.deleteObjects(ctx, imageKey, thumbKey)
		if errors.Is(err, store.ErrInsufficientCredits) {
			a.metrics.Generation("insufficient_credits")
			return GenerateResult{}, ErrNotEnoughCredits
		}
		return GenerateResult{}, fmt.Errorf("save creation: %w", err)
	}

	if _, err := a.queue.Enqueue(ctx, task.ID); err != nil {
		logger.Error("enqueue description job failed", "task_id", task.ID, "creation_id", creation.ID, "err", err)
		if recErr := a.store.RecordTaskError(ctx, task.ID, "enqueue: "+err.Error(), true); recErr != nil {
			logger.Error("record task error failed", "task_id", task.ID, "err", recErr)
		}
		creation.DescriptionStatus = domain.DescriptionFailed
	}
	a.metrics.Generation("success")

	creation = a.withURLs(ctx, creation)
	return GenerateResult{
		Creation:           creation,
		Image:              img.Base64,
		RemainingCreations: balance,
	}, nil
}

// deleteObjects is best effort; orphans are only logged. Keys are content
// addressed, so an object another creation still references is kept.
func (a *App) deleteObjects(ctx context.Context, keys ...string) {
	logger := util.LoggerFromContext(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		inUse, err := a.store.ObjectKeyInUse(ctx, key)
		if err != nil {
			logger.Warn("object reference check failed", "key", key, "err", err)
			continue
		}
		if inUse {
			continue
		}
		if err := a.objects.Delete(ctx, key); err != nil {
			logger.Warn("delete object failed", "key", key, "err", err)
		}
	}
}
