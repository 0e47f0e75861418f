package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"waifugen/internal/util"
	"waifugen/pkg/domain"
	"waifugen/pkg/store"
)

const (
	dashboardRecent = 3
	maxPageSize     = 100
)

// Dashboard is the landing view of a signed-in user.
type Dashboard struct {
	User            domain.User       `json:"user"`
	RecentCreations []domain.Creation `json:"recentCreations"`
}

// ParseListOptions reads sortField, sortOrder, limit and offset. Unknown
// values fall back to the newest-first default.
func ParseListOptions(sortField, sortOrder, limit, offset string) store.ListOptions {
	opts := store.ListOptions{SortField: store.SortByCreationTime}
	if store.SortField(sortField) == store.SortByLikes {
		opts.SortField = store.SortByLikes
	}
	opts.Ascending = strings.EqualFold(sortOrder, "asc")
	if n, err := strconv.Atoi(limit); err == nil && n > 0 {
		opts.Limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(offset); err == nil && n > 0 {
		opts.Offset = n
	}
	return opts
}

func (a *App) Dashboard(ctx context.Context, user domain.User) (Dashboard, error) {
	recent, err := a.store.ListCreationsByOwner(ctx, user.ID, store.ListOptions{
		SortField: store.SortByCreationTime,
		Limit:     dashboardRecent,
	})
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{User: user, RecentCreations: a.withURLsAll(ctx, recent)}, nil
}

// MyCreations lists the user's own creations.
func (a *App) MyCreations(ctx context.Context, user domain.User, opts store.ListOptions) ([]domain.Creation, error) {
	creations, err := a.store.ListCreationsByOwner(ctx, user.ID, opts)
	if err != nil {
		return nil, err
	}
	return a.withURLsAll(ctx, creations), nil
}

// Gallery lists public creations flagged with the viewer's likes.
func (a *App) Gallery(ctx context.Context, viewer domain.User, opts store.ListOptions) ([]domain.GalleryItem, error) {
	items, err := a.store.ListPublicCreations(ctx, viewer.ID, opts)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Creation = a.withURLs(ctx, items[i].Creation)
	}
	return items, nil
}

// GetCreation returns a creation the viewer owns or that is public.
func (a *App) GetCreation(ctx context.Context, viewer domain.User, id string) (domain.Creation, error) {
	c, err := a.visibleCreation(ctx, viewer, id)
	if err != nil {
		return domain.Creation{}, err
	}
	return a.withURLs(ctx, c), nil
}

// DeleteCreation removes an owned creation and then its stored images.
func (a *App) DeleteCreation(ctx context.Context, user domain.User, id string) error {
	c, err := a.ownedCreation(ctx, user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteCreation(ctx, c.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCreationNotFound
		}
		return fmt.Errorf("delete creation: %w", err)
	}
	a.deleteObjects(ctx, c.ImageKey, c.ThumbnailKey)
	return nil
}

// SetCreationPublic toggles gallery visibility of an owned creation.
func (a *App) SetCreationPublic(ctx context.Context, user domain.User, id string, isPublic bool) error {
	c, err := a.ownedCreation(ctx, user, id)
	if err != nil {
		return err
	}
	if err := a.store.SetCreationPublic(ctx, c.ID, isPublic); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCreationNotFound
		}
		return err
	}
	return nil
}

// ToggleLike flips the user's like. New likes need a visible creation, but a
// like placed before the creation went private can still be withdrawn.
func (a *App) ToggleLike(ctx context.Context, user domain.User, id string) (int, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false, ErrCreationNotFound
	}
	likes, liked, err := a.store.ToggleVote(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, ErrCreationNotFound
		}
		return 0, false, err
	}
	return likes, liked, nil
}

func (a *App) visibleCreation(ctx context.Context, viewer domain.User, id string) (domain.Creation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Creation{}, ErrCreationNotFound
	}
	c, ok, err := a.store.GetCreation(ctx, id)
	if err != nil {
		return domain.Creation{}, err
	}
	if !ok || (!c.IsPublic && c.OwnerID != viewer.ID) {
		return domain.Creation{}, ErrCreationNotFound
	}
	return c, nil
}

func (a *App) ownedCreation(ctx context.Context, user domain.User, id string) (domain.Creation, error) {
	c, err := a.visibleCreation(ctx, user, id)
	if err != nil {
		return domain.Creation{}, err
	}
	if c.OwnerID != user.ID {
		return domain.Creation{}, ErrNotOwner
	}
	return c, nil
}

func (a *App) withURLsAll(ctx context.Context, creations []domain.Creation) []domain.Creation {
	if creations == nil {
		return []domain.Creation{}
	}
	for i := range creations {
		creations[i] = a.withURLs(ctx, creations[i])
	}
	return creations
}

// withURLs presigns the image and thumbnail; failures leave the URL empty.
func (a *App) withURLs(ctx context.Context, c domain.Creation) domain.Creation {
	if c.ImageKey != "" {
		if u, err := a.objects.PresignGet(ctx, c.ImageKey, a.presignTTL); err == nil {
			c.ImageURL = u
		} else {
			util.LoggerFromContext(ctx).Warn("presign image failed", "key", c.ImageKey, "err", err)
		}
	}
	if c.ThumbnailKey != "" {
		if u, err := a.objects.PresignGet(ctx, c.ThumbnailKey, a.presignTTL); err == nil {
			c.ThumbnailURL = u
		}
	}
	return c
}
