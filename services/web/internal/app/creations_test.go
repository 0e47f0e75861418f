package app

import (
	"context"
	"errors"
	"testing"

	"waifugen/pkg/ai"
	"waifugen/pkg/domain"
	"waifugen/pkg/store"
)

func TestParseListOptions(t *testing.T) {
	cases := []struct {
		field, order, limit, offset string
		want                        store.ListOptions
	}{
		{"", "", "", "", store.ListOptions{SortField: store.SortByCreationTime}},
		{"likes", "asc", "10", "20", store.ListOptions{SortField: store.SortByLikes, Ascending: true, Limit: 10, Offset: 20}},
		{"password; drop", "sideways", "-1", "x", store.ListOptions{SortField: store.SortByCreationTime}},
		{"creationTime", "DESC", "5000", "0", store.ListOptions{SortField: store.SortByCreationTime, Limit: 100}},
	}
	for _, tc := range cases {
		if got := ParseListOptions(tc.field, tc.order, tc.limit, tc.offset); got != tc.want {
			t.Fatalf("ParseListOptions(%q,%q,%q,%q) = %+v, want %+v", tc.field, tc.order, tc.limit, tc.offset, got, tc.want)
		}
	}
}

func TestDashboardShowsLatestThree(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "u1", 5, true)
	for i := 0; i < 4; i++ {
		env.generate(t, user)
	}
	dash, err := env.app.Dashboard(context.Background(), user)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(dash.RecentCreations) != 3 {
		t.Fatalf("recent = %d, want 3", len(dash.RecentCreations))
	}
}

func TestCreationVisibilityAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner", 2, true)
	other := env.seedUser(t, "other", 0, true)
	c := env.generate(t, owner)

	if err := env.app.SetCreationPublic(ctx, other, c.ID, false); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.app.SetCreationPublic(ctx, owner, c.ID, false); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if _, err := env.app.GetCreation(ctx, other, c.ID); !errors.Is(err, ErrCreationNotFound) {
		t.Fatalf("private creation visible to other: %v", err)
	}
	got, err := env.app.GetCreation(ctx, owner, c.ID)
	if err != nil || got.ImageURL == "" {
		t.Fatalf("owner view: %+v %v", got, err)
	}

	items, err := env.app.Gallery(ctx, other, store.ListOptions{})
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("private creation listed in gallery")
	}
}

func TestDeleteCreationOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner", 2, true)
	other := env.seedUser(t, "other", 0, true)
	c := env.generate(t, owner)

	if err := env.app.DeleteCreation(ctx, other, c.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.app.DeleteCreation(ctx, owner, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := env.store.GetCreation(ctx, c.ID); ok {
		t.Fatalf("creation still present")
	}
	if _, err := env.objects.Get(ctx, c.ImageKey); err == nil {
		t.Fatalf("image object still present")
	}
}

func TestToggleLikeTwiceRestoresCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner", 1, true)
	fan := env.seedUser(t, "fan", 0, true)
	c := env.generate(t, owner)

	likes, liked, err := env.app.ToggleLike(ctx, fan, c.ID)
	if err != nil || likes != 1 || !liked {
		t.Fatalf("first toggle = %d %v %v", likes, liked, err)
	}
	items, _ := env.app.Gallery(ctx, fan, store.ListOptions{})
	if len(items) != 1 || !items[0].IsLiked {
		t.Fatalf("gallery should flag the like: %+v", items)
	}
	likes, liked, err = env.app.ToggleLike(ctx, fan, c.ID)
	if err != nil || likes != 0 || liked {
		t.Fatalf("second toggle = %d %v %v", likes, liked, err)
	}
	if _, _, err := env.app.ToggleLike(ctx, fan, "missing"); !errors.Is(err, ErrCreationNotFound) {
		t.Fatalf("expected ErrCreationNotFound, got %v", err)
	}
}

func TestToggleLikeWithdrawAfterHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner", 1, true)
	fan := env.seedUser(t, "fan", 0, true)
	c := env.generate(t, owner)

	if _, _, err := env.app.ToggleLike(ctx, fan, c.ID); err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := env.app.SetCreationPublic(ctx, owner, c.ID, false); err != nil {
		t.Fatalf("hide: %v", err)
	}
	likes, liked, err := env.app.ToggleLike(ctx, fan, c.ID)
	if err != nil || likes != 0 || liked {
		t.Fatalf("withdraw = %d %v %v", likes, liked, err)
	}
	if _, _, err := env.app.ToggleLike(ctx, fan, c.ID); !errors.Is(err, ErrCreationNotFound) {
		t.Fatalf("expected ErrCreationNotFound for a new like, got %v", err)
	}
	got, _, err := env.store.GetCreation(ctx, c.ID)
	if err != nil || got.LikeCount != 0 {
		t.Fatalf("likeCount = %d, err %v", got.LikeCount, err)
	}
}

func TestDeleteCreationKeepsSharedImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner", 2, true)
	env.images.fixed = true
	first := env.generate(t, owner)
	second := env.generate(t, owner)
	if first.ImageKey != second.ImageKey {
		t.Fatalf("expected identical content keys, got %q and %q", first.ImageKey, second.ImageKey)
	}

	if err := env.app.DeleteCreation(ctx, owner, first.ID); err != nil {
		t.Fatalf("delete first: %v", err)
	}
	for _, key := range []string{second.ImageKey, second.ThumbnailKey} {
		rc, err := env.objects.Get(ctx, key)
		if err != nil {
			t.Fatalf("shared object %s removed: %v", key, err)
		}
		_ = rc.Close()
	}

	if err := env.app.DeleteCreation(ctx, owner, second.ID); err != nil {
		t.Fatalf("delete second: %v", err)
	}
	if _, err := env.objects.Get(ctx, second.ImageKey); err == nil {
		t.Fatalf("unreferenced image still present")
	}
}

func TestChatStoresBothSides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "u1", 1, true)
	c := env.generate(t, user)

	answer, err := env.app.SendChatMessage(ctx, user, c.ID, "  hello there  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if answer != ai.StubAnswer {
		t.Fatalf("answer = %q", answer)
	}
	view, err := env.app.ChatHistory(ctx, user, c.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(view.Messages))
	}
	first, second := view.Messages[0], view.Messages[1]
	if first.Sender != domain.SenderUser || first.Content != "hello there" || first.ChatID != domain.ChatID(user.ID, c.ID) {
		t.Fatalf("unexpected user message: %+v", first)
	}
	if second.Sender != domain.SenderAI || second.Content != ai.StubAnswer {
		t.Fatalf("unexpected ai message: %+v", second)
	}

	if _, err := env.app.SendChatMessage(ctx, user, c.ID, "   "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestCreditsView(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "u1", 2, true)
	env.generate(t, user)

	view, err := env.app.Credits(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("credits: %v", err)
	}
	if view.RemainingCreations != 1 || len(view.Entries) != 2 {
		t.Fatalf("unexpected credits view: %+v", view)
	}
	ok, err := env.app.HasSufficientBalance(context.Background(), user.ID, 0)
	if err != nil || !ok {
		t.Fatalf("expected sufficient balance: %v %v", ok, err)
	}
}

func TestGenerateSlideshowPrefixesBaseURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reply, err := env.app.GenerateSlideshow(ctx, SlideshowInput{
		VideoName: "summer",
		Duration:  10,
		FPS:       24,
		Images:    []string{"/media/gallery/a.png", "media/gallery/b.png"},
	})
	if err != nil {
		t.Fatalf("slideshow: %v", err)
	}
	if string(reply) != `{"video":"ok"}` {
		t.Fatalf("reply = %s", reply)
	}
	want := []string{testBaseURL + "/media/gallery/a.png", testBaseURL + "/media/gallery/b.png"}
	for i, img := range env.slides.got.Images {
		if img != want[i] {
			t.Fatalf("image %d = %q, want %q", i, img, want[i])
		}
	}

	bad := []SlideshowInput{
		{VideoName: "x", Duration: 10, FPS: 24},
		{VideoName: "x", Duration: 0, FPS: 24, Images: []string{"a.png"}},
		{VideoName: "x", Duration: 10, FPS: 24, Images: []string{"https://evil.test/a.png"}},
		{VideoName: "x", Duration: 10, FPS: 24, Images: []string{"../secret"}},
	}
	for _, in := range bad {
		if _, err := env.app.GenerateSlideshow(ctx, in); !errors.Is(err, ErrInvalidSlideshow) {
			t.Fatalf("input %+v: expected ErrInvalidSlideshow, got %v", in, err)
		}
	}
}
