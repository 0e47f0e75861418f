package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"waifugen/pkg/domain"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(DriverSQLite, filepath.Join(t.TempDir(), "waifugen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *GormStore, id string, credits int) domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), domain.User{
		ID:                 id,
		Username:           "user_" + id,
		Email:              id + "@example.com",
		PasswordHash:       "hash",
		RemainingCreations: credits,
	})
	require.NoError(t, err)
	return u
}

func seedCreation(t *testing.T, s *GormStore, id, ownerID string, public bool) domain.Creation {
	t.Helper()
	c := domain.Creation{
		ID:           id,
		OwnerID:      ownerID,
		ImageKey:     "gallery/" + id + ".png",
		ThumbnailKey: "thumbnails/" + id + ".png",
		IsPublic:     public,
		DisplayName:  "Ikerada Kunitan",
		CreatedAt:    time.Now().UTC(),
	}
	model, err := creationToModel(c)
	require.NoError(t, err)
	require.NoError(t, s.db.Create(&model).Error)
	return c
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 5)

	_, err := s.CreateUser(ctx, domain.User{ID: "u2", Username: "user_u1", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = s.CreateUser(ctx, domain.User{ID: "u3", Username: "fresh", Email: "u1@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	entries, err := s.ListLedger(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ReasonSignup, entries[0].Reason)
	assert.Equal(t, 5, entries[0].BalanceAfter)
}

func TestGoogleUsersWithoutUsernameCoexist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := s.CreateUser(ctx, domain.User{
			ID:       fmt.Sprintf("g%d", i),
			Email:    fmt.Sprintf("g%d@example.com", i),
			GoogleID: fmt.Sprintf("google-%d", i),
			Verified: true,
		})
		require.NoError(t, err)
	}
	u, ok, err := s.GetUserByGoogleID(ctx, "google-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", u.ID)
	assert.True(t, u.Verified)
}

func TestMarkVerifiedClearsToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 0)
	require.NoError(t, s.SetVerificationToken(ctx, "u1", "tok"))

	ok, err := s.MarkVerified(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	u, _, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Verified)
	assert.Empty(t, u.VerificationToken)

	ok, err = s.MarkVerified(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdjustBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 3)

	balance, err := s.AdjustBalance(ctx, "u1", -1, Adjustment{Reason: domain.ReasonGeneration})
	require.NoError(t, err)
	assert.Equal(t, 2, balance)

	balance, err = s.AdjustBalance(ctx, "u1", 1, Adjustment{Reason: domain.ReasonRefund})
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestAdjustBalanceNeverGoesNegative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 0)

	_, err := s.AdjustBalance(ctx, "u1", -1, Adjustment{Reason: domain.ReasonGeneration})
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	entries, err := s.ListLedger(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAdjustBalanceUnknownUser(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AdjustBalance(context.Background(), "ghost", 1, Adjustment{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustBalanceIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 1)
	adj := Adjustment{Reason: domain.ReasonPurchase, ReferenceID: "cs_1", IdempotencyKey: "checkout:cs_1"}

	first, err := s.AdjustBalance(ctx, "u1", 10, adj)
	require.NoError(t, err)
	second, err := s.AdjustBalance(ctx, "u1", 10, adj)
	require.NoError(t, err)
	assert.Equal(t, 11, first)
	assert.Equal(t, first, second)

	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 11, balance)
}

func TestConcurrentDebitsStopAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustBalance(ctx, "u1", -1, Adjustment{Reason: domain.ReasonGeneration}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
	assert.Equal(t, 5, succeeded)
}

func TestToggleVoteParity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedUser(t, s, "voter", 0)
	seedCreation(t, s, "c1", "owner", true)

	for i := 1; i <= 4; i++ {
		likes, voted, err := s.ToggleVote(ctx, "voter", "c1")
		require.NoError(t, err)
		if i%2 == 1 {
			assert.Equal(t, 1, likes)
			assert.True(t, voted)
		} else {
			assert.Equal(t, 0, likes)
			assert.False(t, voted)
		}
	}
}

func TestToggleVoteScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "42", "owner", true)
	for _, voter := range []string{"a", "b", "c"} {
		_, _, err := s.ToggleVote(ctx, voter, "42")
		require.NoError(t, err)
	}
	c, _, err := s.GetCreation(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, 3, c.LikeCount)

	likes, voted, err := s.ToggleVote(ctx, "7", "42")
	require.NoError(t, err)
	assert.Equal(t, 4, likes)
	assert.True(t, voted)

	likes, voted, err = s.ToggleVote(ctx, "7", "42")
	require.NoError(t, err)
	assert.Equal(t, 3, likes)
	assert.False(t, voted)
}

func TestToggleVoteSelfVote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)

	likes, voted, err := s.ToggleVote(ctx, "owner", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, likes)
	assert.True(t, voted)

	var vote VoteModel
	require.NoError(t, s.db.First(&vote, "creation_id = ?", "c1").Error)
	assert.Equal(t, "owner", vote.CreatorID)
	assert.Equal(t, domain.VoteLike, vote.VoteType)
}

func TestToggleVoteMissingCreation(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.ToggleVote(context.Background(), "voter", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// The sqlite store runs on a single connection, so the two toggles serialize
// on the pool rather than on the row lock; the FOR UPDATE path only contends
// on postgres.
func TestToggleVoteConcurrentDoubleToggle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ToggleVote(ctx, "voter", "c1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var rows int64
	require.NoError(t, s.db.Model(&VoteModel{}).Where("creation_id = ?", "c1").Count(&rows).Error)
	c, _, err := s.GetCreation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.Equal(t, 0, c.LikeCount)
}

func TestToggleVotePrivateCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)

	likes, voted, err := s.ToggleVote(ctx, "fan", "c1")
	require.NoError(t, err)
	require.True(t, voted)
	require.Equal(t, 1, likes)
	require.NoError(t, s.SetCreationPublic(ctx, "c1", false))

	likes, voted, err = s.ToggleVote(ctx, "fan", "c1")
	require.NoError(t, err)
	assert.False(t, voted)
	assert.Equal(t, 0, likes)

	_, _, err = s.ToggleVote(ctx, "fan", "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	c, _, err := s.GetCreation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.LikeCount)

	likes, voted, err = s.ToggleVote(ctx, "owner", "c1")
	require.NoError(t, err)
	assert.True(t, voted)
	assert.Equal(t, 1, likes)
}

func TestObjectKeyInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)

	for key, want := range map[string]bool{
		"gallery/c1.png":    true,
		"thumbnails/c1.png": true,
		"gallery/c2.png":    false,
	} {
		got, err := s.ObjectKeyInUse(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestSaveGeneratedCreationDebitsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1", 1)

	c := domain.Creation{ID: "c1", OwnerID: "u1", ImageKey: "gallery/x.png", ThumbnailKey: "thumbnails/x.png", IsPublic: true}
	task := domain.DescriptionTask{ID: "t1", CreationID: "c1", DeadlineAt: time.Now().Add(time.Minute)}
	balance, err := s.SaveGeneratedCreation(ctx, c, task, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	got, ok, err := s.GetCreation(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.DescriptionPending, got.DescriptionStatus)

	entries, err := s.ListLedger(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ReasonGeneration, entries[0].Reason)
	assert.Equal(t, "c1", entries[0].ReferenceID)

	c2 := domain.Creation{ID: "c2", OwnerID: "u1", ImageKey: "gallery/y.png", ThumbnailKey: "thumbnails/y.png"}
	task2 := domain.DescriptionTask{ID: "t2", CreationID: "c2", DeadlineAt: time.Now().Add(time.Minute)}
	_, err = s.SaveGeneratedCreation(ctx, c2, task2, 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	_, ok, err = s.GetCreation(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, ok, "creation must roll back with the failed debit")
	_, ok, err = s.GetDescriptionTask(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPublicCreationsMarksViewerLikes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)
	seedCreation(t, s, "c2", "owner", true)
	seedCreation(t, s, "c3", "owner", false)
	_, _, err := s.ToggleVote(ctx, "viewer", "c2")
	require.NoError(t, err)
	_, _, err = s.ToggleVote(ctx, "other", "c2")
	require.NoError(t, err)

	items, err := s.ListPublicCreations(ctx, "viewer", ListOptions{SortField: SortByLikes})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c2", items[0].ID)
	assert.True(t, items[0].IsLiked)
	assert.Equal(t, 2, items[0].LikeCount)
	assert.Equal(t, "c1", items[1].ID)
	assert.False(t, items[1].IsLiked)

	asc, err := s.ListPublicCreations(ctx, "viewer", ListOptions{SortField: SortByLikes, Ascending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, asc, 1)
	assert.Equal(t, "c1", asc[0].ID)
}

func TestDeleteCreationRemovesDependents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "owner", 0)
	seedCreation(t, s, "c1", "owner", true)
	_, _, err := s.ToggleVote(ctx, "voter", "c1")
	require.NoError(t, err)
	require.NoError(t, s.AppendChatMessage(ctx, domain.ChatMessage{
		ChatID:     domain.ChatID("owner", "c1"),
		UserID:     "owner",
		CreationID: "c1",
		Content:    "hi",
		Sender:     domain.SenderUser,
	}))

	require.NoError(t, s.DeleteCreation(ctx, "c1"))
	assert.ErrorIs(t, s.DeleteCreation(ctx, "c1"), ErrNotFound)

	var votes int64
	require.NoError(t, s.db.Model(&VoteModel{}).Count(&votes).Error)
	assert.Zero(t, votes)
	msgs, err := s.ListChatMessages(ctx, domain.ChatID("owner", "c1"), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatMessagesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chatID := domain.ChatID("u1", "c1")
	base := time.Now().UTC()
	for i, sender := range []domain.Sender{domain.SenderUser, domain.SenderAI, domain.SenderUser} {
		require.NoError(t, s.AppendChatMessage(ctx, domain.ChatMessage{
			ChatID:     chatID,
			UserID:     "u1",
			CreationID: "c1",
			Content:    fmt.Sprintf("m%d", i),
			Sender:     sender,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	msgs, err := s.ListChatMessages(ctx, chatID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].Content)
	assert.Equal(t, "m2", msgs[1].Content)
}
