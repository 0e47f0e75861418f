package store

import (
	"context"
	"time"

	"waifugen/pkg/domain"
)

// SortField names the columns a creation listing may be ordered by.
type SortField string

const (
	SortByCreationTime SortField = "creationTime"
	SortByLikes        SortField = "likes"
)

// ListOptions controls ordering and paging of creation listings.
type ListOptions struct {
	SortField SortField
	Ascending bool
	Limit     int
	Offset    int
}

// Adjustment describes why a balance moved.
type Adjustment struct {
	Reason         domain.LedgerReason
	ReferenceID    string
	IdempotencyKey string
}

// Store defines persistence operations for users, credits, creations, votes, chats,
// description tasks and payment fulfillments.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, bool, error)
	LinkGoogleAccount(ctx context.Context, userID, googleID, avatarURL string) error
	SetVerificationToken(ctx context.Context, userID, token string) error
	MarkVerified(ctx context.Context, email string) (bool, error)

	// credits
	GetBalance(ctx context.Context, userID string) (int, error)
	AdjustBalance(ctx context.Context, userID string, delta int, adj Adjustment) (int, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)

	// creations
	SaveGeneratedCreation(ctx context.Context, c domain.Creation, task domain.DescriptionTask, cost int) (int, error)
	GetCreation(ctx context.Context, id string) (domain.Creation, bool, error)
	ListCreationsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Creation, error)
	ListPublicCreations(ctx context.Context, viewerID string, opts ListOptions) ([]domain.GalleryItem, error)
	SetCreationPublic(ctx context.Context, id string, isPublic bool) error
	DeleteCreation(ctx context.Context, id string) error
	ObjectKeyInUse(ctx context.Context, key string) (bool, error)

	// votes
	ToggleVote(ctx context.Context, voterID, creationID string) (int, bool, error)

	// chats
	AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error
	ListChatMessages(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error)

	// description tasks
	GetDescriptionTask(ctx context.Context, id string) (domain.DescriptionTask, bool, error)
	LatestOpenTask(ctx context.Context, creationID string) (domain.DescriptionTask, bool, error)
	MarkTaskDispatched(ctx context.Context, id string) error
	RecordTaskError(ctx context.Context, id, errMsg string, final bool) error
	CompleteDescription(ctx context.Context, taskID, creationID, answer string) error
	ExpireDescriptionTasks(ctx context.Context, now time.Time) (int, error)

	// payments
	FulfillPayment(ctx context.Context, f domain.PaymentFulfillment) (bool, int, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}
