package domain

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type DescriptionStatus string

const (
	DescriptionPending    DescriptionStatus = "pending"
	DescriptionDispatched DescriptionStatus = "dispatched"
	DescriptionCompleted  DescriptionStatus = "completed"
	DescriptionExpired    DescriptionStatus = "expired"
	DescriptionFailed     DescriptionStatus = "failed"
)

// Open reports whether a task in this status may still receive its callback.
func (s DescriptionStatus) Open() bool {
	return s == DescriptionPending || s == DescriptionDispatched
}

type LedgerReason string

const (
	ReasonSignup     LedgerReason = "signup"
	ReasonGeneration LedgerReason = "generation"
	ReasonPurchase   LedgerReason = "purchase"
	ReasonRefund     LedgerReason = "refund"
	ReasonAdjustment LedgerReason = "adjustment"
)

// VoteLike is the only vote type; unliking deletes the row.
const VoteLike = 1

type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username,omitempty"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	GoogleID           string    `json:"-"`
	DisplayName        string    `json:"displayName,omitempty"`
	AvatarURL          string    `json:"avatarUrl,omitempty"`
	RemainingCreations int       `json:"remainingCreations"`
	Verified           bool      `json:"verified"`
	VerificationToken  string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Attributes are the prompt vocabulary chosen in the creator form.
type Attributes struct {
	Age                  string `json:"age"`
	BodyShape            string `json:"bodyShape"`
	BreastSize           string `json:"breastSize"`
	Expression           string `json:"expression"`
	EyeColor             string `json:"eyeColor"`
	HairColor            string `json:"hairColor"`
	HairLength           string `json:"hairLength"`
	HairType             string `json:"hairType"`
	FullClothes          string `json:"fullClothes,omitempty"`
	OnePieceClothesColor string `json:"onePieceClothesColor,omitempty"`
	UpperBodyClothes     string `json:"upperBodyClothes,omitempty"`
	UpperClothesColor    string `json:"upperClothesColor,omitempty"`
	LowerBodyClothes     string `json:"lowerBodyClothes,omitempty"`
	LowerClothesColor    string `json:"lowerClothesColor,omitempty"`
}

// GenerationParams are written once when the image comes back.
type GenerationParams struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negativePrompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Scheduler      string  `json:"scheduler"`
	Steps          int     `json:"steps"`
	Guidance       float64 `json:"guidance"`
	Seed           int64   `json:"seed"`
	Cost           float64 `json:"cost"`
}

type Creation struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"ownerId"`
	ImageKey          string            `json:"-"`
	ThumbnailKey      string            `json:"-"`
	ImageURL          string            `json:"imageUrl"`
	ThumbnailURL      string            `json:"thumbnailUrl"`
	IsPublic          bool              `json:"isPublic"`
	DisplayName       string            `json:"displayName"`
	LikeCount         int               `json:"likes"`
	Description       string            `json:"description,omitempty"`
	DescriptionStatus DescriptionStatus `json:"descriptionStatus"`
	Attributes        Attributes        `json:"attributes"`
	GenerationParams
	CreatedAt time.Time `json:"creationTime"`
}

// GalleryItem is a creation as seen by a specific viewer.
type GalleryItem struct {
	Creation
	IsLiked bool `json:"isLiked"`
}

type Vote struct {
	ID         string    `json:"id"`
	VoterID    string    `json:"voterId"`
	CreationID string    `json:"creationId"`
	CreatorID  string    `json:"creatorId"`
	VoteType   int       `json:"voteType"`
	VoteTime   time.Time `json:"voteTime"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	UserID     string    `json:"userId"`
	CreationID string    `json:"creationId"`
	Content    string    `json:"content"`
	Sender     Sender    `json:"sender"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatID joins the chatting user and the creation.
func ChatID(userID, creationID string) string {
	return userID + "-" + creationID
}

type LedgerEntry struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	Delta          int          `json:"delta"`
	BalanceAfter   int          `json:"balanceAfter"`
	Reason         LedgerReason `json:"reason"`
	ReferenceID    string       `json:"referenceId,omitempty"`
	IdempotencyKey string       `json:"-"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// DescriptionTask correlates a description request with its callback.
type DescriptionTask struct {
	ID          string            `json:"id"`
	CreationID  string            `json:"creationId"`
	Status      DescriptionStatus `json:"status"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"lastError,omitempty"`
	DeadlineAt  time.Time         `json:"deadlineAt"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

type PaymentFulfillment struct {
	SessionID     string    `json:"sessionId"`
	UserID        string    `json:"userId"`
	Quantity      int       `json:"quantity"`
	Credits       int       `json:"credits"`
	PaymentStatus string    `json:"paymentStatus"`
	CreatedAt     time.Time `json:"createdAt"`
}
