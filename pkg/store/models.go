package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID                 string  `gorm:"primaryKey;size:32"`
	Username           *string `gorm:"uniqueIndex;size:32"`
	Email              string  `gorm:"uniqueIndex;not null"`
	PasswordHash       string
	GoogleID           *string `gorm:"uniqueIndex"`
	DisplayName        string
	AvatarURL          string
	RemainingCreations int  `gorm:"not null;check:chk_users_remaining_creations,remaining_creations >= 0"`
	Verified           bool `gorm:"not null"`
	VerificationToken  *string
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time
}

func (UserModel) TableName() string { return "users" }

type CreationModel struct {
	ID                string `gorm:"primaryKey;size:36"`
	OwnerID           string `gorm:"not null;index"`
	ImageKey          string `gorm:"not null;index"`
	ThumbnailKey      string `gorm:"not null"`
	ImageURL          string
	ThumbnailURL      string
	IsPublic          bool `gorm:"not null;index"`
	DisplayName       string
	LikeCount         int     `gorm:"not null;index"`
	Description       *string `gorm:"type:text"`
	DescriptionStatus string  `gorm:"not null;size:16"`
	Attributes        datatypes.JSON
	ModelName         string `gorm:"column:model"`
	Prompt            string `gorm:"type:text"`
	NegativePrompt    string `gorm:"type:text"`
	Width             int
	Height            int
	Scheduler         string
	Steps             int
	Guidance          float64
	Seed              int64
	Cost              float64
	CreatedAt         time.Time `gorm:"not null;index"`
}

func (CreationModel) TableName() string { return "creations" }

type VoteModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	VoterID    string    `gorm:"not null;uniqueIndex:idx_votes_voter_creation,priority:1"`
	CreationID string    `gorm:"not null;uniqueIndex:idx_votes_voter_creation,priority:2;index:idx_votes_creation"`
	CreatorID  string    `gorm:"not null"`
	VoteType   int       `gorm:"not null"`
	VoteTime   time.Time `gorm:"not null"`
}

func (VoteModel) TableName() string { return "votes" }

type ChatMessageModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ChatID     string    `gorm:"not null;index"`
	UserID     string    `gorm:"not null"`
	CreationID string    `gorm:"not null;index"`
	Content    string    `gorm:"type:text;not null"`
	Sender     string    `gorm:"not null;size:8"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

type LedgerEntryModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"not null;index"`
	Delta          int       `gorm:"not null"`
	BalanceAfter   int       `gorm:"not null"`
	Reason         string    `gorm:"not null;size:16"`
	ReferenceID    string    `gorm:"index"`
	IdempotencyKey *string   `gorm:"uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null;index"`
}

func (LedgerEntryModel) TableName() string { return "credit_entries" }

type DescriptionTaskModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	CreationID  string    `gorm:"not null;index"`
	Status      string    `gorm:"not null;size:16;index:idx_tasks_status_deadline,priority:1"`
	Attempts    int       `gorm:"not null"`
	LastError   string    `gorm:"type:text"`
	DeadlineAt  time.Time `gorm:"not null;index:idx_tasks_status_deadline,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
}

func (DescriptionTaskModel) TableName() string { return "description_tasks" }

type PaymentFulfillmentModel struct {
	SessionID     string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;index"`
	Quantity      int       `gorm:"not null"`
	Credits       int       `gorm:"not null"`
	PaymentStatus string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (PaymentFulfillmentModel) TableName() string { return "payment_fulfillments" }
