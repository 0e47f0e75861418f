package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"waifugen/pkg/domain"
)

const migrateLockID int64 = 51734117

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GormStore implements Store using GORM on Postgres (or SQLite for local runs).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{Logger: gormLog, TranslateError: true}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := withMigrationLock(db, migrate); err != nil {
			return nil, err
		}
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// sqlite has a single writer; one connection keeps transactions from tripping SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&CreationModel{},
		&VoteModel{},
		&ChatMessageModel{},
		&LedgerEntryModel{},
		&DescriptionTaskModel{},
		&PaymentFulfillmentModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateUser inserts a user and records the starting balance in the ledger.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	model := userToModel(u)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUserUnique(tx, model); err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEmail
			}
			return err
		}
		if model.RemainingCreations > 0 {
			return appendLedgerEntry(tx, LedgerEntryModel{
				UserID:       model.ID,
				Delta:        model.RemainingCreations,
				BalanceAfter: model.RemainingCreations,
				Reason:       string(domain.ReasonSignup),
				ReferenceID:  model.ID,
			})
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func checkUserUnique(tx *gorm.DB, model UserModel) error {
	var count int64
	if model.Username != nil {
		if err := tx.Model(&UserModel{}).Where("username = ?", *model.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
	}
	if err := tx.Model(&UserModel{}).Where("email = ?", model.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEmail
	}
	return nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	return s.findUser(ctx, "id = ?", id)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.findUser(ctx, "email = ?", email)
}

// GetUserByUsername looks up a local account by username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return s.findUser(ctx, "username = ?", username)
}

// GetUserByGoogleID looks up a federated account.
func (s *GormStore) GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, bool, error) {
	return s.findUser(ctx, "google_id = ?", googleID)
}

func (s *GormStore) findUser(ctx context.Context, query string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// LinkGoogleAccount attaches a Google identity to an existing account. The
// provider already verified the address, so the account becomes verified too.
func (s *GormStore) LinkGoogleAccount(ctx context.Context, userID, googleID, avatarURL string) error {
	updates := map[string]any{
		"google_id":          googleID,
		"verified":           true,
		"verification_token": nil,
		"updated_at":         time.Now().UTC(),
	}
	if strings.TrimSpace(avatarURL) != "" {
		updates["avatar_url"] = avatarURL
	}
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerificationToken stores the latest email verification token.
func (s *GormStore) SetVerificationToken(ctx context.Context, userID, token string) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", userID).
		Updates(map[string]any{"verification_token": token, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVerified flags the account owning email as verified.
func (s *GormStore) MarkVerified(ctx context.Context, email string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).
		Updates(map[string]any{
			"verified":           true,
			"verification_token": nil,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveGeneratedCreation persists a creation, debits its cost and opens the
// description task in one transaction. Nothing is written when the debit fails.
func (s *GormStore) SaveGeneratedCreation(ctx context.Context, c domain.Creation, task domain.DescriptionTask, cost int) (int, error) {
	model, err := creationToModel(c)
	if err != nil {
		return 0, err
	}
	taskModel := taskToModel(task)
	var balance int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert creation: %w", err)
		}
		var err error
		balance, err = adjustBalanceTx(tx, c.OwnerID, -cost, Adjustment{
			Reason:      domain.ReasonGeneration,
			ReferenceID: c.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.Create(&taskModel).Error; err != nil {
			return fmt.Errorf("insert description task: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetCreation retrieves a creation.
func (s *GormStore) GetCreation(ctx context.Context, id string) (domain.Creation, bool, error) {
	var model CreationModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Creation{}, false, nil
		}
		return domain.Creation{}, false, err
	}
	return creationFromModel(model), true, nil
}

// ListCreationsByOwner returns the owner's creations.
func (s *GormStore) ListCreationsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Creation, error) {
	var models []CreationModel
	tx := applyListOptions(s.db.WithContext(ctx).Where("owner_id = ?", ownerID), opts)
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Creation, 0, len(models))
	for _, m := range models {
		res = append(res, creationFromModel(m))
	}
	return res, nil
}

type galleryRow struct {
	CreationModel
	IsLiked bool
}

// ListPublicCreations returns public creations flagged with the viewer's likes.
func (s *GormStore) ListPublicCreations(ctx context.Context, viewerID string, opts ListOptions) ([]domain.GalleryItem, error) {
	var rows []galleryRow
	tx := s.db.WithContext(ctx).Model(&CreationModel{}).
		Select("creations.*, EXISTS (SELECT 1 FROM votes v WHERE v.creation_id = creations.id AND v.voter_id = ?) AS is_liked", viewerID).
		Where("creations.is_public = ?", true)
	if err := applyListOptions(tx, opts).Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.GalleryItem, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.GalleryItem{
			Creation: creationFromModel(row.CreationModel),
			IsLiked:  row.IsLiked,
		})
	}
	return res, nil
}

func applyListOptions(tx *gorm.DB, opts ListOptions) *gorm.DB {
	column := "created_at"
	if opts.SortField == SortByLikes {
		column = "like_count"
	}
	tx = tx.Order(clause.OrderByColumn{
		Column: clause.Column{Table: "creations", Name: column},
		Desc:   !opts.Ascending,
	}).Order(clause.OrderByColumn{Column: clause.Column{Table: "creations", Name: "id"}})
	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		tx = tx.Offset(opts.Offset)
	}
	return tx
}

// SetCreationPublic changes gallery visibility.
func (s *GormStore) SetCreationPublic(ctx context.Context, id string, isPublic bool) error {
	res := s.db.WithContext(ctx).Model(&CreationModel{}).Where("id = ?", id).Update("is_public", isPublic)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCreation removes a creation together with its votes, chat and tasks.
func (s *GormStore) DeleteCreation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&VoteModel{}, "creation_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ChatMessageModel{}, "creation_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DescriptionTaskModel{}, "creation_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&CreationModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ObjectKeyInUse reports whether any creation still references key as its
// image or thumbnail.
func (s *GormStore) ObjectKeyInUse(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&CreationModel{}).
		Where("image_key = ? OR thumbnail_key = ?", key, key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppendChatMessage records a chat turn.
func (s *GormStore) AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	model := chatMessageToModel(msg)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListChatMessages returns the latest messages of a chat in chronological order.
func (s *GormStore) ListChatMessages(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	var models []ChatMessageModel
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, chatMessageFromModel(models[i]))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                 u.ID,
		Username:           nullableString(u.Username),
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		GoogleID:           nullableString(u.GoogleID),
		DisplayName:        u.DisplayName,
		AvatarURL:          u.AvatarURL,
		RemainingCreations: u.RemainingCreations,
		Verified:           u.Verified,
		VerificationToken:  nullableString(u.VerificationToken),
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                 m.ID,
		Username:           derefString(m.Username),
		Email:              m.Email,
		PasswordHash:       m.PasswordHash,
		GoogleID:           derefString(m.GoogleID),
		DisplayName:        m.DisplayName,
		AvatarURL:          m.AvatarURL,
		RemainingCreations: m.RemainingCreations,
		Verified:           m.Verified,
		VerificationToken:  derefString(m.VerificationToken),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func creationToModel(c domain.Creation) (CreationModel, error) {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return CreationModel{}, fmt.Errorf("encode attributes: %w", err)
	}
	status := c.DescriptionStatus
	if status == "" {
		status = domain.DescriptionPending
	}
	return CreationModel{
		ID:                c.ID,
		OwnerID:           c.OwnerID,
		ImageKey:          c.ImageKey,
		ThumbnailKey:      c.ThumbnailKey,
		ImageURL:          c.ImageURL,
		ThumbnailURL:      c.ThumbnailURL,
		IsPublic:          c.IsPublic,
		DisplayName:       c.DisplayName,
		LikeCount:         c.LikeCount,
		Description:       nullableString(c.Description),
		DescriptionStatus: string(status),
		Attributes:        datatypes.JSON(attrs),
		ModelName:         c.Model,
		Prompt:            c.Prompt,
		NegativePrompt:    c.NegativePrompt,
		Width:             c.Width,
		Height:            c.Height,
		Scheduler:         c.Scheduler,
		Steps:             c.Steps,
		Guidance:          c.Guidance,
		Seed:              c.Seed,
		Cost:              c.Cost,
		CreatedAt:         c.CreatedAt,
	}, nil
}

func creationFromModel(m CreationModel) domain.Creation {
	var attrs domain.Attributes
	if len(m.Attributes) > 0 {
		_ = json.Unmarshal(m.Attributes, &attrs)
	}
	return domain.Creation{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		ImageKey:          m.ImageKey,
		ThumbnailKey:      m.ThumbnailKey,
		ImageURL:          m.ImageURL,
		ThumbnailURL:      m.ThumbnailURL,
		IsPublic:          m.IsPublic,
		DisplayName:       m.DisplayName,
		LikeCount:         m.LikeCount,
		Description:       derefString(m.Description),
		DescriptionStatus: domain.DescriptionStatus(m.DescriptionStatus),
		Attributes:        attrs,
		GenerationParams: domain.GenerationParams{
			Model:          m.ModelName,
			Prompt:         m.Prompt,
			NegativePrompt: m.NegativePrompt,
			Width:          m.Width,
			Height:         m.Height,
			Scheduler:      m.Scheduler,
			Steps:          m.Steps,
			Guidance:       m.Guidance,
			Seed:           m.Seed,
			Cost:           m.Cost,
		},
		CreatedAt: m.CreatedAt,
	}
}

func chatMessageToModel(msg domain.ChatMessage) ChatMessageModel {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return ChatMessageModel{
		ID:         id,
		ChatID:     msg.ChatID,
		UserID:     msg.UserID,
		CreationID: msg.CreationID,
		Content:    msg.Content,
		Sender:     string(msg.Sender),
		CreatedAt:  createdAt,
	}
}

func chatMessageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         m.ID,
		ChatID:     m.ChatID,
		UserID:     m.UserID,
		CreationID: m.CreationID,
		Content:    m.Content,
		Sender:     domain.Sender(m.Sender),
		CreatedAt:  m.CreatedAt,
	}
}

func nullableString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
