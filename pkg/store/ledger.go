package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"waifugen/pkg/domain"
)

// GetBalance returns the user's remaining creations.
func (s *GormStore) GetBalance(ctx context.Context, userID string) (int, error) {
	return readBalance(s.db.WithContext(ctx), userID)
}

// AdjustBalance applies delta to the balance and appends a ledger entry. The
// update is a single conditional statement, so the balance never goes negative
// and concurrent adjustments cannot lose writes.
func (s *GormStore) AdjustBalance(ctx context.Context, userID string, delta int, adj Adjustment) (int, error) {
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = adjustBalanceTx(tx, userID, delta, adj)
		return err
	})
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) && adj.IdempotencyKey != "" {
		// lost the race against a concurrent call with the same key
		entry, ok, lookupErr := findLedgerEntryByKey(s.db.WithContext(ctx), adj.IdempotencyKey)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if ok {
			return entry.BalanceAfter, nil
		}
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func adjustBalanceTx(tx *gorm.DB, userID string, delta int, adj Adjustment) (int, error) {
	key := strings.TrimSpace(adj.IdempotencyKey)
	if key != "" {
		entry, ok, err := findLedgerEntryByKey(tx, key)
		if err != nil {
			return 0, err
		}
		if ok {
			return entry.BalanceAfter, nil
		}
	}
	if delta == 0 {
		return readBalance(tx, userID)
	}

	res := tx.Model(&UserModel{}).
		Where("id = ? AND remaining_creations + ? >= 0", userID, delta).
		Updates(map[string]any{
			"remaining_creations": gorm.Expr("remaining_creations + ?", delta),
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("adjust balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := readBalance(tx, userID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientCredits
	}

	balance, err := readBalance(tx, userID)
	if err != nil {
		return 0, err
	}
	entry := LedgerEntryModel{
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       string(adj.Reason),
		ReferenceID:  adj.ReferenceID,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}
	if err := appendLedgerEntry(tx, entry); err != nil {
		return 0, err
	}
	return balance, nil
}

func readBalance(tx *gorm.DB, userID string) (int, error) {
	var user UserModel
	if err := tx.Select("remaining_creations").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return user.RemainingCreations, nil
}

func appendLedgerEntry(tx *gorm.DB, entry LedgerEntryModel) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Reason == "" {
		entry.Reason = string(domain.ReasonAdjustment)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func findLedgerEntryByKey(tx *gorm.DB, key string) (LedgerEntryModel, bool, error) {
	var entry LedgerEntryModel
	if err := tx.Where("idempotency_key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LedgerEntryModel{}, false, nil
		}
		return LedgerEntryModel{}, false, err
	}
	return entry, true, nil
}

// ListLedger returns the most recent ledger entries of a user, newest first.
func (s *GormStore) ListLedger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []LedgerEntryModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.LedgerEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, domain.LedgerEntry{
			ID:             m.ID,
			UserID:         m.UserID,
			Delta:          m.Delta,
			BalanceAfter:   m.BalanceAfter,
			Reason:         domain.LedgerReason(m.Reason),
			ReferenceID:    m.ReferenceID,
			IdempotencyKey: derefString(m.IdempotencyKey),
			CreatedAt:      m.CreatedAt,
		})
	}
	return entries, nil
}
