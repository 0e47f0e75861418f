package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"waifugen/pkg/domain"
)

// FulfillPayment grants the credits of a paid checkout session exactly once.
// It reports whether this call applied the grant and the resulting balance.
func (s *GormStore) FulfillPayment(ctx context.Context, f domain.PaymentFulfillment) (bool, int, error) {
	if f.SessionID == "" || f.UserID == "" {
		return false, 0, fmt.Errorf("fulfillment requires session and user")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	model := PaymentFulfillmentModel{
		SessionID:     f.SessionID,
		UserID:        f.UserID,
		Quantity:      f.Quantity,
		Credits:       f.Credits,
		PaymentStatus: f.PaymentStatus,
		CreatedAt:     f.CreatedAt,
	}
	var (
		applied bool
		balance int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var err error
			balance, err = readBalance(tx, f.UserID)
			return err
		}
		applied = true
		var err error
		balance, err = adjustBalanceTx(tx, f.UserID, f.Credits, Adjustment{
			Reason:         domain.ReasonPurchase,
			ReferenceID:    f.SessionID,
			IdempotencyKey: "checkout:" + f.SessionID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent delivery of the same session committed first
			balance, balanceErr := s.GetBalance(ctx, f.UserID)
			return false, balance, balanceErr
		}
		return false, 0, err
	}
	return applied, balance, nil
}
