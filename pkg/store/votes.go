package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"waifugen/pkg/domain"
)

// ToggleVote flips the voter's like on a creation and returns the recomputed
// like count together with the new vote state. The creation row is locked for
// the duration of the transaction on databases that support row locks.
// An existing vote can always be withdrawn; a new one requires the creation
// to be public or owned by the voter, otherwise ErrNotFound is returned.
func (s *GormStore) ToggleVote(ctx context.Context, voterID, creationID string) (int, bool, error) {
	var (
		likes int
		voted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creation CreationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "owner_id", "is_public").
			First(&creation, "id = ?", creationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		res := tx.Where("voter_id = ? AND creation_id = ?", voterID, creationID).Delete(&VoteModel{})
		if res.Error != nil {
			return res.Error
		}
		voted = res.RowsAffected == 0
		if voted && !creation.IsPublic && creation.OwnerID != voterID {
			return ErrNotFound
		}
		if voted {
			vote := VoteModel{
				ID:         uuid.NewString(),
				VoterID:    voterID,
				CreationID: creationID,
				CreatorID:  creation.OwnerID,
				VoteType:   domain.VoteLike,
				VoteTime:   time.Now().UTC(),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "voter_id"}, {Name: "creation_id"}},
				DoNothing: true,
			}).Create(&vote).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&VoteModel{}).Where("creation_id = ?", creationID).Count(&count).Error; err != nil {
			return err
		}
		likes = int(count)
		return tx.Model(&CreationModel{}).Where("id = ?", creationID).Update("like_count", likes).Error
	})
	if err != nil {
		return 0, false, err
	}
	return likes, voted, nil
}
