package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"waifugen/pkg/domain"
)

var openTaskStatuses = []string{
	string(domain.DescriptionPending),
	string(domain.DescriptionDispatched),
}

// GetDescriptionTask loads a task by its correlation id.
func (s *GormStore) GetDescriptionTask(ctx context.Context, id string) (domain.DescriptionTask, bool, error) {
	var model DescriptionTaskModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DescriptionTask{}, false, nil
		}
		return domain.DescriptionTask{}, false, err
	}
	return taskFromModel(model), true, nil
}

// LatestOpenTask returns the newest pending or dispatched task of a creation.
func (s *GormStore) LatestOpenTask(ctx context.Context, creationID string) (domain.DescriptionTask, bool, error) {
	var model DescriptionTaskModel
	err := s.db.WithContext(ctx).
		Where("creation_id = ? AND status IN ?", creationID, openTaskStatuses).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DescriptionTask{}, false, nil
		}
		return domain.DescriptionTask{}, false, err
	}
	return taskFromModel(model), true, nil
}

// MarkTaskDispatched records a delivery attempt to the description service.
func (s *GormStore) MarkTaskDispatched(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, id)
		if err != nil {
			return err
		}
		res := tx.Model(&DescriptionTaskModel{}).
			Where("id = ? AND status IN ?", id, openTaskStatuses).
			Updates(map[string]any{
				"status":     string(domain.DescriptionDispatched),
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTaskClosed
		}
		return setDescriptionStatus(tx, task.CreationID, domain.DescriptionDispatched)
	})
}

// RecordTaskError stores the last dispatch error. A final error closes the task as failed.
func (s *GormStore) RecordTaskError(ctx context.Context, id, errMsg string, final bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, id)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"last_error": errMsg,
			"updated_at": time.Now().UTC(),
		}
		if final {
			updates["status"] = string(domain.DescriptionFailed)
		}
		res := tx.Model(&DescriptionTaskModel{}).
			Where("id = ? AND status IN ?", id, openTaskStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTaskClosed
		}
		if final {
			return setDescriptionStatus(tx, task.CreationID, domain.DescriptionFailed)
		}
		return nil
	})
}

// CompleteDescription closes an open task and writes the description onto its
// creation. Tasks that already expired, failed or completed return ErrTaskClosed.
func (s *GormStore) CompleteDescription(ctx context.Context, taskID, creationID, answer string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, taskID)
		if err != nil {
			return err
		}
		if task.CreationID != creationID {
			return ErrNotFound
		}
		now := time.Now().UTC()
		res := tx.Model(&DescriptionTaskModel{}).
			Where("id = ? AND status IN ?", taskID, openTaskStatuses).
			Updates(map[string]any{
				"status":       string(domain.DescriptionCompleted),
				"completed_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTaskClosed
		}
		res = tx.Model(&CreationModel{}).Where("id = ?", creationID).Updates(map[string]any{
			"description":        answer,
			"description_status": string(domain.DescriptionCompleted),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ExpireDescriptionTasks moves open tasks whose deadline passed to expired and
// returns how many were closed.
func (s *GormStore) ExpireDescriptionTasks(ctx context.Context, now time.Time) (int, error) {
	var expired int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []DescriptionTaskModel
		if err := tx.Select("id", "creation_id").
			Where("status IN ? AND deadline_at <= ?", openTaskStatuses, now).
			Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		ids := make([]string, 0, len(due))
		creationIDs := make([]string, 0, len(due))
		for _, t := range due {
			ids = append(ids, t.ID)
			creationIDs = append(creationIDs, t.CreationID)
		}
		res := tx.Model(&DescriptionTaskModel{}).
			Where("id IN ? AND status IN ?", ids, openTaskStatuses).
			Updates(map[string]any{
				"status":     string(domain.DescriptionExpired),
				"last_error": "deadline exceeded",
				"updated_at": now.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		expired = int(res.RowsAffected)
		return tx.Model(&CreationModel{}).
			Where("id IN ? AND description_status IN ?", creationIDs, openTaskStatuses).
			Update("description_status", string(domain.DescriptionExpired)).Error
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func loadTask(tx *gorm.DB, id string) (DescriptionTaskModel, error) {
	var model DescriptionTaskModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DescriptionTaskModel{}, ErrNotFound
		}
		return DescriptionTaskModel{}, err
	}
	return model, nil
}

func setDescriptionStatus(tx *gorm.DB, creationID string, status domain.DescriptionStatus) error {
	return tx.Model(&CreationModel{}).Where("id = ?", creationID).
		Update("description_status", string(status)).Error
}

func taskToModel(t domain.DescriptionTask) DescriptionTaskModel {
	now := time.Now().UTC()
	status := t.Status
	if status == "" {
		status = domain.DescriptionPending
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return DescriptionTaskModel{
		ID:          t.ID,
		CreationID:  t.CreationID,
		Status:      string(status),
		Attempts:    t.Attempts,
		LastError:   t.LastError,
		DeadlineAt:  t.DeadlineAt,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
		CompletedAt: t.CompletedAt,
	}
}

func taskFromModel(m DescriptionTaskModel) domain.DescriptionTask {
	return domain.DescriptionTask{
		ID:          m.ID,
		CreationID:  m.CreationID,
		Status:      domain.DescriptionStatus(m.Status),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		DeadlineAt:  m.DeadlineAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
}
