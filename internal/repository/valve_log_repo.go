package repository

import (
	"context"

	"waterworks/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValveLogRepository is append-only: entries are never updated or removed here.
type ValveLogRepository interface {
	Append(ctx context.Context, entries []model.ValveLog) error
	ListByValve(ctx context.Context, valveID uuid.UUID) ([]model.ValveLog, error)
	DetachUser(ctx context.Context, userID uuid.UUID) error
}

type valveLogRepository struct {
	db *gorm.DB
}

func NewValveLogRepository(db *gorm.DB) ValveLogRepository {
	return &valveLogRepository{db: db}
}

func (r *valveLogRepository) Append(ctx context.Context, entries []model.ValveLog) error {
	if len(entries) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Omit("User").Create(&entries).Error
}

func (r *valveLogRepository) ListByValve(ctx context.Context, valveID uuid.UUID) ([]model.ValveLog, error) {
	var logs []model.ValveLog
	if err := GetDB(ctx, r.db).Preload("User").Where("valve_id = ?", valveID).
		Order("timestamp asc").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// DetachUser nulls the actor reference on every entry written by the user.
func (r *valveLogRepository) DetachUser(ctx context.Context, userID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.ValveLog{}).Where("user_id = ?", userID).Update("user_id", nil).Error
}
