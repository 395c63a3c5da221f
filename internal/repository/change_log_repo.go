package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
)

// ChangeLogRepository shift ownership history
type ChangeLogRepository interface {
	BatchCreate(ctx context.Context, logs []model.ShiftChangeLog) error
	ListByShift(ctx context.Context, shiftID int64, offset, limit int) ([]model.ShiftChangeLog, int64, error)
}

type changeLogRepo struct {
	db *gorm.DB
}

func NewChangeLogRepo(db *gorm.DB) ChangeLogRepository {
	return &changeLogRepo{db: db}
}

func (r *changeLogRepo) BatchCreate(ctx context.Context, logs []model.ShiftChangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&logs).Error
}

func (r *changeLogRepo) ListByShift(ctx context.Context, shiftID int64, offset, limit int) ([]model.ShiftChangeLog, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&model.ShiftChangeLog{}).Where("shift_id = ?", shiftID).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []model.ShiftChangeLog
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&logs).Error
	return logs, total, err
}
