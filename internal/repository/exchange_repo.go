package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
)

// ExchangeRepository exchange record data access
type ExchangeRepository interface {
	Create(ctx context.Context, record *model.ExchangeRecord) error
	// List newest first; shiftID 0 means every record.
	List(ctx context.Context, shiftID int64, offset, limit int) ([]model.ExchangeRecord, int64, error)
}

type exchangeRepo struct {
	db *gorm.DB
}

func NewExchangeRepo(db *gorm.DB) ExchangeRepository {
	return &exchangeRepo{db: db}
}

func (r *exchangeRepo) Create(ctx context.Context, record *model.ExchangeRecord) error {
	return r.db.WithContext(ctx).Omit("FromShift", "ToShift").Create(record).Error
}

func (r *exchangeRepo) List(ctx context.Context, shiftID int64, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.ExchangeRecord{})
	if shiftID > 0 {
		query = query.Where("from_shift_id = ? OR to_shift_id = ?", shiftID, shiftID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.ExchangeRecord
	err := query.
		Preload("FromShift").
		Preload("ToShift").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}
