package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	pkgerrors "github.com/bod9dzys/BasicWFMbb/pkg/errors"
)

// ShiftFilter narrows List; zero values are ignored.
type ShiftFilter struct {
	From       time.Time
	To         time.Time
	IdentityID int64
}

// ShiftRepository shift data access
type ShiftRepository interface {
	// BulkCreate inserts without model hooks, batchSize rows per statement.
	BulkCreate(ctx context.Context, shifts []model.Shift, batchSize int) error
	GetByID(ctx context.Context, id int64) (*model.Shift, error)
	// GetForUpdate reads the row with SELECT ... FOR UPDATE; only meaningful inside a transaction.
	GetForUpdate(ctx context.Context, id int64) (*model.Shift, error)
	// UpdateOwner writes IdentityID guarded by Version.
	UpdateOwner(ctx context.Context, shift *model.Shift) error
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	List(ctx context.Context, filter ShiftFilter) ([]model.Shift, error)
	// SetLockTimeout bounds row-lock waits for the rest of the current transaction.
	SetLockTimeout(ctx context.Context, d time.Duration) error
}

type shiftRepo struct {
	db *gorm.DB
}

func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) BulkCreate(ctx context.Context, shifts []model.Shift, batchSize int) error {
	if len(shifts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Omit(clause.Associations).
		CreateInBatches(&shifts, batchSize).Error
}

func (r *shiftRepo) GetByID(ctx context.Context, id int64) (*model.Shift, error) {
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Preload("Identity").
		Where("id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) GetForUpdate(ctx context.Context, id int64) (*model.Shift, error) {
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) UpdateOwner(ctx context.Context, shift *model.Shift) error {
	oldVersion := shift.Version
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("id = ? AND version = ?", shift.ID, oldVersion).
		Updates(map[string]interface{}{
			"identity_id": shift.IdentityID,
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	shift.Version = oldVersion + 1
	return nil
}

func (r *shiftRepo) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	err := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("external_id IN ?", ids).
		Pluck("external_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *shiftRepo) List(ctx context.Context, filter ShiftFilter) ([]model.Shift, error) {
	query := r.db.WithContext(ctx).Preload("Identity")
	if !filter.From.IsZero() {
		query = query.Where("end_at > ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("start_at < ?", filter.To)
	}
	if filter.IdentityID > 0 {
		query = query.Where("identity_id = ?", filter.IdentityID)
	}
	var shifts []model.Shift
	err := query.Order("start_at, id").Find(&shifts).Error
	return shifts, err
}

func (r *shiftRepo) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	// SET does not take bind parameters
	return r.db.WithContext(ctx).
		Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}
