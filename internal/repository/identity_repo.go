package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
)

// IdentityRepository identity data access
type IdentityRepository interface {
	// StreamAll walks every identity in id order, batchSize rows at a time.
	StreamAll(ctx context.Context, batchSize int, fn func(batch []model.Identity) error) error
	GetByID(ctx context.Context, id int64) (*model.Identity, error)
	GetByNameKey(ctx context.Context, key string) (*model.Identity, error)
	// ListUsernamesWithPrefix returns prefix itself and every prefix_N style username.
	ListUsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// CreateIfAbsent inserts unless a unique constraint already holds the row;
	// created is false when nothing was written.
	CreateIfAbsent(ctx context.Context, identity *model.Identity) (created bool, err error)
	// SetSupervisor links ids to supervisorID, skipping rows that already carry it.
	SetSupervisor(ctx context.Context, supervisorID int64, ids []int64) (int64, error)
}

type identityRepo struct {
	db *gorm.DB
}

func NewIdentityRepo(db *gorm.DB) IdentityRepository {
	return &identityRepo{db: db}
}

func (r *identityRepo) StreamAll(ctx context.Context, batchSize int, fn func(batch []model.Identity) error) error {
	var batch []model.Identity
	return r.db.WithContext(ctx).
		Model(&model.Identity{}).
		Select("id", "username", "first_name", "last_name", "name_key", "is_active", "supervisor_id").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}

func (r *identityRepo) GetByID(ctx context.Context, id int64) (*model.Identity, error) {
	var identity model.Identity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepo) GetByNameKey(ctx context.Context, key string) (*model.Identity, error) {
	var identity model.Identity
	if err := r.db.WithContext(ctx).Where("name_key = ?", key).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *identityRepo) ListUsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&model.Identity{}).
		Where("username = ? OR username LIKE ?", prefix, likeEscaper.Replace(prefix)+`\_%`).
		Pluck("username", &names).Error
	return names, err
}

func (r *identityRepo) CreateIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(identity)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *identityRepo) SetSupervisor(ctx context.Context, supervisorID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Identity{}).
		Where("id IN ? AND supervisor_id IS DISTINCT FROM ?", ids, supervisorID).
		Updates(map[string]interface{}{
			"supervisor_id": supervisorID,
			"updated_at":    time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
