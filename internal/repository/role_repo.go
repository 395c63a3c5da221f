package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
)

// RoleRepository role and capability lookups
type RoleRepository interface {
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// Grant is idempotent.
	Grant(ctx context.Context, identityID, roleID int64) error
	Capabilities(ctx context.Context, identityID int64) ([]string, error)
	HasCapability(ctx context.Context, identityID int64, capability string) (bool, error)
}

type roleRepo struct {
	db *gorm.DB
}

func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) Grant(ctx context.Context, identityID, roleID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.IdentityRole{IdentityID: identityID, RoleID: roleID}).Error
}

func (r *roleRepo) Capabilities(ctx context.Context, identityID int64) ([]string, error) {
	var caps []string
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT unnest(r.capabilities)
			FROM roles r JOIN identity_roles ir ON ir.role_id = r.id
			WHERE ir.identity_id = ?`, identityID).
		Scan(&caps).Error
	return caps, err
}

func (r *roleRepo) HasCapability(ctx context.Context, identityID int64, capability string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("identity_roles ir").
		Joins("JOIN roles r ON r.id = ir.role_id").
		Where("ir.identity_id = ? AND ? = ANY(r.capabilities)", identityID, capability).
		Count(&count).Error
	return count > 0, err
}
