package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository aggregates every repository.
type Repository struct {
	Identity  IdentityRepository
	Role      RoleRepository
	Shift     ShiftRepository
	Exchange  ExchangeRepository
	ChangeLog ChangeLogRepository

	// TxBeginner replaces BeginTx; tests inject in-memory units of work here.
	TxBeginner func(ctx context.Context) (Tx, error)

	db *gorm.DB
}

// NewRepository creates the aggregate over db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Identity:  NewIdentityRepo(db),
		Role:      NewRoleRepo(db),
		Shift:     NewShiftRepo(db),
		Exchange:  NewExchangeRepo(db),
		ChangeLog: NewChangeLogRepo(db),
		db:        db,
	}
}

// Tx is an open unit of work. Repo is bound to the transaction.
type Tx interface {
	Repo() *Repository
	Commit() error
	Rollback() error
}

// BeginTx opens a transaction. Without a database (mock aggregates) it
// returns a no-op unit of work over the same repositories.
func (r *Repository) BeginTx(ctx context.Context) (Tx, error) {
	if r.TxBeginner != nil {
		return r.TxBeginner(ctx)
	}
	if r.db == nil {
		return noopTx{repo: r}, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{tx: tx, repo: r.WithTx(tx)}, nil
}

// WithTx returns a copy whose repositories run on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{
		Identity:  NewIdentityRepo(tx),
		Role:      NewRoleRepo(tx),
		Shift:     NewShiftRepo(tx),
		Exchange:  NewExchangeRepo(tx),
		ChangeLog: NewChangeLogRepo(tx),
		db:        tx,
	}
}

// Transaction runs fn inside one unit of work, rolling back on error or panic.
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) (err error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Repo()); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ── implementations ──

type gormTx struct {
	tx   *gorm.DB
	repo *Repository
}

func (t *gormTx) Repo() *Repository { return t.repo }
func (t *gormTx) Commit() error     { return t.tx.Commit().Error }
func (t *gormTx) Rollback() error   { return t.tx.Rollback().Error }

type noopTx struct {
	repo *Repository
}

func (t noopTx) Repo() *Repository { return t.repo }
func (noopTx) Commit() error       { return nil }
func (noopTx) Rollback() error     { return nil }
