package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/internal/metrics"
	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	"github.com/bod9dzys/BasicWFMbb/pkg/database"
	pkgerrors "github.com/bod9dzys/BasicWFMbb/pkg/errors"
)

// ── exchange errors ──

var (
	ErrShiftNotFound     = errors.New("shift not found")
	ErrRequesterNotFound = errors.New("requesting identity not found")
	ErrExchangeExecution = errors.New("exchange could not be executed")
)

// ReasonCode why a proposal was rejected. The set is closed and stable.
type ReasonCode string

const (
	ReasonOwnership    ReasonCode = "ownership"
	ReasonIncompatible ReasonCode = "incompatible-skills-and-direction"
	ReasonNonWorking   ReasonCode = "non-working-status"
	ReasonSameShift    ReasonCode = "same-shift"
)

const outcomeError = "error"

// ProposeInput one exchange proposal. RequesterID is the acting identity.
type ProposeInput struct {
	FromShiftID int64
	ToShiftID   int64
	RequesterID int64
	Comment     string
}

// ExchangeResult either Approved with the stored Record, or a Reason.
type ExchangeResult struct {
	Approved bool
	Reason   ReasonCode
	Record   *model.ExchangeRecord
}

// ExchangeService swaps the owners of two shifts.
type ExchangeService interface {
	// Propose validates and, when eligible, executes the swap in one transaction.
	// Rejections are results, not errors.
	Propose(ctx context.Context, in ProposeInput) (*ExchangeResult, error)
	// List returns exchange history, newest first. shiftID 0 lists all.
	List(ctx context.Context, shiftID int64, offset, limit int) ([]model.ExchangeRecord, int64, error)
}

type exchangeService struct {
	repo    *repository.Repository
	cfg     *config.ExchangeConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewExchangeService creates ExchangeService. m may be nil.
func NewExchangeService(repo *repository.Repository, cfg *config.ExchangeConfig, m *metrics.Metrics, logger *zap.Logger) ExchangeService {
	return &exchangeService{repo: repo, cfg: cfg, metrics: m, logger: logger}
}

// exchangeSide a shift together with its current owner.
type exchangeSide struct {
	shift *model.Shift
	owner *model.Identity
}

// ═══════════════════════════════════════════════════════════
// Propose
// ═══════════════════════════════════════════════════════════

func (s *exchangeService) Propose(ctx context.Context, in ProposeInput) (result *ExchangeResult, err error) {
	started := time.Now()
	defer func() {
		outcome := outcomeError
		switch {
		case err != nil:
		case result.Approved:
			outcome = string(model.OutcomeApproved)
		default:
			outcome = string(result.Reason)
		}
		s.metrics.Exchange(outcome, time.Since(started))
	}()

	log := s.logger.With(
		zap.Int64("from_shift_id", in.FromShiftID),
		zap.Int64("to_shift_id", in.ToShiftID),
		zap.Int64("requester_id", in.RequesterID),
	)

	if _, err := s.repo.Identity.GetByID(ctx, in.RequesterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequesterNotFound
		}
		return nil, fmt.Errorf("load requester: %w", err)
	}
	elevated, err := s.repo.Role.HasCapability(ctx, in.RequesterID, model.CapExchangeAny)
	if err != nil {
		return nil, fmt.Errorf("check requester capability: %w", err)
	}

	from, err := s.loadSide(ctx, s.repo, in.FromShiftID, false)
	if err != nil {
		return nil, err
	}
	to, err := s.loadSide(ctx, s.repo, in.ToShiftID, false)
	if err != nil {
		return nil, err
	}

	if reason := validateExchange(from, to, in.RequesterID, elevated); reason != "" {
		log.Info("exchange rejected", zap.String("reason", string(reason)))
		return &ExchangeResult{Reason: reason}, nil
	}

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		reason ReasonCode
		record *model.ExchangeRecord
	)
	err = s.repo.Transaction(txCtx, func(txRepo *repository.Repository) error {
		if err := txRepo.Shift.SetLockTimeout(txCtx, s.cfg.LockTimeout); err != nil {
			return err
		}

		// lower id first so a concurrent reverse proposal waits instead of deadlocking
		firstID, secondID := in.FromShiftID, in.ToShiftID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := s.loadSide(txCtx, txRepo, firstID, true)
		if err != nil {
			return err
		}
		second, err := s.loadSide(txCtx, txRepo, secondID, true)
		if err != nil {
			return err
		}
		lockedFrom, lockedTo := first, second
		if lockedFrom.shift.ID != in.FromShiftID {
			lockedFrom, lockedTo = second, first
		}

		if reason = validateExchange(lockedFrom, lockedTo, in.RequesterID, elevated); reason != "" {
			return nil
		}

		fromOwner, toOwner := lockedFrom.shift.IdentityID, lockedTo.shift.IdentityID
		lockedFrom.shift.IdentityID, lockedTo.shift.IdentityID = toOwner, fromOwner
		if err := txRepo.Shift.UpdateOwner(txCtx, lockedFrom.shift); err != nil {
			return fmt.Errorf("update shift %d: %w", lockedFrom.shift.ID, err)
		}
		if err := txRepo.Shift.UpdateOwner(txCtx, lockedTo.shift); err != nil {
			return fmt.Errorf("update shift %d: %w", lockedTo.shift.ID, err)
		}

		requester := in.RequesterID
		record = &model.ExchangeRecord{
			FromShiftID:   in.FromShiftID,
			ToShiftID:     in.ToShiftID,
			RequestedByID: &requester,
			Outcome:       model.OutcomeApproved,
			Comment:       in.Comment,
		}
		if err := txRepo.Exchange.Create(txCtx, record); err != nil {
			return fmt.Errorf("create exchange record: %w", err)
		}

		logs := []model.ShiftChangeLog{
			{
				ShiftID:            lockedFrom.shift.ID,
				OriginalIdentityID: fromOwner,
				NewIdentityID:      toOwner,
				ChangeType:         model.ChangeTypeExchange,
				Reason:             in.Comment,
				OperatorID:         &requester,
			},
			{
				ShiftID:            lockedTo.shift.ID,
				OriginalIdentityID: toOwner,
				NewIdentityID:      fromOwner,
				ChangeType:         model.ChangeTypeExchange,
				Reason:             in.Comment,
				OperatorID:         &requester,
			},
		}
		if err := txRepo.ChangeLog.BatchCreate(txCtx, logs); err != nil {
			return fmt.Errorf("write change log: %w", err)
		}

		record.FromShift, record.ToShift = lockedFrom.shift, lockedTo.shift
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) {
			return nil, err
		}
		err = classifyExecutionError(err)
		log.Error("exchange failed", zap.Error(err))
		return nil, err
	}

	if reason != "" {
		log.Info("exchange rejected after lock", zap.String("reason", string(reason)))
		return &ExchangeResult{Reason: reason}, nil
	}

	log.Info("exchange approved", zap.Int64("exchange_id", record.ID))
	return &ExchangeResult{Approved: true, Record: record}, nil
}

// loadSide reads a shift and its owner. With lock set the shift row is
// read FOR UPDATE.
func (s *exchangeService) loadSide(ctx context.Context, repo *repository.Repository, shiftID int64, lock bool) (*exchangeSide, error) {
	var (
		shift *model.Shift
		err   error
	)
	if lock {
		shift, err = repo.Shift.GetForUpdate(ctx, shiftID)
	} else {
		shift, err = repo.Shift.GetByID(ctx, shiftID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		return nil, fmt.Errorf("load shift %d: %w", shiftID, err)
	}

	owner := shift.Identity
	if owner == nil || owner.ID != shift.IdentityID {
		owner, err = repo.Identity.GetByID(ctx, shift.IdentityID)
		if err != nil {
			return nil, fmt.Errorf("load owner of shift %d: %w", shiftID, err)
		}
	}
	return &exchangeSide{shift: shift, owner: owner}, nil
}

// validateExchange applies the rules in order and returns the first failure.
func validateExchange(from, to *exchangeSide, requesterID int64, elevated bool) ReasonCode {
	if !elevated && from.shift.IdentityID != requesterID && to.shift.IdentityID != requesterID {
		return ReasonOwnership
	}
	if !from.owner.Skills.Intersects(to.owner.Skills) && from.shift.Direction != to.shift.Direction {
		return ReasonIncompatible
	}
	if from.shift.Status.NonWorking() || to.shift.Status.NonWorking() {
		return ReasonNonWorking
	}
	if from.shift.ID == to.shift.ID {
		return ReasonSameShift
	}
	return ""
}

func classifyExecutionError(err error) error {
	if database.IsLockTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrExchangeExecution, pkgerrors.ErrLockTimeout)
	}
	return fmt.Errorf("%w: %w", ErrExchangeExecution, err)
}

// ═══════════════════════════════════════════════════════════
// List
// ═══════════════════════════════════════════════════════════

func (s *exchangeService) List(ctx context.Context, shiftID int64, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	records, total, err := s.repo.Exchange.List(ctx, shiftID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list exchanges: %w", err)
	}
	return records, total, nil
}
