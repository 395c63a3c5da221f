package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
)

// ── calendar feed ──────────────────────────────────────────
//
// One VEVENT per shift. UIDs are stable per shift so calendar clients
// update events in place after an exchange moves a shift between people.
// ─────────────────────────────────────────────────────────────

const (
	calendarProductID = "-//BasicWFM//shift feed//EN"
	calendarUIDDomain = "basic-wfm"
)

var ErrIdentityUnknown = errors.New("identity not found")

// CalendarService renders shift feeds.
type CalendarService interface {
	// IdentityCalendar returns the iCalendar text of identityID's shifts overlapping [from, to).
	IdentityCalendar(ctx context.Context, identityID int64, from, to time.Time) (string, error)
}

type calendarService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewCalendarService(repo *repository.Repository, logger *zap.Logger) CalendarService {
	return &calendarService{repo: repo, logger: logger}
}

func (s *calendarService) IdentityCalendar(ctx context.Context, identityID int64, from, to time.Time) (string, error) {
	identity, err := s.repo.Identity.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrIdentityUnknown
		}
		return "", err
	}

	shifts, err := s.repo.Shift.List(ctx, repository.ShiftFilter{From: from, To: to, IdentityID: identityID})
	if err != nil {
		return "", fmt.Errorf("list shifts: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(identity.DisplayName())

	stamp := time.Now().UTC()
	for i := range shifts {
		addShiftEvent(cal, &shifts[i], stamp)
	}

	s.logger.Debug("calendar rendered", zap.Int64("identity_id", identityID), zap.Int("events", len(shifts)))
	return cal.Serialize(), nil
}

func addShiftEvent(cal *ics.Calendar, sh *model.Shift, stamp time.Time) {
	event := cal.AddEvent(fmt.Sprintf("shift-%d@%s", sh.ID, calendarUIDDomain))
	event.SetDtStampTime(stamp)
	event.SetStartAt(sh.Start)
	event.SetEndAt(sh.End)
	event.SetSummary(shiftSummary(sh))
	event.SetProperty(ics.ComponentPropertyCategories, string(sh.Direction))
	if sh.Comment != nil && *sh.Comment != "" {
		event.SetDescription(*sh.Comment)
	}
	if sh.Status.NonWorking() {
		event.SetProperty(ics.ComponentPropertyTransp, "TRANSPARENT")
	}
}

func shiftSummary(sh *model.Shift) string {
	parts := []string{string(sh.Status)}
	if sh.Status == model.StatusWork {
		parts = []string{string(sh.Direction)}
	}
	if sh.Activity != "" {
		parts = append(parts, sh.Activity)
	}
	return strings.Join(parts, ": ")
}
