package normalize

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
)

// ── alias tables ──
// Keys are case-folded; lookups fold the input the same way.

var directionAliases = map[string]model.Direction{
	// uk
	"дзвінки": model.DirectionCalls,
	"дзінки":  model.DirectionCalls,
	"дзвонки": model.DirectionCalls,
	"дзвінок": model.DirectionCalls,
	"тікети":  model.DirectionTickets,
	"тикети":  model.DirectionTickets,
	"тікет":   model.DirectionTickets,
	"чати":    model.DirectionChats,
	"чат":     model.DirectionChats,

	// ru
	"звонки": model.DirectionCalls,
	"звонок": model.DirectionCalls,
	"тикеты": model.DirectionTickets,
	"тикет":  model.DirectionTickets,
	"чаты":   model.DirectionChats,

	// en
	"call":   model.DirectionCalls,
	"phone":  model.DirectionCalls,
	"voice":  model.DirectionCalls,
	"ticket": model.DirectionTickets,
	"email":  model.DirectionTickets,
	"mail":   model.DirectionTickets,
	"chat":   model.DirectionChats,
}

var statusAliases = map[string]model.Status{
	// uk
	"робоча зміна": model.StatusWork,
	"робота":       model.StatusWork,
	"зміна":        model.StatusWork,
	"вихідний":     model.StatusDayOff,
	"відпустка":    model.StatusVacation,
	"лікарняний":   model.StatusSick,
	"тренінг":      model.StatusTraining,
	"навчання":     model.StatusTraining,
	"мітинг":       model.StatusMeeting,
	"зустріч":      model.StatusMeeting,
	"онборд":       model.StatusOnboard,
	"онбординг":    model.StatusOnboard,
	"менторство":   model.StatusMentor,
	"ментор":       model.StatusMentor,

	// ru
	"работа":     model.StatusWork,
	"смена":      model.StatusWork,
	"выходной":   model.StatusDayOff,
	"отпуск":     model.StatusVacation,
	"больничный": model.StatusSick,
	"тренинг":    model.StatusTraining,
	"обучение":   model.StatusTraining,
	"митинг":     model.StatusMeeting,
	"встреча":    model.StatusMeeting,

	// en
	"working":    model.StatusWork,
	"shift":      model.StatusWork,
	"off":        model.StatusDayOff,
	"day off":    model.StatusDayOff,
	"dayoff":     model.StatusDayOff,
	"day-off":    model.StatusDayOff,
	"holiday":    model.StatusVacation,
	"leave":      model.StatusVacation,
	"sick leave": model.StatusSick,
	"ill":        model.StatusSick,
	"meetings":   model.StatusMeeting,
	"onboarding": model.StatusOnboard,
	"mentoring":  model.StatusMentor,
}

func fold(label string) string {
	return cases.Fold().String(strings.Join(strings.Fields(label), " "))
}

// LookupDirection maps label to a code without any fallback.
func LookupDirection(label string) (model.Direction, bool) {
	k := fold(label)
	if k == "" {
		return "", false
	}
	if d := model.Direction(k); d.Valid() {
		return d, true
	}
	d, ok := directionAliases[k]
	return d, ok
}

// LookupStatus maps label to a code without any fallback.
func LookupStatus(label string) (model.Status, bool) {
	k := fold(label)
	if k == "" {
		return "", false
	}
	if s := model.Status(k); s.Valid() {
		return s, true
	}
	s, ok := statusAliases[k]
	return s, ok
}

// Vocabulary is the per-run label normalizer. Both methods are total:
// any input maps to a valid code. Each fallback is counted as a warning.
// Not safe for concurrent use; one import run owns one Vocabulary.
type Vocabulary struct {
	defaultDirection model.Direction
	logger           *zap.Logger
	warnings         int
	onWarning        func(kind string)
}

// NewVocabulary returns a normalizer falling back to defaultDirection.
// An invalid default is replaced by calls.
func NewVocabulary(defaultDirection model.Direction, logger *zap.Logger) *Vocabulary {
	if !defaultDirection.Valid() {
		defaultDirection = model.DirectionCalls
	}
	return &Vocabulary{defaultDirection: defaultDirection, logger: logger}
}

// OnWarning registers a hook fired on every fallback with "direction" or "status".
func (v *Vocabulary) OnWarning(fn func(kind string)) { v.onWarning = fn }

// DefaultDirection configured fallback code.
func (v *Vocabulary) DefaultDirection() model.Direction { return v.defaultDirection }

// Warnings number of fallbacks so far.
func (v *Vocabulary) Warnings() int { return v.warnings }

// NormalizeDirection tries label, then fallback (typically the activity cell),
// then the configured default.
func (v *Vocabulary) NormalizeDirection(label, fallback string) model.Direction {
	if d, ok := LookupDirection(label); ok {
		return d
	}
	if d, ok := LookupDirection(fallback); ok {
		return d
	}
	v.warn("direction", label, fallback, string(v.defaultDirection))
	return v.defaultDirection
}

// NormalizeStatus maps label to a status; unknown or empty is work.
func (v *Vocabulary) NormalizeStatus(label string) model.Status {
	if s, ok := LookupStatus(label); ok {
		return s
	}
	v.warn("status", label, "", string(model.StatusWork))
	return model.StatusWork
}

func (v *Vocabulary) warn(kind, label, fallback, used string) {
	v.warnings++
	if v.onWarning != nil {
		v.onWarning(kind)
	}
	// blank cells are routine in flat sheets
	if strings.TrimSpace(label) == "" && strings.TrimSpace(fallback) == "" {
		v.logger.Debug("vocabulary: empty label, using default",
			zap.String("kind", kind), zap.String("default", used))
		return
	}
	v.logger.Warn("vocabulary: unknown label, using default",
		zap.String("kind", kind),
		zap.String("label", label),
		zap.String("fallback", fallback),
		zap.String("default", used),
	)
}
