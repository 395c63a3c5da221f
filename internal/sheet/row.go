// Package sheet reads schedule spreadsheets as typed row streams and writes
// the flat import layout back out.
package sheet

import (
	"errors"
	"fmt"
	"strings"
)

// Field is a fixed column slot of a Row.
type Field int

const (
	FieldAgent Field = iota
	FieldStart
	FieldEnd
	FieldSupervisor
	FieldDirection
	FieldStatus
	FieldActivity
	FieldComment
	FieldExternalID
	fieldCount
)

var fieldNames = [fieldCount]string{
	"agent", "start", "end", "supervisor", "direction", "status", "activity", "comment", "id",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Required columns; absence of any is a structural error.
var requiredFields = []Field{FieldAgent, FieldStart, FieldEnd}

// FlatHeader is the canonical column order written by Writer and produced by exports.
var FlatHeader = []string{"id", "agent", "start", "end", "direction", "status", "activity", "comment"}

// ErrMissingColumns the header lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// ErrEmptySheet the source has no header row.
var ErrEmptySheet = errors.New("sheet has no header row")

// headerAliases keys are lower-cased, trimmed header cells.
var headerAliases = map[string]Field{
	"agent":        FieldAgent,
	"name":         FieldAgent,
	"full_name":    FieldAgent,
	"full name":    FieldAgent,
	"worker":       FieldAgent,
	"employee":     FieldAgent,
	"агент":        FieldAgent,
	"співробітник": FieldAgent,
	"піб":          FieldAgent,

	"start":    FieldStart,
	"start_at": FieldStart,
	"from":     FieldStart,
	"початок":  FieldStart,

	"end":    FieldEnd,
	"end_at": FieldEnd,
	"to":     FieldEnd,
	"кінець": FieldEnd,

	"supervisor": FieldSupervisor,
	"team_lead":  FieldSupervisor,
	"team lead":  FieldSupervisor,
	"teamlead":   FieldSupervisor,
	"tl":         FieldSupervisor,
	"lead":       FieldSupervisor,
	"тімлід":     FieldSupervisor,

	"direction": FieldDirection,
	"channel":   FieldDirection,
	"напрям":    FieldDirection,

	"status": FieldStatus,
	"статус": FieldStatus,

	"activity":   FieldActivity,
	"активність": FieldActivity,

	"comment":  FieldComment,
	"note":     FieldComment,
	"коментар": FieldComment,

	"id":          FieldExternalID,
	"external_id": FieldExternalID,
}

// Header maps each Field to its source column, -1 when absent.
type Header struct {
	index [fieldCount]int
}

// ParseHeader validates a header row once at stream-open time.
// Unknown columns are ignored; the first occurrence of a field wins.
func ParseHeader(cells []string) (*Header, error) {
	h := &Header{}
	for i := range h.index {
		h.index[i] = -1
	}
	for i, c := range cells {
		key := strings.ToLower(strings.TrimSpace(c))
		if i == 0 {
			key = strings.TrimPrefix(key, "\ufeff")
		}
		f, ok := headerAliases[key]
		if !ok || h.index[f] >= 0 {
			continue
		}
		h.index[f] = i
	}

	var missing []string
	for _, f := range requiredFields {
		if h.index[f] < 0 {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return h, nil
}

// Has reports whether the source carries f.
func (h *Header) Has(f Field) bool { return h.index[f] >= 0 }

// Row picks the known fields out of a raw record.
func (h *Header) Row(line int, cells []string) Row {
	r := Row{Line: line}
	for f, idx := range h.index {
		if idx >= 0 && idx < len(cells) {
			r.values[f] = strings.TrimSpace(cells[idx])
		}
	}
	return r
}

// Row is one typed record; Line is the 1-based source row.
type Row struct {
	Line   int
	Ref    string // cell reference for grid sources, e.g. "D5"
	values [fieldCount]string
}

// NewRow builds a Row from explicit values, used by generated sources.
func NewRow(line int, values map[Field]string) Row {
	r := Row{Line: line}
	for f, v := range values {
		if f >= 0 && f < fieldCount {
			r.values[f] = v
		}
	}
	return r
}

// Get returns the trimmed value of f.
func (r Row) Get(f Field) string { return r.values[f] }

// Set replaces the value of f.
func (r *Row) Set(f Field, v string) { r.values[f] = v }

// Empty reports whether every field is blank.
func (r Row) Empty() bool {
	for _, v := range r.values {
		if v != "" {
			return false
		}
	}
	return true
}

// Values returns the non-empty fields keyed by name, for error reports.
func (r Row) Values() map[string]string {
	out := make(map[string]string, fieldCount)
	for f, v := range r.values {
		if v != "" {
			out[Field(f).String()] = v
		}
	}
	if r.Ref != "" {
		out["cell"] = r.Ref
	}
	return out
}

// Flat returns the values in FlatHeader order.
func (r Row) Flat() []string {
	return []string{
		r.values[FieldExternalID],
		r.values[FieldAgent],
		r.values[FieldStart],
		r.values[FieldEnd],
		r.values[FieldDirection],
		r.values[FieldStatus],
		r.values[FieldActivity],
		r.values[FieldComment],
	}
}
