package sheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
)

// Grid layout: row 1 holds dates from column C on; column A is the
// activity label, column B the full name; every other cell is either
// "HH:MM-HH:MM" or a status word for the whole day.
const (
	gridActivityCol  = 0
	gridAgentCol     = 1
	gridFirstDateCol = 2

	gridTimeLayout = "2006-01-02 15:04"
)

var gridDateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006"}

type gridStream struct {
	rows  [][]string
	dates []time.Time // zero where the header cell is not a date
	r, c  int
}

// NewGridStream reads the whole sheet; grids are a month wide at most.
func NewGridStream(r io.Reader, sheetName string) (RowStream, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	date1904 := uses1904(f)
	dates := make([]time.Time, len(rows[0]))
	found := 0
	for i := gridFirstDateCol; i < len(rows[0]); i++ {
		if d, ok := parseGridDate(rows[0][i], date1904); ok {
			dates[i] = d
			found++
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: no dates in header row", ErrMissingColumns)
	}

	return &gridStream{rows: rows, dates: dates, r: 1, c: gridFirstDateCol}, nil
}

func (s *gridStream) Next() (Row, error) {
	for s.r < len(s.rows) {
		cells := s.rows[s.r]
		agent := cellAt(cells, gridAgentCol)
		if agent == "" || s.c >= len(cells) {
			s.r++
			s.c = gridFirstDateCol
			continue
		}

		col := s.c
		s.c++
		if col >= len(s.dates) || s.dates[col].IsZero() {
			continue
		}
		raw := strings.TrimSpace(cells[col])
		if raw == "" {
			continue
		}

		ref, _ := excelize.CoordinatesToCellName(col+1, s.r+1)
		row := NewRow(s.r+1, map[Field]string{
			FieldAgent:    agent,
			FieldActivity: cellAt(cells, gridActivityCol),
		})
		row.Ref = ref
		fillGridCell(&row, s.dates[col], raw)
		return row, nil
	}
	return Row{}, io.EOF
}

func (s *gridStream) Close() error { return nil }

// fillGridCell sets start, end and status from one cell. A cell that is
// neither an interval nor a status keeps the raw text in start and leaves
// end blank, so the importer reports it as a bad interval.
func fillGridCell(row *Row, day time.Time, raw string) {
	if start, end, ok := parseCellInterval(day, raw); ok {
		row.Set(FieldStart, start.Format(gridTimeLayout))
		row.Set(FieldEnd, end.Format(gridTimeLayout))
		row.Set(FieldStatus, string(model.StatusWork))
		return
	}
	if st, ok := normalize.LookupStatus(raw); ok {
		row.Set(FieldStart, day.Format(gridTimeLayout))
		row.Set(FieldEnd, day.AddDate(0, 0, 1).Format(gridTimeLayout))
		row.Set(FieldStatus, string(st))
		return
	}
	row.Set(FieldStart, raw)
	row.Set(FieldComment, "unrecognised cell "+row.Ref)
}

// parseCellInterval parses "HH:MM-HH:MM"; end 24:00 is next midnight and
// an end at or before start rolls to the next day.
func parseCellInterval(day time.Time, raw string) (time.Time, time.Time, bool) {
	raw = strings.ReplaceAll(raw, "\u2013", "-")
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, false
	}
	sh, sm, ok := parseClock(parts[0])
	if !ok || sh > 23 {
		return time.Time{}, time.Time{}, false
	}
	eh, em, ok := parseClock(parts[1])
	if !ok || eh > 24 || (eh == 24 && em != 0) {
		return time.Time{}, time.Time{}, false
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, time.UTC)
	end := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, time.UTC)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}

func parseClock(s string) (int, int, bool) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func parseGridDate(v string, date1904 bool) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if t, ok := serialToTime(v, date1904); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range gridDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}
