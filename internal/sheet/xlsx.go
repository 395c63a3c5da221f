package sheet

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// flatTimeLayout is how date cells are rendered into Row text.
const flatTimeLayout = "2006-01-02 15:04:05"

type xlsxStream struct {
	f        *excelize.File
	rows     *excelize.Rows
	header   *Header
	line     int
	date1904 bool
}

// NewXLSXStream opens the named sheet (first sheet when empty) and validates its header.
func NewXLSXStream(r io.Reader, sheetName string) (RowStream, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheetName, err)
	}
	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, ErrEmptySheet
	}
	cells, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("read xlsx header: %w", err)
	}
	h, err := ParseHeader(cells)
	if err != nil {
		rows.Close()
		f.Close()
		return nil, err
	}

	return &xlsxStream{f: f, rows: rows, header: h, line: 1, date1904: uses1904(f)}, nil
}

func (s *xlsxStream) Next() (Row, error) {
	for s.rows.Next() {
		s.line++
		cells, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return Row{}, fmt.Errorf("read xlsx row %d: %w", s.line, err)
		}
		row := s.header.Row(s.line, cells)
		if row.Empty() {
			continue
		}
		for _, f := range []Field{FieldStart, FieldEnd} {
			if t, ok := serialToTime(row.Get(f), s.date1904); ok {
				row.Set(f, t.Format(flatTimeLayout))
			}
		}
		return row, nil
	}
	if err := s.rows.Error(); err != nil {
		return Row{}, fmt.Errorf("iterate xlsx rows: %w", err)
	}
	return Row{}, io.EOF
}

func (s *xlsxStream) Close() error {
	if err := s.rows.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

func uses1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}

// serialToTime converts a raw date cell (a day serial number) to wall-clock time.
func serialToTime(v string, date1904 bool) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 1 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return time.Time{}, false
	}
	return t.Round(time.Second), true
}
