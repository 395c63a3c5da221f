package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DefaultDelimiter matches what spreadsheet tools emit in comma-decimal locales.
const DefaultDelimiter = ';'

type csvStream struct {
	r      *csv.Reader
	header *Header
	line   int
}

// NewCSVStream reads the header immediately; a zero delimiter means ';'.
func NewCSVStream(r io.Reader, delimiter rune) (RowStream, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	rec, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySheet
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	h, err := ParseHeader(rec)
	if err != nil {
		return nil, err
	}
	return &csvStream{r: cr, header: h, line: 1}, nil
}

func (s *csvStream) Next() (Row, error) {
	for {
		rec, err := s.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read csv line %d: %w", s.line+1, err)
		}
		s.line, _ = s.r.FieldPos(0)
		row := s.header.Row(s.line, rec)
		if row.Empty() {
			continue
		}
		return row, nil
	}
}

func (s *csvStream) Close() error { return nil }
