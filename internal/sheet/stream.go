package sheet

import (
	"fmt"
	"io"
	"strings"
)

// RowStream is an ordered sequence of rows. Next returns io.EOF after the last row.
type RowStream interface {
	Next() (Row, error)
	Close() error
}

// Format of an uploaded schedule.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatGrid Format = "grid"
)

// ParseFormat accepts a format name or a file name with extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	switch Format(s) {
	case FormatCSV, FormatXLSX, FormatGrid:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Options for opening a source.
type Options struct {
	Delimiter rune   // CSV only, default ';'
	Sheet     string // XLSX/grid, default first sheet
}

// Open validates the header of r and returns a stream positioned at the first data row.
func Open(format Format, r io.Reader, opts Options) (RowStream, error) {
	switch format {
	case FormatCSV:
		return NewCSVStream(r, opts.Delimiter)
	case FormatXLSX:
		return NewXLSXStream(r, opts.Sheet)
	case FormatGrid:
		return NewGridStream(r, opts.Sheet)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// SliceStream serves rows from memory.
type SliceStream struct {
	rows []Row
	pos  int
}

// NewSliceStream wraps rows.
func NewSliceStream(rows []Row) *SliceStream { return &SliceStream{rows: rows} }

func (s *SliceStream) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *SliceStream) Close() error { return nil }
