package sheet

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
)

// Writer emits rows in the flat layout, header first.
type Writer interface {
	Write(Row) error
	Close() error
}

// ── CSV ──

type csvWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the header immediately; a zero delimiter means ';'.
func NewCSVWriter(w io.Writer, delimiter rune) (Writer, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(FlatHeader); err != nil {
		return nil, err
	}
	return &csvWriter{w: cw}, nil
}

func (c *csvWriter) Write(r Row) error { return c.w.Write(r.Flat()) }

func (c *csvWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}

// ── XLSX ──

const xlsxSheet = "export"

var xlsxColWidths = []float64{10, 28, 18, 18, 11, 11, 18, 30}

type xlsxWriter struct {
	out  io.Writer
	f    *excelize.File
	sw   *excelize.StreamWriter
	next int
}

// NewXLSXWriter streams rows into a single "export" sheet; the workbook is
// written to w on Close.
func NewXLSXWriter(w io.Writer) (Writer, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		f.Close()
		return nil, err
	}
	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	for i, width := range xlsxColWidths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			f.Close()
			return nil, err
		}
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	header := make([]interface{}, len(FlatHeader))
	for i, h := range FlatHeader {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		f.Close()
		return nil, err
	}

	return &xlsxWriter{out: w, f: f, sw: sw, next: 2}, nil
}

func (x *xlsxWriter) Write(r Row) error {
	flat := r.Flat()
	values := make([]interface{}, len(flat))
	for i, v := range flat {
		values[i] = v
	}
	axis, _ := excelize.CoordinatesToCellName(1, x.next)
	x.next++
	return x.sw.SetRow(axis, values)
}

func (x *xlsxWriter) Close() error {
	defer x.f.Close()
	if err := x.sw.Flush(); err != nil {
		return err
	}
	return x.f.Write(x.out)
}

// NewWriter picks the writer for format; grid output is not supported.
func NewWriter(format Format, w io.Writer, delimiter rune) (Writer, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(w, delimiter)
	case FormatXLSX:
		return NewXLSXWriter(w)
	}
	return nil, fmt.Errorf("cannot write format %q", format)
}

// ── conversion ──

// ConvertStats outcome of Convert.
type ConvertStats struct {
	Written int
	Skipped int
}

// Convert copies src to dst, resolving each direction to a code. Rows
// without a usable interval are logged and skipped.
func Convert(src RowStream, dst Writer, vocab *normalize.Vocabulary, logger *zap.Logger) (ConvertStats, error) {
	var stats ConvertStats
	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		if row.Get(FieldStart) == "" || row.Get(FieldEnd) == "" {
			stats.Skipped++
			logger.Warn("convert: cannot parse cell",
				zap.String("agent", row.Get(FieldAgent)),
				zap.String("cell", row.Ref),
				zap.String("value", row.Get(FieldStart)),
			)
			continue
		}
		row.Set(FieldDirection, string(vocab.NormalizeDirection(row.Get(FieldDirection), row.Get(FieldActivity))))
		if err := dst.Write(row); err != nil {
			return stats, fmt.Errorf("write row %d: %w", row.Line, err)
		}
		stats.Written++
	}
	return stats, nil
}
