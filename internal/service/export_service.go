package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
)

// ── export errors ──

var (
	ErrExportEmpty        = errors.New("no shifts in the requested range")
	ErrExportInvalidRange = errors.New("export range end must be after its start")
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportService writes stored shifts back out in the flat import layout,
// so an export can be edited and re-imported.
type ExportService interface {
	// ExportShifts returns an .xlsx workbook and a suggested filename.
	ExportShifts(ctx context.Context, from, to time.Time) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService creates ExportService; timestamps are rendered in loc.
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &exportService{repo: repo, loc: loc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportShifts
// ═══════════════════════════════════════════════════════════
//
// One row per shift overlapping [from, to). The id column carries the
// shift's external id, or its store id when it has none.

func (s *exportService) ExportShifts(ctx context.Context, from, to time.Time) (*bytes.Buffer, string, error) {
	if !to.After(from) {
		return nil, "", ErrExportInvalidRange
	}
	shifts, err := s.repo.Shift.List(ctx, repository.ShiftFilter{From: from, To: to})
	if err != nil {
		s.logger.Error("list shifts for export failed", zap.Error(err))
		return nil, "", err
	}
	if len(shifts) == 0 {
		return nil, "", ErrExportEmpty
	}

	buf := new(bytes.Buffer)
	w, err := sheet.NewXLSXWriter(buf)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook: %w", err)
	}
	for i := range shifts {
		if err := w.Write(s.shiftRow(i+2, &shifts[i])); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("write shift %d: %w", shifts[i].ID, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}

	filename := fmt.Sprintf("shifts_%s_%s.xlsx",
		from.In(s.loc).Format("20060102"), to.In(s.loc).Format("20060102"))
	s.logger.Info("shifts exported", zap.Int("rows", len(shifts)), zap.String("filename", filename))
	return buf, filename, nil
}

func (s *exportService) shiftRow(line int, sh *model.Shift) sheet.Row {
	id := strconv.FormatInt(sh.ID, 10)
	if sh.ExternalID != nil && *sh.ExternalID != "" {
		id = *sh.ExternalID
	}
	agent := ""
	if sh.Identity != nil {
		agent = sh.Identity.DisplayName()
	}
	comment := ""
	if sh.Comment != nil {
		comment = *sh.Comment
	}
	return sheet.NewRow(line, map[sheet.Field]string{
		sheet.FieldExternalID: id,
		sheet.FieldAgent:      agent,
		sheet.FieldStart:      sh.Start.In(s.loc).Format(exportTimeLayout),
		sheet.FieldEnd:        sh.End.In(s.loc).Format(exportTimeLayout),
		sheet.FieldDirection:  string(sh.Direction),
		sheet.FieldStatus:     string(sh.Status),
		sheet.FieldActivity:   sh.Activity,
		sheet.FieldComment:    comment,
	})
}
