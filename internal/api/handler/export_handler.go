package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/internal/dto"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler shift export endpoint
type ExportHandler struct {
	exportSvc service.ExportService
}

func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportShifts downloads shifts overlapping [from, to) as .xlsx
// GET /api/v1/shifts/export?from=&to=
func (h *ExportHandler) ExportShifts(c *gin.Context) {
	from, to, ok := bindTimeRange(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportShifts(c.Request.Context(), from, to)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportEmpty):
		response.NotFound(c, 16101, "no shifts in the requested range")
	case errors.Is(err, service.ErrExportInvalidRange):
		response.BadRequest(c, 16102, "to must be after from")
	default:
		response.InternalError(c)
	}
}

// bindTimeRange reads from/to as RFC3339 or YYYY-MM-DD (UTC midnight).
// It writes 400 and returns false on failure.
func bindTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	var req dto.TimeRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from and to are required")
		return time.Time{}, time.Time{}, false
	}
	from, err1 := parseRangeBound(req.From)
	to, err2 := parseRangeBound(req.To)
	if err1 != nil || err2 != nil {
		response.BadRequest(c, 10001, "from and to must be RFC3339 or YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseRangeBound(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
