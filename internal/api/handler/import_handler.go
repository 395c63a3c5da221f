package handler

import (
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/internal/dto"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// ImportHandler schedule upload endpoint
type ImportHandler struct {
	importSvc service.ImportService
}

func NewImportHandler(importSvc service.ImportService) *ImportHandler {
	return &ImportHandler{importSvc: importSvc}
}

// Import runs an uploaded schedule through the import pipeline.
// POST /api/v1/imports (multipart: file + ImportRequest fields)
//
// The run is bound to the request context; a client disconnect cancels it
// after the current chunk.
func (h *ImportHandler) Import(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, 10001, "invalid import parameters")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, 17004, "file is required")
		return
	}

	formatName := req.Format
	if formatName == "" {
		formatName = fh.Filename
	}
	format, err := sheet.ParseFormat(formatName)
	if err != nil {
		response.BadRequest(c, 17003, err.Error())
		return
	}

	opts := h.importSvc.DefaultOptions()
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.Timezone != "" {
		loc, err := time.LoadLocation(req.Timezone)
		if err != nil {
			response.BadRequest(c, 10001, "unknown timezone")
			return
		}
		opts.Location = loc
	}
	opts.DryRun = req.DryRun
	if req.ResolveOnly {
		opts.CreateMissing = false
	}

	src := sheet.Options{Sheet: req.Sheet}
	if req.Delimiter != "" {
		src.Delimiter, _ = utf8.DecodeRuneInString(req.Delimiter)
	}

	f, err := fh.Open()
	if err != nil {
		response.InternalError(c)
		return
	}
	defer f.Close()

	report, err := h.importSvc.Import(c.Request.Context(), format, f, src, opts)
	if err != nil {
		h.handleImportError(c, err, report)
		return
	}
	response.OK(c, report)
}

func (h *ImportHandler) handleImportError(c *gin.Context, err error, report *dto.ImportReport) {
	switch {
	case errors.Is(err, service.ErrStructural):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, 17001, "import source is missing required columns", err.Error())
	case errors.Is(err, service.ErrImportRunning):
		response.Conflict(c, 17002, "another import is already running")
	case errors.Is(err, service.ErrInvalidOptions):
		response.BadRequest(c, 10001, "invalid import options")
	case report != nil:
		// the stream broke mid-run; committed chunks stay, report what was done
		response.Unprocessable(c, 17005, "import aborted while reading the source", report)
	default:
		response.InternalError(c)
	}
}
