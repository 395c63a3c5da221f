package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/internal/dto"
	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	pkgerrors "github.com/bod9dzys/BasicWFMbb/pkg/errors"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// ExchangeHandler shift exchange endpoints
type ExchangeHandler struct {
	exchangeSvc service.ExchangeService
}

func NewExchangeHandler(exchangeSvc service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchangeSvc: exchangeSvc}
}

// Propose swaps the owners of two shifts on behalf of the caller.
// POST /api/v1/exchanges
func (h *ExchangeHandler) Propose(c *gin.Context) {
	requesterID, ok := MustGetIdentityID(c)
	if !ok {
		return
	}

	var req dto.ProposeExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "invalid request body")
		return
	}

	result, err := h.exchangeSvc.Propose(c.Request.Context(), service.ProposeInput{
		FromShiftID: req.FromShiftID,
		ToShiftID:   req.ToShiftID,
		RequesterID: requesterID,
		Comment:     req.Comment,
	})
	if err != nil {
		h.handleExchangeError(c, err)
		return
	}

	if !result.Approved {
		response.Unprocessable(c, 18003, "exchange rejected",
			dto.ExchangeRejection{Reason: string(result.Reason)})
		return
	}
	response.Created(c, toExchangeResponse(result.Record))
}

// List exchange history, optionally for one shift.
// GET /api/v1/exchanges?shift_id=&page=&page_size=
func (h *ExchangeHandler) List(c *gin.Context) {
	var req dto.ExchangeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "invalid query")
		return
	}

	records, total, err := h.exchangeSvc.List(c.Request.Context(), req.ShiftID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		response.InternalError(c)
		return
	}

	list := make([]dto.ExchangeResponse, 0, len(records))
	for i := range records {
		list = append(list, toExchangeResponse(&records[i]))
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

func (h *ExchangeHandler) handleExchangeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrShiftNotFound):
		response.NotFound(c, 18001, "shift not found")
	case errors.Is(err, service.ErrRequesterNotFound):
		response.Forbidden(c, 18002, "requesting identity not found")
	case errors.Is(err, pkgerrors.ErrLockTimeout):
		response.Unavailable(c, 18005, "shifts are busy, retry shortly")
	case errors.Is(err, service.ErrExchangeExecution):
		response.Error(c, http.StatusInternalServerError, 18004, "exchange could not be executed")
	default:
		response.InternalError(c)
	}
}

func toExchangeResponse(r *model.ExchangeRecord) dto.ExchangeResponse {
	return dto.ExchangeResponse{
		ID:            r.ID,
		FromShiftID:   r.FromShiftID,
		ToShiftID:     r.ToShiftID,
		RequestedByID: r.RequestedByID,
		Outcome:       string(r.Outcome),
		Comment:       r.Comment,
		FromShift:     toShiftResponse(r.FromShift),
		ToShift:       toShiftResponse(r.ToShift),
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
}

func toShiftResponse(s *model.Shift) *dto.ShiftResponse {
	if s == nil {
		return nil
	}
	return &dto.ShiftResponse{
		ID:         s.ID,
		IdentityID: s.IdentityID,
		Start:      s.Start.Format(time.RFC3339),
		End:        s.End.Format(time.RFC3339),
		Direction:  string(s.Direction),
		Status:     string(s.Status),
		Activity:   s.Activity,
		Comment:    s.Comment,
	}
}
