package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// CalendarHandler iCalendar feed endpoint
type CalendarHandler struct {
	calendarSvc service.CalendarService
	checker     CapabilityChecker
}

func NewCalendarHandler(calendarSvc service.CalendarService, checker CapabilityChecker) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc, checker: checker}
}

// IdentityCalendar renders one identity's shifts.
// GET /api/v1/identities/:id/calendar.ics?from=&to=
// Callers read their own feed; other feeds need export.run.
func (h *CalendarHandler) IdentityCalendar(c *gin.Context) {
	callerID, ok := MustGetIdentityID(c)
	if !ok {
		return
	}
	identityID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || identityID <= 0 {
		response.BadRequest(c, 10001, "invalid identity id")
		return
	}

	if identityID != callerID {
		allowed, err := h.checker.HasCapability(c.Request.Context(), callerID, model.CapExportRun)
		if err != nil {
			response.InternalError(c)
			return
		}
		if !allowed {
			response.Forbidden(c, 10003, "not allowed to read this calendar")
			return
		}
	}

	from, to, ok := bindTimeRange(c)
	if !ok {
		return
	}

	body, err := h.calendarSvc.IdentityCalendar(c.Request.Context(), identityID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrIdentityUnknown) {
			response.NotFound(c, 19001, "identity not found")
			return
		}
		response.InternalError(c)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}
