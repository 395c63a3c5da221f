package handler

import (
	"github.com/bod9dzys/BasicWFMbb/internal/service"
)

// Handler aggregates every handler.
type Handler struct {
	Exchange *ExchangeHandler
	Import   *ImportHandler
	Export   *ExportHandler
	Calendar *CalendarHandler
}

// NewHandler builds the handlers. checker resolves caller capabilities.
func NewHandler(svc *service.Service, checker CapabilityChecker) *Handler {
	return &Handler{
		Exchange: NewExchangeHandler(svc.Exchange),
		Import:   NewImportHandler(svc.Import),
		Export:   NewExportHandler(svc.Export),
		Calendar: NewCalendarHandler(svc.Calendar, checker),
	}
}
