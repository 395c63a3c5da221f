package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/internal/metrics"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
)

// Service aggregates every service.
type Service struct {
	Import   ImportService
	Exchange ExchangeService
	Export   ExportService
	Calendar CalendarService
}

// NewService wires the services. locker and m may be nil.
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker RunLocker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	loc, err := cfg.Import.Location()
	if err != nil {
		loc = time.UTC
	}
	return &Service{
		Import:   NewImportService(repo, &cfg.Import, locker, m, logger.Named("import")),
		Exchange: NewExchangeService(repo, &cfg.Exchange, m, logger.Named("exchange")),
		Export:   NewExportService(repo, loc, logger.Named("export")),
		Calendar: NewCalendarService(repo, logger.Named("calendar")),
	}
}
