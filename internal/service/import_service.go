package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/internal/dto"
	"github.com/bod9dzys/BasicWFMbb/internal/metrics"
	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
	"github.com/bod9dzys/BasicWFMbb/pkg/redis"
)

// ── import errors ──

var (
	ErrStructural     = errors.New("import source is missing required columns")
	ErrImportRunning  = errors.New("another import is already running")
	ErrInvalidOptions = errors.New("invalid import options")
)

const (
	importLockName  = "import"
	suggestionLimit = 3
)

// Row-level reasons carried in the report.
const (
	reasonEmptyName       = "empty name"
	reasonUnknownIdentity = "no identity matches the name"
	reasonBadStart        = "unparseable start"
	reasonBadEnd          = "unparseable end"
	reasonBadInterval     = "end is not after start even after overnight rollover"
	reasonDuplicate       = "external id already imported"
	reasonBadSupervisor   = "supervisor not resolved"
	reasonNameTooLong     = "name is longer than 150 characters per part"
	reasonLongExternalID  = "external id is longer than 64 characters"
)

// shifts.external_id width
const maxExternalIDLen = 64

// RunLocker serialises import runs across processes.
type RunLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*redis.Lock, error)
}

// ImportOptions of one run. Zero fields take the configured defaults.
type ImportOptions struct {
	BatchSize        int
	CreateMissing    bool
	DryRun           bool
	Location         *time.Location
	DefaultDirection model.Direction
	MaxErrors        int
	RunID            string
}

// ImportService schedule import pipeline
//
// A run streams rows once. Each chunk of BatchSize accepted rows is one
// transaction holding the identity creations, supervisor links and the bulk
// shift insert; a failed chunk is rolled back and the run moves on.
// Cancellation is honoured after each flush; flushed chunks stay committed.
type ImportService interface {
	// Import opens r in the given format and runs it.
	Import(ctx context.Context, format sheet.Format, r io.Reader, src sheet.Options, opts ImportOptions) (*dto.ImportReport, error)
	// Run consumes an already opened stream.
	Run(ctx context.Context, stream sheet.RowStream, opts ImportOptions) (*dto.ImportReport, error)
	// DefaultOptions returns the configured defaults.
	DefaultOptions() ImportOptions
}

type importService struct {
	repo    *repository.Repository
	cfg     *config.ImportConfig
	locker  RunLocker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewImportService creates ImportService. locker and m may be nil.
func NewImportService(repo *repository.Repository, cfg *config.ImportConfig, locker RunLocker, m *metrics.Metrics, logger *zap.Logger) ImportService {
	return &importService{repo: repo, cfg: cfg, locker: locker, metrics: m, logger: logger}
}

func (s *importService) DefaultOptions() ImportOptions {
	loc, err := s.cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return ImportOptions{
		BatchSize:        s.cfg.BatchSize,
		CreateMissing:    s.cfg.CreateMissing,
		Location:         loc,
		DefaultDirection: model.Direction(s.cfg.DefaultDirection),
		MaxErrors:        s.cfg.MaxReportErrors,
	}
}

func (s *importService) withDefaults(opts ImportOptions) ImportOptions {
	def := s.DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.DefaultDirection == "" {
		opts.DefaultDirection = def.DefaultDirection
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = def.MaxErrors
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return opts
}

// ═══════════════════════════════════════════════════════════
// Import
// ═══════════════════════════════════════════════════════════

func (s *importService) Import(ctx context.Context, format sheet.Format, r io.Reader, src sheet.Options, opts ImportOptions) (*dto.ImportReport, error) {
	stream, err := sheet.Open(format, r, src)
	if err != nil {
		if errors.Is(err, sheet.ErrMissingColumns) || errors.Is(err, sheet.ErrEmptySheet) {
			s.metrics.ImportRun("structural")
			return nil, fmt.Errorf("%w: %v", ErrStructural, err)
		}
		return nil, err
	}
	defer stream.Close()
	return s.Run(ctx, stream, opts)
}

// ═══════════════════════════════════════════════════════════
// Run
// ═══════════════════════════════════════════════════════════

func (s *importService) Run(ctx context.Context, stream sheet.RowStream, opts ImportOptions) (*dto.ImportReport, error) {
	if opts.BatchSize < 0 || opts.MaxErrors < 0 {
		return nil, ErrInvalidOptions
	}
	opts = s.withDefaults(opts)
	log := s.logger.With(zap.String("run_id", opts.RunID), zap.Bool("dry_run", opts.DryRun))

	if s.locker != nil && !opts.DryRun {
		lock, err := s.locker.Acquire(ctx, importLockName, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockHeld) {
				return nil, ErrImportRunning
			}
			return nil, fmt.Errorf("acquire import lock: %w", err)
		}
		defer lock.Release(context.Background())
	}

	resolver := NewIdentityResolver(s.repo, log, ResolverOptions{
		CreateMissing: opts.CreateMissing,
		DryRun:        opts.DryRun,
	})
	if err := resolver.Load(ctx); err != nil {
		s.metrics.ImportRun("failed")
		return nil, err
	}

	vocab := normalize.NewVocabulary(opts.DefaultDirection, log)
	vocab.OnWarning(s.metrics.VocabularyFallback)

	run := &importRun{
		svc:      s,
		ctx:      ctx,
		opts:     opts,
		log:      log,
		resolver: resolver,
		vocab:    vocab,
		report:   &dto.ImportReport{RunID: opts.RunID, DryRun: opts.DryRun},
		seenExt:  make(map[string]struct{}),
	}
	started := time.Now()
	err := run.consume(stream)
	run.abort()

	report := run.report
	report.IdentitiesCreated = resolver.CreatedCount()
	report.VocabularyWarnings = vocab.Warnings()

	s.metrics.ImportRows(metrics.RowCreated, report.Created)
	s.metrics.ImportRows(metrics.RowSkippedNoIdentity, report.SkippedNoIdentity)
	s.metrics.ImportRows(metrics.RowSkippedBadInterval, report.SkippedBadInterval)
	s.metrics.ImportRows(metrics.RowSkippedDuplicate, report.SkippedDuplicate)
	s.metrics.ImportRows(metrics.RowSkippedInvalid, report.SkippedInvalid)
	s.metrics.ImportRows(metrics.RowFailed, report.FailedRows)
	if !opts.DryRun {
		s.metrics.IdentitiesCreated(report.IdentitiesCreated)
	}

	if err != nil {
		s.metrics.ImportRun("failed")
		log.Error("import aborted", zap.Error(err), zap.Int("processed", report.Processed))
		return report, err
	}

	result := "ok"
	if report.Cancelled {
		result = "cancelled"
	}
	s.metrics.ImportRun(result)
	log.Info("import finished",
		zap.String("result", result),
		zap.Duration("took", time.Since(started)),
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("skipped_no_identity", report.SkippedNoIdentity),
		zap.Int("skipped_bad_interval", report.SkippedBadInterval),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("skipped_invalid", report.SkippedInvalid),
		zap.Int("failed_rows", report.FailedRows),
		zap.Int("identities_created", report.IdentitiesCreated),
	)
	return report, nil
}

// ── per-run state ──

type importRun struct {
	svc      *importService
	ctx      context.Context
	opts     ImportOptions
	log      *zap.Logger
	resolver *IdentityResolver
	vocab    *normalize.Vocabulary
	report   *dto.ImportReport

	tx        repository.Tx
	chunk     []model.Shift
	chunkRows []int // source line per chunk entry
	seenExt   map[string]struct{}
}

// consume reads the stream to the end or until cancellation, checked before
// every row. Only stream read failures are returned; everything else lands
// in the report.
func (r *importRun) consume(stream sheet.RowStream) error {
	for {
		if r.ctx.Err() != nil {
			r.stop()
			return nil
		}
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		r.report.Processed++
		r.processRow(row)

		if len(r.chunk) >= r.opts.BatchSize {
			r.flush()
		}
	}
	if r.ctx.Err() != nil {
		r.stop()
		return nil
	}
	r.flush()
	if r.ctx.Err() != nil {
		r.report.Cancelled = true
	}
	return nil
}

// stop ends a cancelled run. Committed chunks stay; the open one is rolled
// back and its accepted rows count as failed. Unread rows are not counted.
func (r *importRun) stop() {
	r.report.Cancelled = true
	if len(r.chunk) > 0 || r.tx != nil {
		r.failChunk(firstLine(r.chunkRows), r.ctx.Err(), 0)
	}
	r.log.Info("import cancelled", zap.Int("processed", r.report.Processed))
}

// writeRepo opens the chunk transaction on first use.
func (r *importRun) writeRepo() (*repository.Repository, error) {
	if r.opts.DryRun {
		return r.svc.repo, nil
	}
	if r.tx == nil {
		tx, err := r.svc.repo.BeginTx(r.ctx)
		if err != nil {
			return nil, err
		}
		r.tx = tx
	}
	return r.tx.Repo(), nil
}

func (r *importRun) processRow(row sheet.Row) {
	repo, err := r.writeRepo()
	if err != nil {
		r.failChunk(row.Line, err, 1)
		return
	}

	// 1. identity
	rawName := row.Get(sheet.FieldAgent)
	identityID, err := r.resolver.Resolve(r.ctx, repo, rawName, model.KindWorker)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyName):
			r.report.SkippedNoIdentity++
			r.rowError(row, reasonEmptyName, nil)
		case errors.Is(err, ErrIdentityNotFound):
			r.report.SkippedNoIdentity++
			r.rowError(row, reasonUnknownIdentity, r.resolver.Suggest(rawName, suggestionLimit))
		case errors.Is(err, ErrNameTooLong):
			r.report.SkippedNoIdentity++
			r.rowError(row, reasonNameTooLong, nil)
		default:
			r.failChunk(row.Line, err, 1)
		}
		return
	}

	// 2-3. interval
	start, end, reason := parseInterval(row.Get(sheet.FieldStart), row.Get(sheet.FieldEnd), r.opts.Location)
	if reason != "" {
		r.report.SkippedBadInterval++
		r.rowError(row, reason, nil)
		return
	}

	// supervisor link is best effort; the shift is kept either way
	if rawSup := row.Get(sheet.FieldSupervisor); rawSup != "" {
		supID, err := r.resolver.Resolve(r.ctx, repo, rawSup, model.KindSupervisor)
		switch {
		case err == nil:
			r.resolver.LinkSupervisor(identityID, supID)
		case errors.Is(err, ErrEmptyName), errors.Is(err, ErrIdentityNotFound):
			r.rowError(row, reasonBadSupervisor, r.resolver.Suggest(rawSup, suggestionLimit))
		case errors.Is(err, ErrNameTooLong):
			r.rowError(row, reasonBadSupervisor+": "+reasonNameTooLong, nil)
		default:
			r.failChunk(row.Line, err, 1)
			return
		}
	}

	// external id reconciliation within the run
	var externalID *string
	if ext := row.Get(sheet.FieldExternalID); ext != "" {
		if utf8.RuneCountInString(ext) > maxExternalIDLen {
			r.report.SkippedInvalid++
			r.rowError(row, reasonLongExternalID, nil)
			return
		}
		if _, dup := r.seenExt[ext]; dup {
			r.report.SkippedDuplicate++
			r.rowError(row, reasonDuplicate, nil)
			return
		}
		r.seenExt[ext] = struct{}{}
		externalID = &ext
	}

	// 4. vocabulary
	shift := model.Shift{
		IdentityID: identityID,
		Start:      start,
		End:        end,
		Direction:  r.vocab.NormalizeDirection(row.Get(sheet.FieldDirection), row.Get(sheet.FieldActivity)),
		Status:     r.vocab.NormalizeStatus(row.Get(sheet.FieldStatus)),
		Activity:   truncateRunes(row.Get(sheet.FieldActivity), 100),
		ExternalID: externalID,
		Version:    1,
	}
	if c := row.Get(sheet.FieldComment); c != "" {
		shift.Comment = &c
	}

	// 5. batch
	r.chunk = append(r.chunk, shift)
	r.chunkRows = append(r.chunkRows, row.Line)
}

// flush writes the current chunk in its transaction and commits it.
func (r *importRun) flush() {
	if len(r.chunk) == 0 && r.tx == nil && r.resolver.PendingLinks() == 0 {
		return
	}
	started := time.Now()
	defer func() { r.svc.metrics.ImportChunk(time.Since(started)) }()

	repo, err := r.writeRepo()
	if err != nil {
		r.failChunk(firstLine(r.chunkRows), err, 0)
		return
	}

	if err := r.dropExistingExternalIDs(repo); err != nil {
		r.failChunk(firstLine(r.chunkRows), err, 0)
		return
	}

	if r.opts.DryRun {
		r.report.Created += len(r.chunk)
		r.report.SupervisorsLinked += r.resolver.DropLinks()
		r.resetChunk()
		return
	}

	linked, err := r.resolver.ApplyLinks(r.ctx, repo)
	if err != nil {
		r.failChunk(firstLine(r.chunkRows), err, 0)
		return
	}
	if err := repo.Shift.BulkCreate(r.ctx, r.chunk, r.opts.BatchSize); err != nil {
		r.failChunk(firstLine(r.chunkRows), err, 0)
		return
	}
	if err := r.tx.Commit(); err != nil {
		r.tx = nil
		r.failChunk(firstLine(r.chunkRows), err, 0)
		return
	}
	r.tx = nil
	r.resolver.Commit()

	r.report.Created += len(r.chunk)
	r.report.SupervisorsLinked += linked
	r.log.Debug("chunk committed", zap.Int("rows", len(r.chunk)), zap.Int("linked", linked))
	r.resetChunk()
}

func (r *importRun) dropExistingExternalIDs(repo *repository.Repository) error {
	var ids []string
	for i := range r.chunk {
		if r.chunk[i].ExternalID != nil {
			ids = append(ids, *r.chunk[i].ExternalID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	existing, err := repo.Shift.ExistingExternalIDs(r.ctx, ids)
	if err != nil {
		return fmt.Errorf("check external ids: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}

	kept := r.chunk[:0]
	keptRows := r.chunkRows[:0]
	for i, sh := range r.chunk {
		if sh.ExternalID != nil {
			if _, dup := existing[*sh.ExternalID]; dup {
				r.report.SkippedDuplicate++
				r.addError(dto.ImportRowError{
					Row:    r.chunkRows[i],
					Values: map[string]string{"id": *sh.ExternalID},
					Reason: reasonDuplicate,
				})
				continue
			}
		}
		kept = append(kept, sh)
		keptRows = append(keptRows, r.chunkRows[i])
	}
	r.chunk = kept
	r.chunkRows = keptRows
	return nil
}

// failChunk rolls the open transaction back. Every accepted row of the chunk
// plus extra rows being processed count as failed, and their external ids
// may be imported again later in the run.
func (r *importRun) failChunk(line int, cause error, extra int) {
	failed := len(r.chunk) + extra
	for i := range r.chunk {
		if ext := r.chunk[i].ExternalID; ext != nil {
			delete(r.seenExt, *ext)
		}
	}
	if r.tx != nil {
		if err := r.tx.Rollback(); err != nil {
			r.log.Warn("rollback failed", zap.Error(err))
		}
		r.tx = nil
	}
	r.resolver.Discard()

	r.report.FailedRows += failed
	r.log.Error("import chunk rolled back",
		zap.Int("first_row", line),
		zap.Int("rows", failed),
		zap.Error(cause),
	)
	r.addError(dto.ImportRowError{
		Row:    line,
		Reason: fmt.Sprintf("chunk of %d rows rolled back: %v", failed, cause),
	})
	r.resetChunk()
}

// abort releases a transaction left open by an early return.
func (r *importRun) abort() {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
		r.resolver.Discard()
	}
}

func (r *importRun) resetChunk() {
	r.chunk = r.chunk[:0]
	r.chunkRows = r.chunkRows[:0]
}

func (r *importRun) rowError(row sheet.Row, reason string, suggestions []string) {
	r.log.Warn("import row skipped", zap.Int("row", row.Line), zap.String("reason", reason))
	r.addError(dto.ImportRowError{
		Row:         row.Line,
		Values:      row.Values(),
		Reason:      reason,
		Suggestions: suggestions,
	})
}

func (r *importRun) addError(e dto.ImportRowError) {
	if len(r.report.Errors) >= r.opts.MaxErrors {
		r.report.ErrorsTruncated = true
		return
	}
	r.report.Errors = append(r.report.Errors, e)
}

func firstLine(lines []int) int {
	if len(lines) == 0 {
		return 0
	}
	return lines[0]
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// ═══════════════════════════════════════════════════════════
// timestamps
// ═══════════════════════════════════════════════════════════

// timestampLayouts are tried in order; first match wins.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

var dateLayouts = []string{"2006-01-02", "02.01.2006"}

const midnightToken = "24:00"

// parseTimestamp interprets naive values in loc. A "24:00" clock means
// midnight of the following day. RFC3339 with an explicit offset is the
// last resort.
func parseTimestamp(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	if t, ok := parseMidnight(v, loc); ok {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseMidnight(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSuffix(v, ":00:00")
	v = strings.TrimSuffix(v, ":00")
	var datePart string
	switch {
	case strings.HasSuffix(v, " 24"):
		datePart = strings.TrimSuffix(v, " 24")
	case strings.HasSuffix(v, "T24"):
		datePart = strings.TrimSuffix(v, "T24")
	default:
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, datePart, loc); err == nil {
			return d.AddDate(0, 0, 1), true
		}
	}
	return time.Time{}, false
}

// parseEnd also accepts a bare clock ("18:00", "24:00") on the start's date.
func parseEnd(v string, start time.Time, loc *time.Location) (time.Time, bool) {
	if t, ok := parseTimestamp(v, loc); ok {
		return t, true
	}
	v = strings.TrimSpace(v)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	if v == midnightToken {
		return day.AddDate(0, 0, 1), true
	}
	if c, err := time.Parse("15:04", v); err == nil {
		return day.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute), true
	}
	return time.Time{}, false
}

// parseInterval applies the overnight rule: an end at or before start moves
// one day forward. A non-empty reason means the row is skipped.
func parseInterval(rawStart, rawEnd string, loc *time.Location) (time.Time, time.Time, string) {
	start, ok := parseTimestamp(rawStart, loc)
	if !ok {
		return time.Time{}, time.Time{}, reasonBadStart
	}
	end, ok := parseEnd(rawEnd, start, loc)
	if !ok {
		return time.Time{}, time.Time{}, reasonBadEnd
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, reasonBadInterval
	}
	return start, end, ""
}
