package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/internal/dto"
	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
	pkgerrors "github.com/bod9dzys/BasicWFMbb/pkg/errors"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock ExchangeService ──

type mockExchangeService struct {
	proposeResult *service.ExchangeResult
	proposeErr    error
	lastInput     service.ProposeInput
	listResult    []model.ExchangeRecord
	listTotal     int64
	listErr       error
	lastShiftID   int64
	lastOffset    int
}

func (m *mockExchangeService) Propose(_ context.Context, in service.ProposeInput) (*service.ExchangeResult, error) {
	m.lastInput = in
	return m.proposeResult, m.proposeErr
}
func (m *mockExchangeService) List(_ context.Context, shiftID int64, offset, _ int) ([]model.ExchangeRecord, int64, error) {
	m.lastShiftID = shiftID
	m.lastOffset = offset
	return m.listResult, m.listTotal, m.listErr
}

// ── Mock ImportService ──

type mockImportService struct {
	report     *dto.ImportReport
	err        error
	lastFormat sheet.Format
	lastSrc    sheet.Options
	lastOpts   service.ImportOptions
	lastBody   string
}

func (m *mockImportService) Import(_ context.Context, format sheet.Format, r io.Reader, src sheet.Options, opts service.ImportOptions) (*dto.ImportReport, error) {
	b, _ := io.ReadAll(r)
	m.lastBody = string(b)
	m.lastFormat = format
	m.lastSrc = src
	m.lastOpts = opts
	return m.report, m.err
}
func (m *mockImportService) Run(_ context.Context, _ sheet.RowStream, _ service.ImportOptions) (*dto.ImportReport, error) {
	return m.report, m.err
}
func (m *mockImportService) DefaultOptions() service.ImportOptions {
	return service.ImportOptions{BatchSize: 1000, CreateMissing: true, Location: time.UTC}
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
	from, to time.Time
}

func (m *mockExportService) ExportShifts(_ context.Context, from, to time.Time) (*bytes.Buffer, string, error) {
	m.from, m.to = from, to
	return m.buf, m.filename, m.err
}

// ── Mock CalendarService ──

type mockCalendarService struct {
	body string
	err  error
}

func (m *mockCalendarService) IdentityCalendar(_ context.Context, _ int64, _, _ time.Time) (string, error) {
	return m.body, m.err
}

// ── Mock CapabilityChecker ──

type mockChecker struct {
	allowed bool
	err     error
}

func (m *mockChecker) HasCapability(_ context.Context, _ int64, _ string) (bool, error) {
	return m.allowed, m.err
}

// ═══════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════

func setupGin() (*gin.Engine, *gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	return r, c, w
}

// authAs stands in for the JWT middleware.
func authAs(identityID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(IdentityIDKey, identityID)
		c.Next()
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// ═══════════════════════════════════════════════════════════
// ExchangeHandler Tests
// ═══════════════════════════════════════════════════════════

func newExchangeRouter(h *ExchangeHandler, identityID int64) *gin.Engine {
	r := gin.New()
	if identityID > 0 {
		r.Use(authAs(identityID))
	}
	r.POST("/exchanges", h.Propose)
	r.GET("/exchanges", h.List)
	return r
}

func TestExchangeHandler_Propose_Approved(t *testing.T) {
	requester := int64(7)
	mock := &mockExchangeService{proposeResult: &service.ExchangeResult{
		Approved: true,
		Record: &model.ExchangeRecord{
			ID: 1, FromShiftID: 10, ToShiftID: 20, RequestedByID: &requester,
			Outcome:   model.OutcomeApproved,
			CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			FromShift: &model.Shift{ID: 10, IdentityID: 8, Direction: model.DirectionCalls, Status: model.StatusWork},
		},
	}}
	h := NewExchangeHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/exchanges", jsonBody(dto.ProposeExchangeRequest{FromShiftID: 10, ToShiftID: 20, Comment: "swap please"}))
	req.Header.Set("Content-Type", "application/json")
	newExchangeRouter(h, requester).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastInput.RequesterID != requester {
		t.Errorf("requester must come from the token, got %d", mock.lastInput.RequesterID)
	}
	if mock.lastInput.FromShiftID != 10 || mock.lastInput.ToShiftID != 20 || mock.lastInput.Comment != "swap please" {
		t.Errorf("unexpected input: %+v", mock.lastInput)
	}
	if !strings.Contains(w.Body.String(), `"outcome":"approved"`) {
		t.Errorf("expected approved outcome in body: %s", w.Body.String())
	}
}

func TestExchangeHandler_Propose_Rejected(t *testing.T) {
	mock := &mockExchangeService{proposeResult: &service.ExchangeResult{Reason: service.ReasonOwnership}}
	h := NewExchangeHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/exchanges", jsonBody(dto.ProposeExchangeRequest{FromShiftID: 1, ToShiftID: 2}))
	req.Header.Set("Content-Type", "application/json")
	newExchangeRouter(h, 7).ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 18003 {
		t.Errorf("expected code 18003, got %d", resp.Code)
	}
	data, _ := resp.Data.(map[string]interface{})
	if data["reason"] != string(service.ReasonOwnership) {
		t.Errorf("expected reason %q, got %v", service.ReasonOwnership, data["reason"])
	}
}

func TestExchangeHandler_Propose_Unauthenticated(t *testing.T) {
	h := NewExchangeHandler(&mockExchangeService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/exchanges", jsonBody(dto.ProposeExchangeRequest{FromShiftID: 1, ToShiftID: 2}))
	req.Header.Set("Content-Type", "application/json")
	newExchangeRouter(h, 0).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestExchangeHandler_Propose_BadJSON(t *testing.T) {
	h := NewExchangeHandler(&mockExchangeService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/exchanges", strings.NewReader(`{"from_shift_id":0}`))
	req.Header.Set("Content-Type", "application/json")
	newExchangeRouter(h, 7).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestExchangeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{service.ErrShiftNotFound, http.StatusNotFound, 18001},
		{service.ErrRequesterNotFound, http.StatusForbidden, 18002},
		{fmt.Errorf("%w: %w", service.ErrExchangeExecution, pkgerrors.ErrLockTimeout), http.StatusServiceUnavailable, 18005},
		{fmt.Errorf("%w: disk full", service.ErrExchangeExecution), http.StatusInternalServerError, 18004},
		{errors.New("boom"), http.StatusInternalServerError, 50000},
	}
	for _, tc := range cases {
		h := NewExchangeHandler(&mockExchangeService{proposeErr: tc.err})

		_, _, w := setupGin()
		req := httptest.NewRequest("POST", "/exchanges", jsonBody(dto.ProposeExchangeRequest{FromShiftID: 1, ToShiftID: 2}))
		req.Header.Set("Content-Type", "application/json")
		newExchangeRouter(h, 7).ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tc.code {
			t.Errorf("%v: expected code %d, got %d", tc.err, tc.code, resp.Code)
		}
	}
}

func TestExchangeHandler_List(t *testing.T) {
	mock := &mockExchangeService{
		listResult: []model.ExchangeRecord{{ID: 3, FromShiftID: 5, ToShiftID: 6, Outcome: model.OutcomeApproved}},
		listTotal:  41,
	}
	h := NewExchangeHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("GET", "/exchanges?shift_id=5&page=3&page_size=20", nil)
	newExchangeRouter(h, 7).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastShiftID != 5 || mock.lastOffset != 40 {
		t.Errorf("expected shift 5 offset 40, got %d/%d", mock.lastShiftID, mock.lastOffset)
	}
	if !strings.Contains(w.Body.String(), `"total_pages":3`) {
		t.Errorf("expected 3 pages: %s", w.Body.String())
	}
}

// ═══════════════════════════════════════════════════════════
// ImportHandler Tests
// ═══════════════════════════════════════════════════════════

func postImport(t *testing.T, h *ImportHandler, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content, fields)
	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/imports", body)
	req.Header.Set("Content-Type", ct)

	r := gin.New()
	r.POST("/imports", h.Import)
	r.ServeHTTP(w, req)
	return w
}

func TestImportHandler_Success(t *testing.T) {
	mock := &mockImportService{report: &dto.ImportReport{RunID: "r1", Processed: 2, Created: 2}}
	h := NewImportHandler(mock)

	w := postImport(t, h, "march.csv", "agent;start;end\n", map[string]string{
		"delimiter":    ",",
		"batch_size":   "50",
		"tz":           "Europe/Kyiv",
		"dry_run":      "true",
		"resolve_only": "true",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastFormat != sheet.FormatCSV {
		t.Errorf("expected format from extension, got %v", mock.lastFormat)
	}
	if mock.lastSrc.Delimiter != ',' {
		t.Errorf("expected comma delimiter, got %q", mock.lastSrc.Delimiter)
	}
	if mock.lastOpts.BatchSize != 50 || !mock.lastOpts.DryRun || mock.lastOpts.CreateMissing {
		t.Errorf("unexpected options: %+v", mock.lastOpts)
	}
	if mock.lastOpts.Location == nil || mock.lastOpts.Location.String() != "Europe/Kyiv" {
		t.Errorf("expected Europe/Kyiv location, got %v", mock.lastOpts.Location)
	}
	if mock.lastBody != "agent;start;end\n" {
		t.Errorf("file body not forwarded: %q", mock.lastBody)
	}
}

func TestImportHandler_Defaults(t *testing.T) {
	mock := &mockImportService{report: &dto.ImportReport{}}
	h := NewImportHandler(mock)

	w := postImport(t, h, "upload.bin", "x", map[string]string{"format": "xlsx"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastFormat != sheet.FormatXLSX {
		t.Errorf("explicit format must win over the file name, got %v", mock.lastFormat)
	}
	if mock.lastOpts.BatchSize != 1000 || !mock.lastOpts.CreateMissing {
		t.Errorf("expected service defaults, got %+v", mock.lastOpts)
	}
}

func TestImportHandler_MissingFile(t *testing.T) {
	h := NewImportHandler(&mockImportService{})
	w := postImport(t, h, "", "", map[string]string{"format": "csv"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestImportHandler_UnknownFormat(t *testing.T) {
	h := NewImportHandler(&mockImportService{})
	w := postImport(t, h, "schedule.pdf", "x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 17003 {
		t.Errorf("expected code 17003, got %d", resp.Code)
	}
}

func TestImportHandler_BadTimezone(t *testing.T) {
	h := NewImportHandler(&mockImportService{})
	w := postImport(t, h, "s.csv", "x", map[string]string{"tz": "Mars/Olympus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestImportHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		report *dto.ImportReport
		status int
		code   int
	}{
		{fmt.Errorf("%w: missing start", service.ErrStructural), nil, http.StatusUnprocessableEntity, 17001},
		{service.ErrImportRunning, nil, http.StatusConflict, 17002},
		{errors.New("unexpected EOF"), &dto.ImportReport{Processed: 3}, http.StatusUnprocessableEntity, 17005},
		{errors.New("boom"), nil, http.StatusInternalServerError, 50000},
	}
	for _, tc := range cases {
		h := NewImportHandler(&mockImportService{err: tc.err, report: tc.report})
		w := postImport(t, h, "s.csv", "x", nil)
		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tc.code {
			t.Errorf("%v: expected code %d, got %d", tc.err, tc.code, resp.Code)
		}
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_Success(t *testing.T) {
	mock := &mockExportService{
		buf:      bytes.NewBufferString("excel content"),
		filename: "shifts_20250301_20250401.xlsx",
	}
	h := NewExportHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("GET", "/shifts/export?from=2025-03-01&to=2025-04-01T00:00:00Z", nil)

	r := gin.New()
	r.GET("/shifts/export", h.ExportShifts)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "shifts_20250301_20250401.xlsx") {
		t.Errorf("unexpected Content-Disposition: %s", cd)
	}
	if !mock.from.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) || !mock.to.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected range %v - %v", mock.from, mock.to)
	}
}

func TestExportHandler_MissingRange(t *testing.T) {
	h := NewExportHandler(&mockExportService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("GET", "/shifts/export?from=2025-03-01", nil)

	r := gin.New()
	r.GET("/shifts/export", h.ExportShifts)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestExportHandler_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrExportEmpty, http.StatusNotFound},
		{service.ErrExportInvalidRange, http.StatusBadRequest},
	}
	for _, tc := range cases {
		h := NewExportHandler(&mockExportService{err: tc.err})

		_, _, w := setupGin()
		req := httptest.NewRequest("GET", "/shifts/export?from=2025-03-01&to=2025-04-01", nil)

		r := gin.New()
		r.GET("/shifts/export", h.ExportShifts)
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
	}
}

// ═══════════════════════════════════════════════════════════
// CalendarHandler Tests
// ═══════════════════════════════════════════════════════════

func getCalendar(h *CalendarHandler, callerID int64, path string) *httptest.ResponseRecorder {
	_, _, w := setupGin()
	req := httptest.NewRequest("GET", path, nil)

	r := gin.New()
	r.Use(authAs(callerID))
	r.GET("/identities/:id/calendar.ics", h.IdentityCalendar)
	r.ServeHTTP(w, req)
	return w
}

func TestCalendarHandler_Own(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarService{body: "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"}, &mockChecker{})

	w := getCalendar(h, 7, "/identities/7/calendar.ics?from=2025-03-01&to=2025-04-01")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type: %s", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "BEGIN:VCALENDAR") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestCalendarHandler_OtherNeedsCapability(t *testing.T) {
	svc := &mockCalendarService{body: "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"}

	w := getCalendar(NewCalendarHandler(svc, &mockChecker{}), 7, "/identities/8/calendar.ics?from=2025-03-01&to=2025-04-01")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}

	w = getCalendar(NewCalendarHandler(svc, &mockChecker{allowed: true}), 7, "/identities/8/calendar.ics?from=2025-03-01&to=2025-04-01")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with export.run, got %d", w.Code)
	}
}

func TestCalendarHandler_Errors(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarService{err: service.ErrIdentityUnknown}, &mockChecker{})

	if w := getCalendar(h, 7, "/identities/7/calendar.ics?from=2025-03-01&to=2025-04-01"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := getCalendar(h, 7, "/identities/abc/calendar.ics?from=2025-03-01&to=2025-04-01"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
	if w := getCalendar(h, 7, "/identities/7/calendar.ics?from=03/01/2025&to=2025-04-01"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad range, got %d", w.Code)
	}
}
