package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func recorder() (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return w, c
}

func TestOKPage_RoundsPagesUp(t *testing.T) {
	cases := []struct {
		total     int64
		pageSize  int
		wantPages int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tc := range cases {
		w, c := recorder()
		OKPage(c, []int{}, tc.total, 1, tc.pageSize)

		var resp struct {
			Code int      `json:"code"`
			Data PageData `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Code != 0 {
			t.Errorf("expected code 0, got %d", resp.Code)
		}
		if resp.Data.Pagination.TotalPages != tc.wantPages {
			t.Errorf("total=%d size=%d: expected %d pages, got %d",
				tc.total, tc.pageSize, tc.wantPages, resp.Data.Pagination.TotalPages)
		}
	}
}

func TestAttachment_EncodesCyrillicName(t *testing.T) {
	w, c := recorder()
	Attachment(c, "зміни команди.xlsx", "application/octet-stream", []byte("xlsx"))

	want := "attachment; filename*=UTF-8''%D0%B7%D0%BC%D1%96%D0%BD%D0%B8%20%D0%BA%D0%BE%D0%BC%D0%B0%D0%BD%D0%B4%D0%B8.xlsx"
	if got := w.Header().Get("Content-Disposition"); got != want {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if w.Body.String() != "xlsx" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestUnavailable_AsksForRetry(t *testing.T) {
	w, c := recorder()
	Unavailable(c, 18005, "shifts are busy, retry shortly")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestUnprocessable_KeepsPayload(t *testing.T) {
	w, c := recorder()
	Unprocessable(c, 18003, "exchange rejected", map[string]string{"reason": "overlap"})

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusUnprocessableEntity || resp.Code != 18003 {
		t.Errorf("unexpected status %d code %d", w.Code, resp.Code)
	}
	data, _ := resp.Data.(map[string]interface{})
	if data["reason"] != "overlap" {
		t.Errorf("expected reason payload, got %v", resp.Data)
	}
}

func TestInternalError_HidesCause(t *testing.T) {
	w, c := recorder()
	InternalError(c)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeInternal || resp.Details != "" {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}
