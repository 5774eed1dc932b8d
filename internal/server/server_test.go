package server

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
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	"catalogpanel/internal/app"
	"catalogpanel/internal/ratelimit"
	"catalogpanel/internal/stafftoken"
	"catalogpanel/pkg/cache"
	"catalogpanel/pkg/storage"
	"catalogpanel/pkg/store"
	"catalogpanel/pkg/workbook"
)

const staffToken = "staff-token"

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (stafftoken.Staff, error) {
	switch token {
	case staffToken:
		return stafftoken.Staff{ID: "staff-1", Email: "editor@example.com", Role: "editor"}, nil
	case "customer-token":
		return stafftoken.Staff{ID: "user-9", Role: "customer"}, stafftoken.ErrForbiddenRole
	default:
		return stafftoken.Staff{}, errors.New("token is malformed")
	}
}

type testServer struct {
	url    string
	client *redis.Client
}

// newTestServer runs the full router over the local storage driver, so
// previews fetch workbooks back through /files/ like in production.
func newTestServer(t *testing.T, uploadLimit int) *testServer {
	t.Helper()
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	images, err := storage.NewFileStore(dir, "images", ts.URL)
	if err != nil {
		t.Fatalf("images store: %v", err)
	}
	sheets, err := storage.NewFileStore(dir, "sheets", ts.URL)
	if err != nil {
		t.Fatalf("sheets store: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	core, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Images:        images,
		Sheets:        sheets,
		Cache:         cache.NewProductListCache(client, "test", time.Minute),
		PublicBaseURL: ts.URL,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: core, TokenVerifier: fakeVerifier{}, FilesDir: dir}
	if uploadLimit > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(client, "test:ratelimit:upload", uploadLimit, time.Minute)
		if err != nil {
			t.Fatalf("new limiter: %v", err)
		}
		cfg.UploadLimiter = limiter
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	handler = srv.Router()
	return &testServer{url: ts.URL, client: client}
}

func (s *testServer) do(t *testing.T, method, path, token, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.url+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string][]string, files ...formFile) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				t.Fatalf("write field: %v", err)
			}
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return mw.FormDataContentType(), &buf
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, body)
	}
	var payload errorResponse
	decodeJSON(t, resp, &payload)
	if payload.Code != code {
		t.Fatalf("expected code %s, got %+v", code, payload)
	}
	if payload.RequestID == "" || payload.RequestID != resp.Header.Get("X-Request-Id") {
		t.Fatalf("error should carry the request id, got %q", payload.RequestID)
	}
}

func xlsxFixture(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{TokenVerifier: fakeVerifier{}}); err == nil {
		t.Fatalf("expected error without app")
	}
}

func TestHealthIsPublicAndAPIRequiresStaff(t *testing.T) {
	srv := newTestServer(t, 0)

	resp := srv.do(t, http.MethodGet, "/healthz", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	expectError(t, srv.do(t, http.MethodGet, "/api/products", "", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, srv.do(t, http.MethodGet, "/api/sheets", "forged", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, srv.do(t, http.MethodGet, "/api/sheets", "customer-token", "", nil), http.StatusForbidden, "FORBIDDEN")

	resp = srv.do(t, http.MethodGet, "/api/products", staffToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("staff list expected 200, got %d", resp.StatusCode)
	}
	var page app.ProductPage
	decodeJSON(t, resp, &page)
	if page.Total != 0 || page.TotalPages != 1 || page.Items == nil {
		t.Fatalf("unexpected empty page: %+v", page)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: 500", workbook.ErrTransport), http.StatusBadGateway, "SHEET_FETCH_FAILED"},
		{fmt.Errorf("%w: zip", workbook.ErrFormat), http.StatusUnprocessableEntity, "SHEET_INVALID_FORMAT"},
		{app.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{app.ErrSheetNotFound, http.StatusNotFound, "SHEET_NOT_FOUND"},
		{fmt.Errorf("%w: titleEn", app.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{app.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE"},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{errors.New("insert product: connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("errorStatus(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}
