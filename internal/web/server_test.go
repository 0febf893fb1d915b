package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/milesdash/internal/config"
	"github.com/JonMunkholm/milesdash/internal/core"
	"github.com/JonMunkholm/milesdash/internal/metrics"
)

const goodCSV = "date,person,miles\n2024-01-03,Bob,5\n2024-01-01,Alice,3.5\n2024-01-02,Bob,2\n"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second, ShutdownTimeout: time.Second},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second},
		Security: config.SecurityConfig{EnableCSP: true},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Cache:    config.CacheConfig{PersonViewSize: 8, PersonViewTTL: time.Minute},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	m := metrics.NewManager()
	svc := core.NewService(
		core.WithMaxBytes(cfg.Upload.MaxFileSize),
		core.WithObserver(m),
	)
	s := NewServer(svc, cfg, m)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func multipartBody(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, path, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fileName, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return do(s, req)
}

type stateBody struct {
	Data     []core.Record `json:"data"`
	Persons  []string      `json:"persons"`
	Selected string        `json:"selectedPerson"`
	FileName string        `json:"fileName"`
	Version  uint64        `json:"version"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, rec.Body.String())
	}
	return v
}

func TestAPIUpload_Success(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := upload(t, s, "/api/upload", "miles.csv", goodCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}

	st := decode[stateBody](t, rec)
	if len(st.Data) != 3 {
		t.Errorf("len(data) = %d, want 3", len(st.Data))
	}
	if got := strings.Join(st.Persons, ","); got != "Alice,Bob" {
		t.Errorf("persons = %q, want %q", got, "Alice,Bob")
	}
	if st.Selected != "Alice" {
		t.Errorf("selectedPerson = %q, want %q", st.Selected, "Alice")
	}
	if st.FileName != "miles.csv" {
		t.Errorf("fileName = %q, want %q", st.FileName, "miles.csv")
	}
}

func TestAPIUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		status   int
		code     string
		message  string
		row      int
	}{
		{"not csv", "miles.txt", goodCSV, http.StatusUnprocessableEntity, "FILE001", "Please upload a CSV file (.csv extension).", 0},
		{"empty", "miles.csv", "\n\n", http.StatusUnprocessableEntity, "HDR001", "CSV file is empty.", 0},
		{"missing column", "miles.csv", "day,person,miles\n", http.StatusUnprocessableEntity, "HDR002", "Missing required column: date", 0},
		{"bad miles", "miles.csv", "date,person,miles\n2024-01-01,Alice,-3\n", http.StatusUnprocessableEntity, "ROW004", "Row 1: miles must be a positive number", 1},
		{"bad date", "miles.csv", "date,person,miles\n2024-01-01,Alice,3\nsoon,Bob,2\n", http.StatusUnprocessableEntity, "ROW002", "Row 2: invalid date format", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())

			rec := upload(t, s, "/api/upload", tt.fileName, tt.content)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
			if resp.Message != tt.message {
				t.Errorf("message = %q, want %q", resp.Message, tt.message)
			}
			if resp.Row != tt.row {
				t.Errorf("row = %d, want %d", resp.Row, tt.row)
			}
		})
	}
}

func TestAPIUpload_TooLarge(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"just over the limit", 208},
		{"past the form allowance", 64 + multipartOverhead + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Upload.MaxFileSize = 64
			s := newTestServer(t, cfg)

			content := "date,person,miles\n" + strings.Repeat("2024-01-01,Alice,3\n", tt.size/19+1)
			rec := upload(t, s, "/api/upload", "miles.csv", content)
			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body)
			}
			if resp := decode[ErrorResponse](t, rec); resp.Code != "FILE003" {
				t.Errorf("code = %q, want %q", resp.Code, "FILE003")
			}
		})
	}
}

func TestAPIUpload_NoFile(t *testing.T) {
	s := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "FILE002" {
		t.Errorf("code = %q, want %q", resp.Code, "FILE002")
	}
}

func TestAPIUpload_FailureKeepsDataset(t *testing.T) {
	s := newTestServer(t, testConfig())

	if rec := upload(t, s, "/api/upload", "miles.csv", goodCSV); rec.Code != http.StatusOK {
		t.Fatalf("first upload status = %d", rec.Code)
	}
	if rec := upload(t, s, "/api/upload", "miles.csv", "date,person,miles\n2024-01-01,,3\n"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second upload status = %d", rec.Code)
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	st := decode[stateBody](t, rec)
	if len(st.Data) != 3 {
		t.Errorf("len(data) = %d, want 3 after failed upload", len(st.Data))
	}
}

func TestAPIViews(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("overview before upload status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "UPL004" {
		t.Errorf("code = %q, want %q", resp.Code, "UPL004")
	}

	upload(t, s, "/api/upload", "miles.csv", goodCSV)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("overview status = %d", rec.Code)
	}
	ov := decode[core.OverviewView](t, rec)
	if ov.Summary.Total != 10.5 || ov.Summary.Count != 3 {
		t.Errorf("summary = %+v, want total 10.5 count 3", ov.Summary)
	}
	if len(ov.Totals) != 2 || ov.Totals[0].Person != "Bob" || ov.Totals[0].TotalMiles != 7 {
		t.Errorf("totals = %+v, want Bob first with 7", ov.Totals)
	}
	if len(ov.Series) != 3 || ov.Series[0].Date != "2024-01-01" {
		t.Errorf("series not date ordered: %+v", ov.Series)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/person/Bob", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("person status = %d", rec.Code)
	}
	pv := decode[core.PersonView](t, rec)
	if pv.Person != "Bob" || pv.Summary.Count != 2 || pv.Summary.Total != 7 {
		t.Errorf("person view = %+v", pv)
	}
	if s.views.len() != 1 {
		t.Errorf("cached views = %d, want 1", s.views.len())
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/person", nil))
	if pv := decode[core.PersonView](t, rec); pv.Person != "Alice" {
		t.Errorf("selected person view = %q, want %q", pv.Person, "Alice")
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/person/Carol", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown person status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/persons", nil))
	persons := decode[personsResponse](t, rec)
	if strings.Join(persons.Persons, ",") != "Alice,Bob" || persons.Selected != "Alice" {
		t.Errorf("persons = %+v", persons)
	}
}

func TestAPISelectAndClear(t *testing.T) {
	s := newTestServer(t, testConfig())
	upload(t, s, "/api/upload", "miles.csv", goodCSV)

	req := httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(`{"person":"Bob"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d (body %s)", rec.Code, rec.Body)
	}
	if st := decode[stateBody](t, rec); st.Selected != "Bob" {
		t.Errorf("selectedPerson = %q, want %q", st.Selected, "Bob")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(`{"person":"Zed"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(s, req); rec.Code != http.StatusNotFound {
		t.Errorf("unknown select status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(`{"person":`))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed select status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(s, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	st := decode[stateBody](t, rec)
	if st.Data != nil || len(st.Persons) != 0 || st.Selected != "" {
		t.Errorf("state after clear = %+v, want empty", st)
	}
	if s.views.len() != 0 {
		t.Errorf("cached views after clear = %d, want 0", s.views.len())
	}
}

func TestDashboardPages(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="file"`) {
		t.Error("empty dashboard should show the upload form")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}

	rec = upload(t, s, "/upload", "miles.csv", goodCSV)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("form upload status = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	body := do(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	for _, want := range []string{"miles.csv", "Bob", "Total miles per person", "Replace CSV"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/select", strings.NewReader("person=Bob"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = do(s, req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/?tab=person" {
		t.Errorf("select redirect = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	body = do(s, httptest.NewRequest(http.MethodGet, "/?tab=person", nil)).Body.String()
	if !strings.Contains(body, `<option value="Bob" selected>`) {
		t.Error("person tab should mark Bob selected")
	}

	// A rejected upload shows its message and leaves the data visible.
	upload(t, s, "/upload", "miles.csv", "date,person,miles,notes\n")
	body = do(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if !strings.Contains(body, "Expected exactly 3 columns (date, person, miles), but found 4 columns.") {
		t.Error("dashboard should show the header error")
	}
	if !strings.Contains(body, "HDR003") {
		t.Error("dashboard should show the error code")
	}
	if !strings.Contains(body, "Replace CSV") {
		t.Error("previous dataset should stay visible")
	}

	req = httptest.NewRequest(http.MethodPost, "/clear", nil)
	req.Header.Set("HX-Request", "true")
	rec = do(s, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="dashboard"`) {
		t.Errorf("htmx clear = %d, want dashboard fragment", rec.Code)
	}
	if strings.Contains(strings.ToLower(rec.Body.String()), "<!doctype html>") {
		t.Error("htmx response should be a fragment")
	}
}

func TestDashboardEscapesNames(t *testing.T) {
	s := newTestServer(t, testConfig())
	upload(t, s, "/upload", "miles.csv", "date,person,miles\n2024-01-01,<script>x</script>,3\n")

	body := do(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if strings.Contains(body, "<script>x</script>") {
		t.Error("person names must be HTML escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("escaped person name missing")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/state", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "RATE001" {
		t.Errorf("code = %q, want %q", resp.Code, "RATE001")
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want %q", rec.Header().Get("Retry-After"), "60")
	}

	// Health checks are not rate limited.
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Budgets are per client IP.
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	other := httptest.NewRecorder()
	s.Router().ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", other.Code, http.StatusOK)
	}
}

func TestRateLimit_UploadRoutesShareBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	s := newTestServer(t, cfg)

	if rec := upload(t, s, "/api/upload", "miles.csv", goodCSV); rec.Code != http.StatusOK {
		t.Fatalf("first upload status = %d", rec.Code)
	}
	rec := upload(t, s, "/upload", "miles.csv", goodCSV)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("form upload after API upload = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if !strings.Contains(rec.Body.String(), "RATE001") {
		t.Errorf("rate limit page should carry RATE001:\n%s", rec.Body)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	s := newTestServer(t, testConfig())

	for i := 0; i < 5; i++ {
		if rec := upload(t, s, "/api/upload", "miles.csv", goodCSV); rec.Code != http.StatusOK {
			t.Fatalf("upload %d status = %d", i, rec.Code)
		}
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start after Shutdown = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}

func TestStartThenShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestAPIKeyRequiredForMutations(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	if rec := do(s, httptest.NewRequest(http.MethodPost, "/api/clear", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("clear without key = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/clear", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Errorf("clear with key = %d, want %d", rec.Code, http.StatusOK)
	}

	if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/state", nil)); rec.Code != http.StatusOK {
		t.Errorf("reads stay open: /api/state = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())
	upload(t, s, "/api/upload", "miles.csv", goodCSV)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h := decode[healthResponse](t, rec)
	if h.Status != "ok" || !h.HasData || h.Uploads.MaxConcurrent != core.DefaultMaxConcurrentUploads {
		t.Errorf("health = %+v", h)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `milesdash_uploads_total{outcome="success"} 1`) {
		t.Error("metrics should count the successful upload")
	}
}

func tooLargeReadError(t *testing.T) error {
	t.Helper()
	_, verr := core.ReadText(context.Background(), strings.NewReader(goodCSV), 8)
	if verr == nil {
		t.Fatal("expected FILE003 from ReadText")
	}
	return verr
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Kind: core.KindRow, Code: "ROW001"}, http.StatusUnprocessableEntity},
		{tooLargeReadError(t), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("parse upload form: %w", core.ErrFileTooLarge), http.StatusRequestEntityTooLarge},
		{core.ErrStaleUpload, http.StatusConflict},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{core.ErrUnknownPerson, http.StatusNotFound},
		{core.ErrNoData, http.StatusNotFound},
		{errNoFile, http.StatusBadRequest},
		{errRateLimited, http.StatusTooManyRequests},
		{http.ErrHandlerTimeout, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
