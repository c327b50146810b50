package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/database"
	"github.com/TobiSchelling/reviewgen/internal/extract"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/imagegen"
	"github.com/TobiSchelling/reviewgen/internal/llm"
	"github.com/TobiSchelling/reviewgen/internal/product"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, url string) (*product.Record, error) {
	if strings.Contains(url, "missing") {
		return nil, &extract.ExtractionError{URL: url, Reason: extract.BadStatus, StatusCode: 404, Err: errors.New("not found")}
	}
	return &product.Record{SourceURL: url, Title: "Widget X", Technical: product.SpecTable{{Label: "Weight", Value: "250 g"}}}, nil
}

type stubProvider struct {
	err error
}

func (p stubProvider) Complete(context.Context, llm.Completion) (string, error) {
	return "# Widget X\n\nA good widget.", p.err
}
func (stubProvider) IsConfigured() bool { return true }
func (stubProvider) Name() string       { return "stub" }

type stubAuditor struct {
	err error
}

func (a stubAuditor) Audit(context.Context, string) ([]spell.Issue, error) {
	if a.err != nil {
		return nil, a.err
	}
	return []spell.Issue{}, nil
}

type stubSubmitter struct{}

func (stubSubmitter) Submit(_ context.Context, prompt, aspect string) (*imagegen.Job, error) {
	if strings.Contains(prompt, "reject") {
		return nil, &imagegen.ProviderError{StatusCode: 500, Err: errors.New("boom")}
	}
	return &imagegen.Job{ID: "job-1", Prompt: prompt, AspectRatio: aspect, Status: "processing"}, nil
}

func newTestServer(t *testing.T, db *database.DB, providerErr, auditErr error) *Server {
	t.Helper()
	auditor := stubAuditor{err: auditErr}
	deps := dashboard.Deps{
		Extractor: stubExtractor{},
		Generator: generate.NewOrchestrator(stubProvider{err: providerErr}, auditor, generate.DefaultSettings()),
		Auditor:   auditor,
		Images:    stubSubmitter{},
	}
	if db != nil {
		deps.History = db
		deps.ImageLog = dashboard.NewDBLog(db)
	}
	srv, err := New(dashboard.New(deps), db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := do(t, srv, "GET", "/", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Mercado Livre") {
		t.Error("expected preset platforms in response body")
	}
	if !strings.Contains(body, `value="pt-BR"`) {
		t.Error("expected default locale in form")
	}
}

func TestExtractRoute(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := do(t, srv, "POST", "/api/extract", `{"url":"https://shop.example/w"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"technical":{"Weight":"250 g"}`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	rec = do(t, srv, "POST", "/api/extract", `{"url":"https://shop.example/missing"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Kind != "extraction" || body.Reason != string(extract.BadStatus) {
		t.Errorf("unexpected error body: %+v", body)
	}

	rec = do(t, srv, "POST", "/api/extract", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", rec.Code)
	}
}

func TestGenerateRoute(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, nil, nil)

	rec := do(t, srv, "POST", "/api/generate", `{"productUrl":"https://shop.example/w","locale":"pt-BR","referenceData":{"title":"Widget X"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"spellIssues":[]`) {
		t.Errorf("expected empty issue list, got %s", rec.Body.String())
	}

	articles, _ := db.GetArticles(0)
	if len(articles) != 1 {
		t.Fatalf("expected 1 article in history, got %d", len(articles))
	}

	rec = do(t, srv, "GET", "/history/"+articles[0].ID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<h1>Widget X</h1>") {
		t.Errorf("expected rendered article page, got %d", rec.Code)
	}
}

func TestGenerateRouteValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := do(t, srv, "POST", "/api/generate", `{"productUrl":"not a url","competitorUrls":["ftp://x"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Fields) != 2 || body.Fields[0].Field != "productUrl" || body.Fields[1].Field != "competitorUrls" {
		t.Errorf("unexpected fields: %+v", body.Fields)
	}
}

func TestGenerateRouteProviderFailure(t *testing.T) {
	srv := newTestServer(t, nil, errors.New("upstream down"), nil)

	rec := do(t, srv, "POST", "/api/generate", `{"productUrl":"https://shop.example/w"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestSpellcheckRoute(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := do(t, srv, "POST", "/api/spellcheck", `{"text":"Hello"}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"issues":[]}` {
		t.Errorf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	down := newTestServer(t, nil, nil, &spell.AuditError{Err: errors.New("503")})
	rec = do(t, down, "POST", "/api/spellcheck", `{"text":"Hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestImageRoutes(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, nil, nil)

	rec := do(t, srv, "GET", "/api/images", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty log, got %s", rec.Body.String())
	}

	rec = do(t, srv, "POST", "/api/images", `{"prompt":"short","aspectRatio":"16:9"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for short prompt, got %d", rec.Code)
	}

	rec = do(t, srv, "POST", "/api/images", `{"prompt":"widget on an oak desk","aspectRatio":"16:9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, srv, "POST", "/api/images", `{"prompt":"please reject this prompt","aspectRatio":"1:1"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}

	rec = do(t, srv, "GET", "/api/images", "")
	var entries []dashboard.ImageEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding image log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != dashboard.StatusFailed || entries[1].Status != "processing" {
		t.Errorf("unexpected statuses: %q, %q", entries[0].Status, entries[1].Status)
	}
}

func TestPreviewRoute(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := do(t, srv, "POST", "/api/preview", `{"markdown":"## Verdict\n\n**Buy it.**"}`)

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(body["html"], "<h2>Verdict</h2>") || !strings.Contains(body["html"], "<strong>Buy it.</strong>") {
		t.Errorf("unexpected preview: %q", body["html"])
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := do(t, srv, "GET", "/history", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "History is disabled") {
		t.Errorf("expected disabled notice, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := do(t, srv, "GET", "/health", "")
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}

	do(t, srv, "POST", "/api/extract", `{"url":"https://shop.example/missing"}`)
	rec = do(t, srv, "GET", "/metrics", "")
	body := rec.Body.String()
	if !strings.Contains(body, `reviewgen_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Error("expected request counter for /health")
	}
	if !strings.Contains(body, `reviewgen_operation_outcomes_total{kind="extraction",operation="extract"} 1`) {
		t.Error("expected extraction outcome counter")
	}
}
