package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"discordqa/internal/domain"
	"discordqa/internal/ingest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAsker struct {
	res       *domain.AskResult
	err       error
	questions []string
}

func (f *fakeAsker) Answer(_ context.Context, q string) (*domain.AskResult, error) {
	f.questions = append(f.questions, q)
	return f.res, f.err
}

type fakeScraper struct {
	guildID string
	limit   int
	err     error
}

func (f *fakeScraper) ScrapeGuild(_ context.Context, guildID string, limit int) (*ingest.ScrapeReport, error) {
	f.guildID, f.limit = guildID, limit
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.ScrapeReport{GuildID: guildID, Limit: limit, Channels: 2, Messages: 7, Embedded: 7}, nil
}

func (f *fakeScraper) DefaultLimit() int { return 100 }

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	var out map[string]any
	if strings.HasPrefix(rw.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rw.Body.String())
		}
	}
	return rw, out
}

func TestAsk_Success(t *testing.T) {
	asker := &fakeAsker{res: &domain.AskResult{
		Answer: "Alice posted 12 messages.",
		ChatHistory: []domain.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "how many?"},
			{Role: "assistant", Content: "Alice posted 12 messages."},
		},
	}}
	api := NewAPI(APIConfig{Asker: asker, Logger: testLogger()})

	rw, out := do(t, api.Handler(), "POST", "/ask", `{"query":"how many?"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if out["answer"] != "Alice posted 12 messages." {
		t.Errorf("unexpected answer %v", out["answer"])
	}
	history, ok := out["chat_history"].([]any)
	if !ok || len(history) != 3 {
		t.Errorf("expected 3 transcript entries, got %v", out["chat_history"])
	}
	if len(asker.questions) != 1 || asker.questions[0] != "how many?" {
		t.Errorf("question not forwarded: %v", asker.questions)
	}
	if rw.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestAsk_SentinelHasNoHistory(t *testing.T) {
	asker := &fakeAsker{res: &domain.AskResult{Answer: domain.AnswerNoDecision, Outcome: domain.OutcomeNoDecision}}
	api := NewAPI(APIConfig{Asker: asker, Logger: testLogger()})

	rw, out := do(t, api.Handler(), "POST", "/ask", `{"query":"hello"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if out["answer"] != domain.AnswerNoDecision {
		t.Errorf("unexpected answer %v", out["answer"])
	}
	if _, ok := out["chat_history"]; ok {
		t.Error("sentinel answers must not carry chat_history")
	}
}

func TestAsk_NoQuery(t *testing.T) {
	asker := &fakeAsker{}
	api := NewAPI(APIConfig{Asker: asker, Logger: testLogger()})

	for _, body := range []string{``, `{}`, `{"query":""}`, `{"query":"   "}`} {
		rw, out := do(t, api.Handler(), "POST", "/ask", body)
		if rw.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rw.Code)
		}
		if out["error"] != "No query provided." {
			t.Errorf("body %q: unexpected error %v", body, out["error"])
		}
	}
	if len(asker.questions) != 0 {
		t.Error("engine must not be called without a query")
	}
}

func TestAsk_InvalidJSON(t *testing.T) {
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Logger: testLogger()})
	rw, out := do(t, api.Handler(), "POST", "/ask", `{"query":`)
	if rw.Code != http.StatusBadRequest || out["error"] != "invalid JSON" {
		t.Errorf("unexpected response %d %v", rw.Code, out)
	}
}

func TestAsk_CollaboratorFailure(t *testing.T) {
	asker := &fakeAsker{err: errors.New("embedding endpoint: 401 invalid api key sk-123")}
	api := NewAPI(APIConfig{Asker: asker, Logger: testLogger()})

	rw, out := do(t, api.Handler(), "POST", "/ask", `{"query":"q"}`)
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	msg, _ := out["error"].(string)
	if msg == "" || strings.Contains(msg, "sk-123") {
		t.Errorf("expected a generic error body, got %q", msg)
	}
}

func TestAsk_MethodNotAllowed(t *testing.T) {
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Logger: testLogger()})
	rw, _ := do(t, api.Handler(), "GET", "/ask", "")
	if rw.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rw.Code)
	}
}

func TestScrape_Success(t *testing.T) {
	scraper := &fakeScraper{}
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Scraper: scraper, Logger: testLogger()})

	rw, out := do(t, api.Handler(), "POST", "/discord/829?limit=50", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if out["status"] != "ok" || out["message"] != "Scraped guild_id=829, limit=50" {
		t.Errorf("unexpected body %v", out)
	}
	if out["messages"] != float64(7) || out["channels"] != float64(2) {
		t.Errorf("report counts missing: %v", out)
	}
	if scraper.guildID != "829" || scraper.limit != 50 {
		t.Errorf("unexpected scrape call %s/%d", scraper.guildID, scraper.limit)
	}
}

func TestScrape_DefaultLimit(t *testing.T) {
	scraper := &fakeScraper{}
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Scraper: scraper, Logger: testLogger()})

	_, out := do(t, api.Handler(), "POST", "/discord/g1", "")
	if scraper.limit != 100 || out["message"] != "Scraped guild_id=g1, limit=100" {
		t.Errorf("expected default limit, got %d %v", scraper.limit, out["message"])
	}
}

func TestScrape_BadLimit(t *testing.T) {
	scraper := &fakeScraper{}
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Scraper: scraper, Logger: testLogger()})

	for _, q := range []string{"abc", "0", "-5"} {
		rw, _ := do(t, api.Handler(), "POST", "/discord/g1?limit="+q, "")
		if rw.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, rw.Code)
		}
	}
	if scraper.guildID != "" {
		t.Error("scraper must not run with an invalid limit")
	}
}

func TestScrape_Errors(t *testing.T) {
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Logger: testLogger()})
	if rw, _ := do(t, api.Handler(), "POST", "/discord/g1", ""); rw.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a scraper, got %d", rw.Code)
	}

	api = NewAPI(APIConfig{Asker: &fakeAsker{}, Scraper: &fakeScraper{err: errors.New("401 unauthorized")}, Logger: testLogger()})
	rw, out := do(t, api.Handler(), "POST", "/discord/g1", "")
	if rw.Code != http.StatusBadGateway || out["error"] == nil {
		t.Errorf("expected 502 with error body, got %d %v", rw.Code, out)
	}
}

func TestHealthz(t *testing.T) {
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Health: pingFunc(func(context.Context) error { return nil }), Logger: testLogger()})
	if rw, out := do(t, api.Handler(), "GET", "/healthz", ""); rw.Code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("unexpected health %d %v", rw.Code, out)
	}

	api = NewAPI(APIConfig{Asker: &fakeAsker{}, Health: pingFunc(func(context.Context) error { return errors.New("db gone") }), Logger: testLogger()})
	if rw, _ := do(t, api.Handler(), "GET", "/healthz", ""); rw.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rw.Code)
	}
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Write([]byte("discordqa_up 1\n"))
	})
	api := NewAPI(APIConfig{Asker: &fakeAsker{}, Metrics: metrics, MetricsPath: "/prom", Logger: testLogger()})

	rw, _ := do(t, api.Handler(), "GET", "/prom", "")
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "discordqa_up 1") {
		t.Errorf("metrics not mounted: %d %s", rw.Code, rw.Body.String())
	}

	api = NewAPI(APIConfig{Asker: &fakeAsker{}, Logger: testLogger()})
	if rw, _ := do(t, api.Handler(), "GET", "/metrics", ""); rw.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", rw.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	api := NewAPI(APIConfig{Asker: &fakeAsker{res: &domain.AskResult{Answer: "a"}}, Logger: testLogger()})
	req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("X-Request-ID", "abc-123")
	rw := httptest.NewRecorder()
	api.Handler().ServeHTTP(rw, req)
	if got := rw.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected caller request id, got %q", got)
	}
}
