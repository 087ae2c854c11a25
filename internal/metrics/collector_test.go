package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"discordqa/internal/domain"
)

func TestRegistry_CounterIdentity(t *testing.T) {
	r := NewRegistry("test")
	a := r.Counter("test_total", "help", Labels("k", "v"))
	b := r.Counter("test_total", "help", Labels("k", "v"))
	if a != b {
		t.Fatal("same name and labels must return the same counter")
	}
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected 3, got %d", a.Value())
	}
}

func TestLabels_SortedAndEscaped(t *testing.T) {
	got := Labels("z", "1", "a", `say "hi"`)
	if got != `a="say \"hi\"",z="1"` {
		t.Errorf("unexpected labels %s", got)
	}
}

func TestRecorder_Render(t *testing.T) {
	rec := NewRecorder(NewRegistry(namespace))
	rec.ObserveAsk(domain.OutcomeAnswered, domain.ApproachSQL, 1500*time.Millisecond)
	rec.ObserveAsk(domain.OutcomeAnswered, domain.ApproachSQL, 300*time.Millisecond)
	rec.ObserveAsk(domain.OutcomeNoDecision, "", time.Second)
	rec.ObserveScrape(40, 40, 1)
	rec.SetArchiveSize(domain.ArchiveStats{Messages: 40, Embeddings: 39})

	srv := httptest.NewRecorder()
	rec.Registry().Handler()(srv, httptest.NewRequest("GET", "/metrics", nil))
	body := srv.Body.String()

	if ct := srv.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
	for _, want := range []string{
		"# TYPE discordqa_ask_total counter",
		`discordqa_ask_total{approach="sql",outcome="answered"} 2`,
		`discordqa_ask_total{approach="none",outcome="no_decision"} 1`,
		"discordqa_scrape_messages_total 40",
		"discordqa_scrape_skipped_channels_total 1",
		"discordqa_archive_embeddings 39",
		`discordqa_ask_duration_seconds_bucket{le="0.5"} 1`,
		`discordqa_ask_duration_seconds_bucket{le="2"} 3`,
		`discordqa_ask_duration_seconds_bucket{le="+Inf"} 3`,
		"discordqa_ask_duration_seconds_count 3",
		"discordqa_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q\n%s", want, body)
		}
	}
	if strings.Count(body, "# TYPE discordqa_ask_total") != 1 {
		t.Error("TYPE line must be written once per metric name")
	}
}

type statsFunc func(context.Context) (domain.ArchiveStats, error)

func (f statsFunc) Stats(ctx context.Context) (domain.ArchiveStats, error) { return f(ctx) }

func TestRecorder_HandlerRefreshesArchiveGauges(t *testing.T) {
	rec := NewRecorder(NewRegistry(namespace))
	n := 0
	src := statsFunc(func(context.Context) (domain.ArchiveStats, error) {
		n++
		if n > 1 {
			return domain.ArchiveStats{}, errors.New("database is locked")
		}
		return domain.ArchiveStats{Messages: 12, Embeddings: 10}, nil
	})
	h := rec.Handler(src)

	for i := 0; i < 2; i++ {
		rw := httptest.NewRecorder()
		h(rw, httptest.NewRequest("GET", "/metrics", nil))
		body := rw.Body.String()
		if !strings.Contains(body, "discordqa_archive_messages 12") || !strings.Contains(body, "discordqa_archive_embeddings 10") {
			t.Errorf("scrape %d: archive gauges missing\n%s", i, body)
		}
	}
}
