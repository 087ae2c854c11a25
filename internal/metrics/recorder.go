package metrics

import (
	"context"
	"net/http"
	"time"

	"discordqa/internal/domain"
)

const namespace = "discordqa"

var askLatencyBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}

// Recorder maps engine and scraper events onto registry series. It satisfies
// agent.Observer and ingest.Observer.
type Recorder struct {
	reg             *Registry
	askLatency      *Histogram
	scrapeMessages  *Counter
	scrapeEmbedded  *Counter
	skippedChannels *Counter
	scrapes         *Counter
}

func NewRecorder(reg *Registry) *Recorder {
	return &Recorder{
		reg: reg,
		askLatency: reg.Histogram(namespace+"_ask_duration_seconds",
			"End-to-end latency of answered questions in seconds", "", askLatencyBuckets),
		scrapeMessages:  reg.Counter(namespace+"_scrape_messages_total", "Messages archived by scrapes", ""),
		scrapeEmbedded:  reg.Counter(namespace+"_scrape_embeddings_total", "Embeddings upserted by scrapes", ""),
		skippedChannels: reg.Counter(namespace+"_scrape_skipped_channels_total", "Channels skipped for lack of permission", ""),
		scrapes:         reg.Counter(namespace+"_scrapes_total", "Completed guild scrapes", ""),
	}
}

// Registry returns the registry backing r, for serving /metrics.
func (r *Recorder) Registry() *Registry { return r.reg }

func (r *Recorder) ObserveAsk(outcome domain.Outcome, approach domain.Approach, elapsed time.Duration) {
	a := string(approach)
	if a == "" {
		a = "none"
	}
	r.reg.Counter(namespace+"_ask_total", "Questions handled by outcome and approach",
		Labels("outcome", string(outcome), "approach", a)).Inc()
	r.askLatency.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveScrape(messages, embedded, skipped int) {
	r.scrapes.Inc()
	r.scrapeMessages.Add(int64(messages))
	r.scrapeEmbedded.Add(int64(embedded))
	r.skippedChannels.Add(int64(skipped))
}

// SetArchiveSize publishes the archive row counts as gauges.
func (r *Recorder) SetArchiveSize(st domain.ArchiveStats) {
	r.reg.Gauge(namespace+"_archive_messages", "Messages in the archive", "").Set(int64(st.Messages))
	r.reg.Gauge(namespace+"_archive_embeddings", "Embeddings in the archive", "").Set(int64(st.Embeddings))
}

// StatsSource reports archive row counts.
type StatsSource interface {
	Stats(ctx context.Context) (domain.ArchiveStats, error)
}

// Handler serves the registry, refreshing the archive gauges from src first.
// A failing src leaves the previous gauge values in place.
func (r *Recorder) Handler(src StatsSource) http.HandlerFunc {
	render := r.reg.Handler()
	return func(w http.ResponseWriter, req *http.Request) {
		if src != nil {
			if st, err := src.Stats(req.Context()); err == nil {
				r.SetArchiveSize(st)
			}
		}
		render(w, req)
	}
}
