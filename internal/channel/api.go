package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"discordqa/internal/domain"
	"discordqa/internal/ingest"
)

const apiMaxBodySize = 1 << 20 // 1MB

const errNoQuery = "No query provided."

// Asker answers one question.
type Asker interface {
	Answer(ctx context.Context, question string) (*domain.AskResult, error)
}

// GuildScraper runs an ingestion pass over one guild.
type GuildScraper interface {
	ScrapeGuild(ctx context.Context, guildID string, limit int) (*ingest.ScrapeReport, error)
	DefaultLimit() int
}

// Pinger reports whether the archive is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves the question endpoint, the ingestion trigger, health and metrics.
type API struct {
	addr        string
	asker       Asker
	scraper     GuildScraper
	health      Pinger
	metrics     http.Handler
	metricsPath string
	logger      *slog.Logger
	server      *http.Server
	handler     http.Handler
}

type APIConfig struct {
	Host    string
	Port    int
	Asker   Asker
	Scraper GuildScraper // nil disables POST /discord/{guild_id}
	Health  Pinger       // nil makes /healthz always report ok
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

func NewAPI(cfg APIConfig) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	a := &API{
		addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		asker:       cfg.Asker,
		scraper:     cfg.Scraper,
		health:      cfg.Health,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
	}
	a.handler = a.routes()
	return a
}

func (a *API) Name() string { return "api" }

// Handler returns the routed handler, for tests and embedding.
func (a *API) Handler() http.Handler { return a.handler }

func (a *API) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", a.handleAsk)
	mux.HandleFunc("POST /discord/{guild_id}", a.handleScrape)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET "+a.metricsPath, a.metrics)
	}
	return a.withRequestID(mux)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (a *API) Start(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // scrapes hold the connection while they run
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.logger.Info("API started", "addr", a.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("API shutdown", "err", err)
		}
	}()

	if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type requestIDKey struct{}

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-ID", id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

type askRequest struct {
	Query string `json:"query"`
}

func (a *API) handleAsk(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, apiMaxBodySize))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, errorBody("bad request"))
		return
	}

	var req askRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(rw, http.StatusBadRequest, errorBody("invalid JSON"))
			return
		}
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(rw, http.StatusBadRequest, errorBody(errNoQuery))
		return
	}

	log := a.logger.With("request_id", requestID(r))
	log.Info("ask received", "query_len", len(req.Query))

	res, err := a.asker.Answer(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuestion) {
			writeJSON(rw, http.StatusBadRequest, errorBody(errNoQuery))
			return
		}
		log.Error("ask failed", "err", err)
		writeJSON(rw, http.StatusInternalServerError, errorBody("failed to answer the question"))
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

type scrapeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	*ingest.ScrapeReport
}

func (a *API) handleScrape(rw http.ResponseWriter, r *http.Request) {
	if a.scraper == nil {
		writeJSON(rw, http.StatusServiceUnavailable, errorBody("ingestion is not configured"))
		return
	}
	guildID := strings.TrimSpace(r.PathValue("guild_id"))
	if guildID == "" {
		writeJSON(rw, http.StatusBadRequest, errorBody("guild_id is required"))
		return
	}

	limit := a.scraper.DefaultLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(rw, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}

	log := a.logger.With("request_id", requestID(r), "guild_id", guildID)
	report, err := a.scraper.ScrapeGuild(r.Context(), guildID, limit)
	if err != nil {
		log.Error("scrape failed", "err", err)
		writeJSON(rw, http.StatusBadGateway, errorBody(fmt.Sprintf("scrape failed: %v", err)))
		return
	}
	writeJSON(rw, http.StatusOK, scrapeResponse{
		Status:       "ok",
		Message:      fmt.Sprintf("Scraped guild_id=%s, limit=%d", guildID, limit),
		ScrapeReport: report,
	})
}

func (a *API) handleHealth(rw http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.Ping(r.Context()); err != nil {
			a.logger.Warn("health check failed", "err", err)
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
