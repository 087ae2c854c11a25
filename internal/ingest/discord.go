package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"discordqa/internal/domain"
)

// maxPageSize is the largest page the channel messages endpoint returns.
const maxPageSize = 100

// DiscordAPI is the subset of *discordgo.Session used for scraping.
type DiscordAPI interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Observer is notified once per completed scrape.
type Observer interface {
	ObserveScrape(messages, embedded, skippedChannels int)
}

// ScrapeReport summarizes one guild scrape.
type ScrapeReport struct {
	GuildID  string `json:"guild_id"`
	Limit    int    `json:"limit"`
	Channels int    `json:"channels"`
	Skipped  int    `json:"skipped"`
	Messages int    `json:"messages"`
	Embedded int    `json:"embedded"`
}

// Scraper copies text channel history into the archive and embeds it.
type Scraper struct {
	api          DiscordAPI
	store        domain.EmbeddingStore
	embedder     domain.Embedder
	throttle     *throttle
	defaultLimit int
	observer     Observer
	logger       *slog.Logger
}

type ScraperConfig struct {
	API          DiscordAPI
	Store        domain.EmbeddingStore
	Embedder     domain.Embedder
	DefaultLimit int
	// EmbedPerMinute <= 0 disables throttling of embedding calls.
	EmbedPerMinute float64
	EmbedBurst     int
	Observer       Observer
	Logger         *slog.Logger
}

func NewScraper(cfg ScraperConfig) *Scraper {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = maxPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scraper{
		api:          cfg.API,
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		throttle:     newThrottle(cfg.EmbedBurst, cfg.EmbedPerMinute),
		defaultLimit: cfg.DefaultLimit,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}
}

// NewDiscordSession opens a REST-only session. The token is sent as the
// Authorization header exactly as given, so bot tokens need their "Bot " prefix.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return s, nil
}

// DefaultLimit is the per-channel limit used when callers pass 0.
func (s *Scraper) DefaultLimit() int { return s.defaultLimit }

// ScrapeGuild archives up to limit recent messages from every text channel of
// guildID. Channels answering 403 are skipped; any other API, store or
// embedding error aborts the scrape.
func (s *Scraper) ScrapeGuild(ctx context.Context, guildID string, limit int) (*ScrapeReport, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, errors.New("guild id is required")
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	report := &ScrapeReport{GuildID: guildID, Limit: limit}
	start := time.Now()

	channels, err := s.api.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list channels of guild %s: %w", guildID, err)
	}

	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		s.logger.Info("scraping channel", "channel", ch.Name, "channel_id", ch.ID)

		err := s.scrapeChannel(ctx, ch.ID, limit, report)
		if isForbidden(err) {
			s.logger.Warn("skipping channel, no permission", "channel_id", ch.ID)
			report.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		report.Channels++
	}

	s.logger.Info("scrape finished",
		"guild_id", guildID,
		"limit", limit,
		"channels", report.Channels,
		"skipped", report.Skipped,
		"messages", report.Messages,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if s.observer != nil {
		s.observer.ObserveScrape(report.Messages, report.Embedded, report.Skipped)
	}
	return report, nil
}

// scrapeChannel pages backwards from the newest message until limit messages
// have been read or the history ends.
func (s *Scraper) scrapeChannel(ctx context.Context, channelID string, limit int, report *ScrapeReport) error {
	before := ""
	for remaining := limit; remaining > 0; {
		page := min(remaining, maxPageSize)
		msgs, err := s.api.ChannelMessages(channelID, page, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := s.archive(ctx, channelID, m, report); err != nil {
				return err
			}
		}
		if len(msgs) < page {
			return nil
		}
		remaining -= len(msgs)
		before = msgs[len(msgs)-1].ID
	}
	return nil
}

func (s *Scraper) archive(ctx context.Context, channelID string, m *discordgo.Message, report *ScrapeReport) error {
	rec := domain.ArchivedMessage{
		ID:        m.ID,
		ChannelID: channelID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		rec.AuthorID = m.Author.ID
	}
	if !rec.Storable() {
		return nil
	}

	if err := s.store.SaveMessage(ctx, rec); err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	report.Messages++

	if err := s.throttle.wait(ctx); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, rec.Content)
	if err != nil {
		return fmt.Errorf("embed message %s: %w", m.ID, err)
	}
	if err := s.store.UpsertEmbedding(ctx, rec.ID, vec); err != nil {
		return fmt.Errorf("upsert embedding %s: %w", m.ID, err)
	}
	report.Embedded++
	return nil
}

func isForbidden(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrForbidden) {
		return true
	}
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}
