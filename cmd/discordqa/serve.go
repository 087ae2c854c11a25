package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"discordqa/internal/channel"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the enabled bots",
		Long:  "Starts the HTTP API (/ask, /discord/{guild_id}, /healthz, /metrics) plus the Telegram and Discord bots when enabled. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if cmd.Flags().Changed("port") {
				cfg.Channels.API.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.chat.Healthy(ctx); err != nil {
				logger.Warn("chat provider unhealthy at startup", "provider", a.chat.Name(), "err", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			started := 0

			if api := cfg.Channels.API; api.Enabled {
				var scraper channel.GuildScraper
				if s, err := a.scraper(); err != nil {
					logger.Warn("ingestion endpoint disabled", "err", err)
				} else {
					scraper = s
				}
				apiCfg := channel.APIConfig{
					Host:    api.Host,
					Port:    api.Port,
					Asker:   a.engine,
					Scraper: scraper,
					Health:  a.store,
					Logger:  logger,
				}
				if cfg.Metrics.Enabled {
					apiCfg.Metrics = a.recorder.Handler(a.store)
					apiCfg.MetricsPath = cfg.Metrics.Endpoint
				}
				srv := channel.NewAPI(apiCfg)
				g.Go(func() error { return runChannel(gctx, srv.Name(), srv.Start) })
				started++
			}

			if tg := cfg.Channels.Telegram; tg.Enabled && tg.Token != "" {
				bot := channel.NewTelegram(channel.TelegramConfig{
					Token:     tg.Token,
					AllowFrom: tg.AllowFrom,
					Asker:     a.engine,
					Logger:    logger,
				})
				g.Go(func() error { return runChannel(gctx, bot.Name(), bot.Start) })
				started++
			}

			if db := cfg.Channels.DiscordBot; db.Enabled {
				token := db.Token
				if token == "" {
					token = cfg.Discord.Token
				}
				if token == "" {
					logger.Warn("discord bot enabled without a token, skipping")
				} else {
					bot := channel.NewDiscordBot(channel.DiscordBotConfig{
						Token:   token,
						GuildID: db.GuildID,
						Asker:   a.engine,
						Logger:  logger,
					})
					g.Go(func() error { return runChannel(gctx, bot.Name(), bot.Start) })
					started++
				}
			}

			if started == 0 {
				return errors.New("no channels enabled: enable channels.api, channels.telegram or channels.discordBot")
			}
			logger.Info("discordqa started. Press Ctrl+C to stop.", "version", version, "channels", started)

			errc := make(chan error, 1)
			go func() { errc <- g.Wait() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down...")
			select {
			case err := <-errc:
				logger.Info("shutdown complete")
				return err
			case <-time.After(shutdownTimeout):
				logger.Warn("shutdown timed out, forcing exit")
				return fmt.Errorf("shutdown timed out")
			}
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override channels.api.port")
	return cmd
}

func runChannel(ctx context.Context, name string, start func(context.Context) error) error {
	if err := start(ctx); err != nil {
		logger.Error("channel stopped", "channel", name, "err", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func scrapeCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scrape <guild_id>",
		Short: "Archive and embed recent messages from every text channel of a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if limit < 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.scraper()
			if err != nil {
				return err
			}
			report, err := s.ScrapeGuild(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "messages per channel (default: discord.defaultLimit)")
	return cmd
}
