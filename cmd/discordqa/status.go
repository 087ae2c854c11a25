package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the archive and the model endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "discordqa v%s\n", version)
			fmt.Fprintf(out, "config: %s\n\n", resolveConfigPath())

			a, err := newApp(ctx, cfg)
			if err != nil {
				printCheck(out, false, "archive", err.Error())
				return err
			}
			defer a.Close()

			failed := 0
			if st, err := a.store.Stats(ctx); err != nil {
				printCheck(out, false, "archive", err.Error())
				failed++
			} else {
				printCheck(out, true, "archive", fmt.Sprintf("%s, %d messages, %d embeddings", cfg.Store.Driver, st.Messages, st.Embeddings))
			}

			if err := a.chat.Healthy(ctx); err != nil {
				printCheck(out, false, "chat", err.Error())
				failed++
			} else {
				printCheck(out, true, "chat", a.chat.Name())
			}

			if _, err := a.embedder.Embed(ctx, "ping"); err != nil {
				printCheck(out, false, "embeddings", err.Error())
				failed++
			} else {
				printCheck(out, true, "embeddings", fmt.Sprintf("%s (%d dims)", cfg.LLM.Embedding.Model, a.embedder.Dimensions()))
			}

			if cfg.Discord.Token == "" {
				printCheck(out, false, "discord", "no token, scraping disabled")
			} else {
				printCheck(out, true, "discord", "token configured")
			}

			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}
}

func printCheck(w io.Writer, ok bool, name, detail string) {
	mark := "ok  "
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(w, "[%s] %-11s %s\n", mark, name, detail)
}
