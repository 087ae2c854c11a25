package provider

import (
	"log/slog"
	"time"

	"discordqa/internal/config"
)

// NewChatFromConfig builds the chat provider described by cfg.LLM.Chat.
func NewChatFromConfig(cfg *config.Config, logger *slog.Logger) *OpenAI {
	c := cfg.LLM.Chat
	return NewOpenAI(OpenAIConfig{
		Kind:       c.Kind,
		APIKey:     c.APIKey,
		APIBase:    c.APIBase,
		APIVersion: c.APIVersion,
		Model:      c.Model,
		Timeout:    time.Duration(c.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
}

// NewEmbedderFromConfig builds the embedder described by cfg.LLM.Embedding.
func NewEmbedderFromConfig(cfg *config.Config, logger *slog.Logger) *Embedder {
	e := cfg.LLM.Embedding
	return NewEmbedder(EmbedderConfig{
		Kind:       e.Kind,
		APIKey:     e.APIKey,
		APIBase:    e.APIBase,
		APIVersion: e.APIVersion,
		Model:      e.Model,
		Dimensions: e.Dimensions,
		Timeout:    time.Duration(e.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
}
