package config

import "discordqa/internal/domain"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		LLM: LLMConfig{
			Chat: EndpointConfig{
				Kind:           "openai",
				Model:          "gpt-4o-mini",
				APIVersion:     "2024-02-01",
				TimeoutSeconds: 120,
			},
			Embedding: EndpointConfig{
				Kind:           "openai",
				Model:          "text-embedding-3-small",
				APIVersion:     "2024-02-01",
				Dimensions:     domain.EmbeddingDimensions,
				TimeoutSeconds: 60,
			},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DBPath: "~/.discordqa/archive.db",
		},
		Retrieval: RetrievalConfig{
			TopK:          15,
			MaxRows:       200,
			ReadOnlyGuard: true,
		},
		Discord: DiscordConfig{
			DefaultLimit:   100,
			EmbedPerMinute: 600,
			EmbedBurst:     20,
		},
		Channels: ChannelsConfig{
			API: APIConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    8080,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
