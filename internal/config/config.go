package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for discordqa.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Discord   DiscordConfig   `json:"discord" yaml:"discord"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// LLMConfig holds the two model endpoints. Chat and embeddings may live on different
// Azure resources, so each has its own credentials.
type LLMConfig struct {
	Chat      EndpointConfig `json:"chat" yaml:"chat"`
	Embedding EndpointConfig `json:"embedding" yaml:"embedding"`
}

type EndpointConfig struct {
	Kind       string `json:"kind" yaml:"kind"` // "openai" | "azure"
	APIBase    string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey     string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	// Model is the model name (openai) or deployment name (azure).
	Model          string `json:"model" yaml:"model"`
	Dimensions     int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" | "postgres"
	DBPath string `json:"dbPath,omitempty" yaml:"dbPath,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type RetrievalConfig struct {
	TopK          int  `json:"topK" yaml:"topK"`
	MaxRows       int  `json:"maxRows" yaml:"maxRows"`
	ReadOnlyGuard bool `json:"readOnlyGuard" yaml:"readOnlyGuard"`
}

type DiscordConfig struct {
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultLimit int    `json:"defaultLimit" yaml:"defaultLimit"`
	// Embedding calls made while scraping are throttled by a token bucket.
	EmbedPerMinute float64 `json:"embedPerMinute" yaml:"embedPerMinute"`
	EmbedBurst     int     `json:"embedBurst" yaml:"embedBurst"`
}

type ChannelsConfig struct {
	API        APIConfig        `json:"api" yaml:"api"`
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram"`
	DiscordBot DiscordBotConfig `json:"discordBot" yaml:"discordBot"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token,omitempty" yaml:"token,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty"`
}

// DiscordBotConfig enables the /ask slash command. The bot token defaults to
// discord.token when empty.
type DiscordBotConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	GuildID string `json:"guildId,omitempty" yaml:"guildId,omitempty"` // empty = global commands
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.discordqa).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".discordqa"
	}
	return filepath.Join(home, ".discordqa")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML (by extension) config file on top of Defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ApplyEnv fills secrets left empty in the file from the conventional environment
// variables.
func ApplyEnv(cfg *Config) {
	fill := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				*dst = v
				return
			}
		}
	}

	chat, emb := &cfg.LLM.Chat, &cfg.LLM.Embedding
	if chat.Kind == "azure" {
		fill(&chat.APIKey, "AZURE_OPENAI_CHAT_API_KEY")
		fill(&chat.APIBase, "AZURE_OPENAI_CHAT_ENDPOINT")
		fill(&chat.Model, "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME")
		fill(&chat.APIVersion, "AZURE_OPENAI_API_VERSION")
	} else {
		fill(&chat.APIKey, "OPENAI_API_KEY", "OPENAI_KEY")
	}
	if emb.Kind == "azure" {
		fill(&emb.APIKey, "AZURE_OPENAI_EMBEDDING_API_KEY")
		fill(&emb.APIBase, "AZURE_OPENAI_EMBEDDING_ENDPOINT")
		fill(&emb.Model, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME")
		fill(&emb.APIVersion, "AZURE_OPENAI_API_VERSION")
	} else {
		fill(&emb.APIKey, "OPENAI_API_KEY", "OPENAI_KEY")
	}

	fill(&cfg.Discord.Token, "DISCORD_TOKEN")
	fill(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	fill(&cfg.Store.DSN, "DATABASE_URL")
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset VAR without
// a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if val := os.Getenv(groups[1]); val != "" {
			return val
		}
		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return match
	})
}

// Save writes cfg as indented JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	for name, ep := range map[string]EndpointConfig{"llm.chat": cfg.LLM.Chat, "llm.embedding": cfg.LLM.Embedding} {
		switch ep.Kind {
		case "openai":
		case "azure":
			if ep.APIBase == "" {
				errs = append(errs, name+".apiBase is required for azure")
			}
		default:
			errs = append(errs, name+".kind must be one of: openai, azure")
		}
		if ep.Model == "" {
			errs = append(errs, name+".model is required")
		}
	}
	if cfg.LLM.Embedding.Dimensions < 1 {
		errs = append(errs, "llm.embedding.dimensions must be >= 1")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for sqlite")
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be one of: sqlite, postgres")
	}

	if cfg.Retrieval.TopK < 1 {
		errs = append(errs, "retrieval.topK must be >= 1")
	}
	if cfg.Retrieval.MaxRows < 1 {
		errs = append(errs, "retrieval.maxRows must be >= 1")
	}
	if cfg.Discord.DefaultLimit < 1 {
		errs = append(errs, "discord.defaultLimit must be >= 1")
	}
	if cfg.Channels.API.Port < 0 || cfg.Channels.API.Port > 65535 {
		errs = append(errs, "channels.api.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		// Map iteration above is unordered; keep the message stable.
		sort.Strings(errs)
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
