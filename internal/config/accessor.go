package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "retrieval.topK").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		if current, ok = node[key]; !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. The value is parsed as the
// type of the current value.
func SetByPath(cfg *Config, path string, value string) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = child
	}
	last := parts[len(parts)-1]
	// Keys tagged omitempty are absent while empty; they are all strings.
	existing := parent[last]
	v, err := parseValue(existing, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	parent[last] = v

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	next := Defaults()
	if err := json.Unmarshal(data, next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = *next
	return nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseValue converts s to the JSON type of the value it replaces.
func parseValue(existing any, s string) (any, error) {
	switch existing.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		return b, err
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		return f, err
	case []any:
		var items []any
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case map[string]any:
		return nil, fmt.Errorf("cannot set a section, set one of its keys")
	default:
		return s, nil
	}
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.LLM.Chat.APIKey = maskString(c.LLM.Chat.APIKey)
	c.LLM.Embedding.APIKey = maskString(c.LLM.Embedding.APIKey)
	c.Discord.Token = maskString(c.Discord.Token)
	c.Channels.Telegram.Token = maskString(c.Channels.Telegram.Token)
	c.Channels.DiscordBot.Token = maskString(c.Channels.DiscordBot.Token)
	if c.Store.DSN != "" {
		c.Store.DSN = "***"
	}
	c.Channels.Telegram.AllowFrom = append([]string(nil), cfg.Channels.Telegram.AllowFrom...)
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
