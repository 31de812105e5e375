package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NOTED_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "NOTED_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "NOTED_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "embedding.dimension", typ: kInt, env: "NOTED_EMBEDDING_DIMENSION",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Dimension = v.(int) },
		extract: func(cfg Config) any { return cfg.Embedding.Dimension },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NOTED_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "search.top_k", typ: kInt, env: "NOTED_SEARCH_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Search.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.TopK },
	},
	{
		key: "search.threshold", typ: kFloat, env: "NOTED_SEARCH_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Search.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.Threshold },
	},
	{
		key: "backup.output_dir", typ: kString, env: "NOTED_BACKUP_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Backup.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.OutputDir },
	},
	{
		key: "backup.keep", typ: kInt, env: "NOTED_BACKUP_KEEP",
		apply:   func(cfg *Config, v any) { cfg.Backup.Keep = v.(int) },
		extract: func(cfg Config) any { return cfg.Backup.Keep },
	},
	{
		key: "log.level", typ: kString, env: "NOTED_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
