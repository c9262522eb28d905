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
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLARISQL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "CLARISQL_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "gateway.base_url", typ: kString, env: "CLARISQL_GATEWAY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.BaseURL },
	},
	{
		key: "gateway.api_key", typ: kString, env: "CLARISQL_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gateway.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.APIKey },
	},
	{
		key: "gateway.model", typ: kString, env: "CLARISQL_GATEWAY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.Model },
	},
	{
		key: "gateway.fallback_models", typ: kString, env: "CLARISQL_GATEWAY_FALLBACK_MODELS",
		apply:   func(cfg *Config, v any) { cfg.Gateway.FallbackModels = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.FallbackModels },
	},
	{
		key: "gateway.ambiguity_model", typ: kString, env: "CLARISQL_GATEWAY_AMBIGUITY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.AmbiguityModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.AmbiguityModel },
	},
	{
		key: "gateway.embed_model", typ: kString, env: "CLARISQL_GATEWAY_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.EmbedModel },
	},
	{
		key: "gateway.retries", typ: kInt, env: "CLARISQL_GATEWAY_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Gateway.Retries = v.(int) },
		extract: func(cfg Config) any { return cfg.Gateway.Retries },
	},
	{
		key: "gateway.retry_delay", typ: kString, env: "CLARISQL_GATEWAY_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Gateway.RetryDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.RetryDelay },
	},
	{
		key: "refine.strategy", typ: kString, env: "CLARISQL_REFINE_STRATEGY",
		apply:   func(cfg *Config, v any) { cfg.Refine.Strategy = v.(string) },
		extract: func(cfg Config) any { return cfg.Refine.Strategy },
	},
	{
		key: "refine.max_rounds", typ: kInt, env: "CLARISQL_REFINE_MAX_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Refine.MaxRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Refine.MaxRounds },
	},
	{
		key: "refine.shots", typ: kInt, env: "CLARISQL_REFINE_SHOTS",
		apply:   func(cfg *Config, v any) { cfg.Refine.Shots = v.(int) },
		extract: func(cfg Config) any { return cfg.Refine.Shots },
	},
	{
		key: "refine.concurrency", typ: kInt, env: "CLARISQL_REFINE_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Refine.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Refine.Concurrency },
	},
	{
		key: "data.db_root", typ: kString, env: "CLARISQL_DATA_DB_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Data.DBRoot = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.DBRoot },
	},
	{
		key: "data.question_bank_dir", typ: kString, env: "CLARISQL_DATA_QUESTION_BANK_DIR",
		apply:   func(cfg *Config, v any) { cfg.Data.QuestionBankDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.QuestionBankDir },
	},
	{
		key: "log.level", typ: kString, env: "CLARISQL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		}
	}
}
