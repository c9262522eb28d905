package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Gateway GatewayConfig
	Refine  RefineConfig
	Data    DataConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type GatewayConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	FallbackModels string // comma-separated cascade after Model
	AmbiguityModel string
	EmbedModel     string
	Retries        int
	RetryDelay     string // Go duration string, e.g. "1.5s"
}

type RefineConfig struct {
	Strategy    string
	MaxRounds   int
	Shots       int
	Concurrency int
}

type DataConfig struct {
	// DBRoot holds the benchmark sqlite databases, either flat or nested
	// one directory per database id.
	DBRoot string

	// QuestionBankDir holds exemplar JSON files for few-shot retrieval.
	QuestionBankDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Gateway: GatewayConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			FallbackModels: "gpt-4o-mini",
			AmbiguityModel: "gpt-4o-mini",
			EmbedModel:     "text-embedding-3-small",
			Retries:        3,
			RetryDelay:     "1.5s",
		},
		Refine: RefineConfig{
			Strategy:    "self_debug",
			MaxRounds:   3,
			Shots:       3,
			Concurrency: 20,
		},
		Data: DataConfig{
			DBRoot: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.clarisql.app) and the
// API key falls back to macOS Keychain. On Linux the backend is a JSON file
// at $XDG_CONFIG_HOME/clarisql/config.json and secrets must be provided via
// environment variables.
//
// Environment variables (CLARISQL_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the API key if still empty.
	if cfg.Gateway.APIKey == "" {
		if key, err := kc.Get("clarisql", "openai_api_key"); err == nil && key != "" {
			cfg.Gateway.APIKey = key
		}
	}

	if cfg.Gateway.APIKey == "" {
		msg := "missing required config: OpenAI API key. " +
			"Set it via environment variable CLARISQL_OPENAI_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// FallbackModelList splits the configured fallback cascade.
func (g GatewayConfig) FallbackModelList() []string {
	if g.FallbackModels == "" {
		return nil
	}
	var models []string
	for _, m := range strings.Split(g.FallbackModels, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
