// Package config holds the settings shared by every command.
package config

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingLLMKey is returned when no language model key is configured.
var ErrMissingLLMKey = errors.New("LLM_API_KEY is required")

// Config is embedded into the CLI; kong fills it from flags, the environment and .env files.
type Config struct {
	LLMAPIKey  string `name:"llm-api-key" env:"LLM_API_KEY" help:"API key for the language model."`
	LLMBaseURL string `name:"llm-base-url" env:"LLM_BASE_URL" help:"OpenAI-compatible endpoint for the language model."`
	LLMModel   string `name:"llm-model" env:"LLM_MODEL" default:"gemini-1.5-flash" help:"Language model name."`

	WRISBaseURL  string        `name:"wris-base-url" env:"WRIS_BASE_URL" help:"Base URL of the groundwater data provider."`
	WRISTimeout  time.Duration `name:"wris-timeout" env:"WRIS_TIMEOUT" default:"20s" help:"Timeout for a single provider request."`
	FetchWorkers int           `name:"fetch-workers" env:"FETCH_WORKERS" default:"1" help:"Locations fetched concurrently per turn."`
	ArchiveRaw   bool          `name:"archive-raw" env:"ARCHIVE_RAW" default:"true" negatable:"" help:"Archive raw provider payloads in the SQLite database."`

	SerpAPIKey string `name:"serpapi-key" env:"SERPAPI_KEY" help:"SerpAPI key; enables web-grounded general answers."`

	DBPath      string `name:"db" env:"DB_PATH" default:"data/groundwater.db" help:"Path to the SQLite database."`
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"Postgres URL for the message log; SQLite is used when empty."`

	Debug bool `name:"debug" env:"DEBUG" help:"Enable development logging."`
}

// Validate checks the settings needed before any component is constructed.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LLMAPIKey) == "" {
		return ErrMissingLLMKey
	}
	if c.FetchWorkers < 1 {
		return errors.New("fetch-workers must be at least 1")
	}
	if c.DatabaseURL != "" && !c.UsePostgres() {
		return errors.New("DATABASE_URL must be a postgres:// or postgresql:// URL")
	}
	return nil
}

// UsePostgres reports whether the message log goes to Postgres.
func (c Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}
