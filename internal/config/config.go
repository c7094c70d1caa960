// Package config loads pulse settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "PULSE_CONFIG"

	StoreSQLite = "sqlite"
	StoreNeo4j  = "neo4j"
)

// Config is the full pulse configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Mastodon MastodonConfig `yaml:"mastodon"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	NATS     NATSConfig     `yaml:"nats"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Serve    ServeConfig    `yaml:"serve"`
	Log      LogConfig      `yaml:"log"`
}

// StoreConfig picks the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Neo4jConfig is used when Store.Backend is neo4j.
type Neo4jConfig struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type MastodonConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Mode          string        `yaml:"mode"`
	PageSize      int           `yaml:"pageSize"`
	Interval      time.Duration `yaml:"interval"`
	BridgeDomains []string      `yaml:"bridgeDomains"`
}

type RedditConfig struct {
	Subreddit string        `yaml:"subreddit"`
	Sort      string        `yaml:"sort"`
	UserAgent string        `yaml:"userAgent"`
	RateLimit time.Duration `yaml:"rateLimit"`
}

// OllamaConfig configures translation. Disabled means records keep their
// original text as the English text.
type OllamaConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// FetchConfig holds defaults for the fetch command.
type FetchConfig struct {
	Limit       int           `yaml:"limit"`
	MinScore    int           `yaml:"minScore"`
	Parallel    bool          `yaml:"parallel"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

type ServeConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{Backend: StoreSQLite, Path: "data/pulse.db"},
		Neo4j: Neo4jConfig{URL: "neo4j://localhost:7687", User: "neo4j"},
		Mastodon: MastodonConfig{
			URL:      "https://mastodon.social",
			Mode:     "hashtag",
			PageSize: 40,
			Interval: 500 * time.Millisecond,
		},
		Reddit: RedditConfig{
			Subreddit: "all",
			Sort:      "new",
			UserAgent: "pulse/1.0",
			RateLimit: 2 * time.Second,
		},
		Ollama: OllamaConfig{Enabled: true, URL: "http://localhost:11434", Model: "llama3.2"},
		Fetch:  FetchConfig{Limit: 200, HTTPTimeout: 20 * time.Second},
		Serve:  ServeConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. A missing .env is fine; a PULSE_CONFIG that
// points at an unreadable or invalid file is an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the YAML at path; fields it omits keep their values.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Store.Path, "PULSE_DB_PATH")
	setString(&c.Store.Backend, "PULSE_STORE")
	setString(&c.Mastodon.URL, "MASTODON_URL")
	setString(&c.Mastodon.Token, "MASTODON_TOKEN")
	setString(&c.Mastodon.Mode, "MASTODON_MODE")
	setString(&c.Reddit.UserAgent, "REDDIT_USER_AGENT")
	setString(&c.Reddit.Subreddit, "REDDIT_SUBREDDIT")
	setString(&c.Ollama.URL, "OLLAMA_URL")
	setString(&c.Ollama.Model, "OLLAMA_MODEL")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Neo4j.URL, "NEO4J_URL")
	setString(&c.Neo4j.User, "NEO4J_USER")
	setString(&c.Neo4j.Pass, "NEO4J_PASS")
	setString(&c.Serve.Addr, "PULSE_ADDR")
	setString(&c.Log.Level, "PULSE_LOG_LEVEL")
	if v := os.Getenv("PULSE_TRANSLATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Ollama.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case StoreNeo4j:
		if c.Neo4j.URL == "" {
			errs = append(errs, errors.New("neo4j.url is required for the neo4j store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want %s or %s", c.Store.Backend, StoreSQLite, StoreNeo4j))
	}
	if c.Mastodon.Mode != "hashtag" && c.Mastodon.Mode != "search" {
		errs = append(errs, fmt.Errorf("mastodon.mode %q: want hashtag or search", c.Mastodon.Mode))
	}
	if c.Mastodon.PageSize < 1 || c.Mastodon.PageSize > 40 {
		errs = append(errs, fmt.Errorf("mastodon.pageSize %d: want 1..40", c.Mastodon.PageSize))
	}
	if c.Fetch.Limit <= 0 {
		errs = append(errs, fmt.Errorf("fetch.limit %d: must be positive", c.Fetch.Limit))
	}
	if c.Fetch.MinScore < 0 {
		errs = append(errs, fmt.Errorf("fetch.minScore %d: must not be negative", c.Fetch.MinScore))
	}
	if c.Ollama.Enabled && c.Ollama.URL == "" {
		errs = append(errs, errors.New("ollama.url is required when translation is enabled"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q: want json or text", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger builds the process logger described by l.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
