// Package config loads runtime configuration from .env, an optional YAML
// file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"token-screener/internal/classify"
	"token-screener/internal/domain"
	"token-screener/internal/scheduler"
	"token-screener/internal/window"
)

// Config is the full runtime configuration.
type Config struct {
	DatabaseURL   string `yaml:"database_url"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	Timezone       string `yaml:"timezone"`
	AnalysisMode   string `yaml:"analysis_mode"`
	MaxRaw         int    `yaml:"max_raw"`
	RetentionHours int    `yaml:"raw_retention_hours"`
	PurgeNonPassed bool   `yaml:"purge_non_passed"`
	ConflictPolicy string `yaml:"conflict_policy"`

	Sources            []string      `yaml:"sources"`
	CoinGeckoAPIKey    string        `yaml:"coingecko_api_key"`
	DexScreenerQueries []string      `yaml:"dexscreener_queries"`
	SolanaRPCEndpoint  string        `yaml:"solana_rpc_endpoint"`
	ParallelFetch      bool          `yaml:"parallel_fetch"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	FetchRetries       int           `yaml:"fetch_retries"`

	ClassifierMode string                   `yaml:"classifier_mode"`
	Thresholds     classify.Thresholds      `yaml:"thresholds"`
	Heuristic      classify.HeuristicConfig `yaml:"heuristic"`
	RulesFile      string                   `yaml:"rules_file"`

	TelegramBotToken string        `yaml:"telegram_bot_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
	NotifyTimeout    time.Duration `yaml:"notify_timeout"`

	Schedule    string        `yaml:"schedule"`
	HTTPAddr    string        `yaml:"http_addr"`
	LogLevel    string        `yaml:"log_level"`
	RunLeaseTTL time.Duration `yaml:"run_lease_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Timezone:           "Europe/Amsterdam",
		AnalysisMode:       string(window.ModePreviousDay),
		MaxRaw:             5000,
		RetentionHours:     24,
		PurgeNonPassed:     true,
		ConflictPolicy:     string(domain.ConflictIgnore),
		Sources:            []string{string(domain.SourceCoinGecko), string(domain.SourceDexScreener)},
		DexScreenerQueries: []string{"trending"},
		FetchTimeout:       30 * time.Second,
		FetchRetries:       3,
		ClassifierMode:     string(classify.ModeStrict),
		Thresholds:         classify.DefaultThresholds(),
		Heuristic:          classify.DefaultHeuristicConfig(),
		NotifyTimeout:      20 * time.Second,
		Schedule:           "0 5 0 * * *",
		HTTPAddr:           ":8080",
		LogLevel:           "info",
		RunLeaseTTL:        30 * time.Minute,
	}
}

// Load builds the configuration. path may be empty. A missing .env is fine;
// .env never overrides variables already set in the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.setString("DATABASE_URL", &c.DatabaseURL)
	e.setString("CLICKHOUSE_DSN", &c.ClickhouseDSN)
	e.setString("TIMEZONE", &c.Timezone)
	e.setString("ANALYSIS_MODE", &c.AnalysisMode)
	e.setInt("MAX_RAW", &c.MaxRaw)
	e.setInt("RAW_RETENTION_HOURS", &c.RetentionHours)
	e.setBool("PURGE_NON_PASSED", &c.PurgeNonPassed)
	e.setString("CONFLICT_POLICY", &c.ConflictPolicy)

	e.setList("SOURCES", &c.Sources)
	e.setString("COINGECKO_API_KEY", &c.CoinGeckoAPIKey)
	e.setString("CG_API_KEY", &c.CoinGeckoAPIKey) // wins over the alias
	e.setList("DEXSCREENER_QUERIES", &c.DexScreenerQueries)
	e.setString("SOLANA_RPC_ENDPOINT", &c.SolanaRPCEndpoint)
	e.setBool("PARALLEL_FETCH", &c.ParallelFetch)
	e.setDuration("FETCH_TIMEOUT", &c.FetchTimeout)
	e.setInt("FETCH_RETRIES", &c.FetchRetries)

	e.setString("CLASSIFIER_MODE", &c.ClassifierMode)
	e.setFloat("MIN_VOLUME_USD", &c.Thresholds.MinVolume)
	e.setFloat("MIN_DEX_LIQ_USD", &c.Thresholds.MinLiquidity)
	e.setFloat("MAX_TOP10_PCT", &c.Thresholds.MaxTop10)
	e.setFloat("MAX_SINGLE_HOLDER_PCT", &c.Thresholds.MaxSingleHolder)
	e.setBool("REQUIRE_AUDIT", &c.Thresholds.RequireAudit)
	e.setBool("REQUIRE_PUBLIC_TEAM", &c.Thresholds.RequirePublicTeam)
	e.setBool("REQUIRE_GITHUB_ACTIVITY", &c.Thresholds.RequireGitHubActivity)
	e.setFloat("SERIOUS_MCAP_USD", &c.Heuristic.SeriousMcap)
	e.setFloat("SERIOUS_VOLUME_USD", &c.Heuristic.SeriousVolume)
	e.setFloat("STANDALONE_VOLUME_USD", &c.Heuristic.StandaloneVolume)
	e.setFloat("SERIOUS_SCORE", &c.Heuristic.SeriousScore)
	e.setList("MEME_KEYWORDS", &c.Heuristic.MemeKeywords)
	e.setString("RULES_FILE", &c.RulesFile)

	e.setString("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)
	e.setInt64("TELEGRAM_CHAT_ID", &c.TelegramChatID)
	e.setDuration("NOTIFY_TIMEOUT", &c.NotifyTimeout)

	e.setString("SCHEDULE", &c.Schedule)
	e.setString("HTTP_ADDR", &c.HTTPAddr)
	e.setString("LOG_LEVEL", &c.LogLevel)
	e.setDuration("RUN_LEASE_TTL", &c.RunLeaseTTL)

	return errors.Join(e.errs...)
}

// Validate fails fast on misconfiguration.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxRaw <= 0 {
		errs = append(errs, fmt.Errorf("max_raw must be positive, got %d", c.MaxRaw))
	}
	if c.RetentionHours < 0 {
		errs = append(errs, fmt.Errorf("raw_retention_hours must be non-negative, got %d", c.RetentionHours))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch_retries must be non-negative, got %d", c.FetchRetries))
	}
	if c.FetchTimeout <= 0 || c.NotifyTimeout <= 0 || c.RunLeaseTTL <= 0 {
		errs = append(errs, errors.New("fetch_timeout, notify_timeout and run_lease_ttl must be positive"))
	}
	if !domain.ConflictPolicy(c.ConflictPolicy).IsValid() {
		errs = append(errs, fmt.Errorf("unknown conflict_policy %q", c.ConflictPolicy))
	}
	if _, err := classify.ParseMode(c.ClassifierMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := window.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for _, s := range c.Sources {
		if !domain.Source(s).IsValid() {
			errs = append(errs, fmt.Errorf("unknown source %q", s))
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Heuristic.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Schedule != "" {
		if _, err := scheduler.Parse(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule %q: %w", c.Schedule, err))
		}
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether Telegram credentials are present.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}
