// Package config loads the bot's configuration from a YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"daily-news-bot/normalize"
)

// Config holds all application configuration.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	Timezone    string `yaml:"timezone"`
	HTTPAddr    string `yaml:"http_addr"`

	Channel  ChannelConfig  `yaml:"channel"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Curation CurationConfig `yaml:"curation"`
	Learning LearningConfig `yaml:"learning"`
	Language LanguageConfig `yaml:"language"`
}

// ChannelConfig selects where articles are published.
type ChannelConfig struct {
	Kind          string         `yaml:"kind"`
	Mention       string         `yaml:"mention"`
	PostDelay     time.Duration  `yaml:"post_delay"`
	ReactDelay    time.Duration  `yaml:"react_delay"`
	SeedReactions []string       `yaml:"seed_reactions"`
	Slack         SlackConfig    `yaml:"slack"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
	APIURL  string `yaml:"api_url"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	Chat  string `yaml:"chat"`
}

// StorageConfig selects the content store backend.
type StorageConfig struct {
	Backend     string       `yaml:"backend"`
	SQLitePath  string       `yaml:"sqlite_path"`
	PostgresDSN string       `yaml:"postgres_dsn"`
	RedisAddr   string       `yaml:"redis_addr"`
	RedisPrefix string       `yaml:"redis_prefix"`
	GitHub      GitHubConfig `yaml:"github"`
}

type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
	Dir        string `yaml:"dir"`
}

// ScheduleConfig holds the daemon's daily run times, as HH:MM or cron
// expressions in Timezone.
type ScheduleConfig struct {
	Curate string `yaml:"curate"`
	Learn  string `yaml:"learn"`
}

type SourcesConfig struct {
	FetchTimeout  time.Duration  `yaml:"fetch_timeout"`
	Concurrency   int            `yaml:"concurrency"`
	BackfillLimit int            `yaml:"backfill_limit"`
	Feeds         []FeedConfig   `yaml:"feeds"`
	Searches      []SearchConfig `yaml:"searches"`
	HackerNews    HNConfig       `yaml:"hacker_news"`
}

// FeedConfig is a named source read from one or more RSS/Atom URLs.
type FeedConfig struct {
	Name     string   `yaml:"name"`
	URLs     []string `yaml:"urls"`
	Language string   `yaml:"language"`
	Tags     []string `yaml:"tags"`
}

// SearchConfig is a search feed; Endpoint contains "{query}".
type SearchConfig struct {
	Name     string   `yaml:"name"`
	Endpoint string   `yaml:"endpoint"`
	Query    string   `yaml:"query"`
	Language string   `yaml:"language"`
	Tags     []string `yaml:"tags"`
}

type HNConfig struct {
	Enabled  bool     `yaml:"enabled"`
	List     string   `yaml:"list"`
	Limit    int      `yaml:"limit"`
	Language string   `yaml:"language"`
	Tags     []string `yaml:"tags"`
}

// CurationConfig tunes filtering, scoring and selection.
type CurationConfig struct {
	SlateSize          int                 `yaml:"slate_size"`
	RecencyWindow      time.Duration       `yaml:"recency_window"`
	TrustedSource      string              `yaml:"trusted_source"`
	TrustedSourceBonus float64             `yaml:"trusted_source_bonus"`
	SourceFactor       float64             `yaml:"source_factor"`
	TagFactor          float64             `yaml:"tag_factor"`
	KeywordBonus       float64             `yaml:"keyword_bonus"`
	PriorityKeywords   []string            `yaml:"priority_keywords"`
	ExcludePhrases     []string            `yaml:"exclude_phrases"`
	ExcludeDomains     []string            `yaml:"exclude_domains"`
	IncludePhrases     []string            `yaml:"include_phrases"`
	MinTitleLength     int                 `yaml:"min_title_length"`
	TagRules           []normalize.TagRule `yaml:"tag_rules"`
	FallbackTag        string              `yaml:"fallback_tag"`
}

type LearningConfig struct {
	Lookback  time.Duration `yaml:"lookback"`
	DecayRate float64       `yaml:"decay_rate"`
	Positive  []string      `yaml:"positive_reactions"`
	Negative  []string      `yaml:"negative_reactions"`
}

// LanguageConfig names the primary and secondary languages by ISO 639-1 code.
type LanguageConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

// env holds the settings read from the environment. Non-empty values
// override the file.
type env struct {
	SlackToken       string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel     string `envconfig:"SLACK_CHANNEL"`
	TelegramToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChat     string `envconfig:"TELEGRAM_CHAT"`
	GitHubToken      string `envconfig:"GITHUB_TOKEN"`
	GitHubRepository string `envconfig:"GITHUB_REPOSITORY"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	RedisAddr        string `envconfig:"REDIS_ADDR"`
	DBPath           string `envconfig:"NEWSBOT_DB"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	Environment      string `envconfig:"ENVIRONMENT"`
	HTTPAddr         string `envconfig:"NEWSBOT_HTTP_ADDR"`
}

var hhmmRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file, applies environment overrides
// and defaults, and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("NEWSBOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnvironmentOverrides(cfg *Config) error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Channel.Slack.Token, e.SlackToken)
	set(&cfg.Channel.Slack.Channel, e.SlackChannel)
	set(&cfg.Channel.Telegram.Token, e.TelegramToken)
	set(&cfg.Channel.Telegram.Chat, e.TelegramChat)
	set(&cfg.Storage.GitHub.Token, e.GitHubToken)
	set(&cfg.Storage.GitHub.Repository, e.GitHubRepository)
	set(&cfg.Storage.PostgresDSN, e.DatabaseURL)
	set(&cfg.Storage.RedisAddr, e.RedisAddr)
	set(&cfg.Storage.SQLitePath, e.DBPath)
	set(&cfg.LogLevel, e.LogLevel)
	set(&cfg.Environment, e.Environment)
	set(&cfg.HTTPAddr, e.HTTPAddr)
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Tokyo"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	ch := &cfg.Channel
	if ch.Kind == "" {
		ch.Kind = "slack"
		if ch.Slack.Token == "" && ch.Telegram.Token != "" {
			ch.Kind = "telegram"
		}
	}
	if ch.Slack.Channel == "" {
		ch.Slack.Channel = "news"
	}
	if ch.PostDelay == 0 {
		ch.PostDelay = time.Second
	}
	if ch.ReactDelay == 0 {
		ch.ReactDelay = 300 * time.Millisecond
	}
	if ch.SeedReactions == nil {
		if ch.Kind == "telegram" {
			ch.SeedReactions = []string{"thumbsup"}
		} else {
			ch.SeedReactions = []string{"thumbsup", "thumbsdown"}
		}
	}

	st := &cfg.Storage
	if st.Backend == "" {
		switch {
		case st.PostgresDSN != "":
			st.Backend = "postgres"
		case st.RedisAddr != "":
			st.Backend = "redis"
		default:
			st.Backend = "sqlite"
		}
	}
	if st.SQLitePath == "" {
		st.SQLitePath = "./newsbot.db"
	}
	if st.RedisPrefix == "" {
		st.RedisPrefix = "newsbot:"
	}
	if st.GitHub.Branch == "" {
		st.GitHub.Branch = "main"
	}
	if st.GitHub.Dir == "" {
		st.GitHub.Dir = "daily-news-bot"
	}

	if cfg.Schedule.Curate == "" {
		cfg.Schedule.Curate = "08:00"
	}
	if cfg.Schedule.Learn == "" {
		cfg.Schedule.Learn = "07:30"
	}

	src := &cfg.Sources
	if src.FetchTimeout == 0 {
		src.FetchTimeout = 30 * time.Second
	}
	if src.Concurrency == 0 {
		src.Concurrency = 4
	}
	if src.BackfillLimit == 0 {
		src.BackfillLimit = 20
	}
	if src.Feeds == nil {
		src.Feeds = defaultFeeds()
	}
	if src.Searches == nil {
		src.Searches = defaultSearches()
	}
	if src.HackerNews.List == "" {
		src.HackerNews.List = "top"
	}
	if src.HackerNews.Limit == 0 {
		src.HackerNews.Limit = 30
	}
	if src.HackerNews.Language == "" {
		src.HackerNews.Language = "secondary"
	}

	cur := &cfg.Curation
	if cur.SlateSize == 0 {
		cur.SlateSize = 5
	}
	if cur.RecencyWindow == 0 {
		cur.RecencyWindow = normalize.DefaultRecencyWindow
	}
	if cur.TrustedSource == "" {
		cur.TrustedSource = "日経クロストレンド"
	}
	if cur.TrustedSourceBonus == 0 {
		cur.TrustedSourceBonus = 100
	}
	if cur.SourceFactor == 0 {
		cur.SourceFactor = 2
	}
	if cur.TagFactor == 0 {
		cur.TagFactor = 1.5
	}
	if cur.KeywordBonus == 0 {
		cur.KeywordBonus = 5
	}
	if cur.PriorityKeywords == nil {
		cur.PriorityKeywords = append([]string(nil), priorityKeywords...)
	}
	if cur.ExcludePhrases == nil {
		cur.ExcludePhrases = append([]string(nil), excludePhrases...)
	}
	if cur.ExcludeDomains == nil {
		cur.ExcludeDomains = []string{"prtimes.jp", "atpress.ne.jp", "pr-today.net"}
	}
	if cur.IncludePhrases == nil {
		cur.IncludePhrases = append([]string(nil), priorityKeywords...)
	}
	if cur.MinTitleLength == 0 {
		cur.MinTitleLength = 15
	}
	if cur.TagRules == nil {
		cur.TagRules = defaultTagRules()
	}
	if cur.FallbackTag == "" {
		cur.FallbackTag = "その他"
	}

	if cfg.Learning.Lookback == 0 {
		cfg.Learning.Lookback = 7 * 24 * time.Hour
	}

	if cfg.Language.Primary == "" {
		cfg.Language.Primary = "ja"
	}
	if cfg.Language.Secondary == "" {
		cfg.Language.Secondary = "en"
	}
}

func validate(cfg *Config) error {
	switch cfg.Channel.Kind {
	case "slack":
		if cfg.Channel.Slack.Token == "" {
			return fmt.Errorf("slack token is required (SLACK_BOT_TOKEN)")
		}
	case "telegram":
		if cfg.Channel.Telegram.Token == "" {
			return fmt.Errorf("telegram token is required (TELEGRAM_BOT_TOKEN)")
		}
		if cfg.Channel.Telegram.Chat == "" {
			return fmt.Errorf("telegram chat is required")
		}
	default:
		return fmt.Errorf("unknown channel kind %q", cfg.Channel.Kind)
	}

	switch cfg.Storage.Backend {
	case "sqlite", "memory":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres backend needs a dsn (DATABASE_URL)")
		}
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return fmt.Errorf("redis backend needs an address (REDIS_ADDR)")
		}
	case "github":
		if cfg.Storage.GitHub.Token == "" || cfg.Storage.GitHub.Repository == "" {
			return fmt.Errorf("github backend needs GITHUB_TOKEN and GITHUB_REPOSITORY")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	for name, when := range map[string]string{"curate": cfg.Schedule.Curate, "learn": cfg.Schedule.Learn} {
		if !validSchedule(when) {
			return fmt.Errorf("schedule.%s must be HH:MM or a cron expression, got %q", name, when)
		}
	}

	if cfg.Curation.SlateSize < 0 {
		return fmt.Errorf("curation.slate_size must not be negative")
	}
	if cfg.Learning.DecayRate < 0 || cfg.Learning.DecayRate > 1 {
		return fmt.Errorf("learning.decay_rate must be within [0, 1], got %v", cfg.Learning.DecayRate)
	}
	for _, f := range cfg.Sources.Feeds {
		if f.Name == "" || len(f.URLs) == 0 {
			return fmt.Errorf("feed %q needs a name and at least one url", f.Name)
		}
	}
	for _, s := range cfg.Sources.Searches {
		if s.Name == "" || !strings.Contains(s.Endpoint, "{query}") {
			return fmt.Errorf("search %q needs a name and an endpoint containing {query}", s.Name)
		}
	}
	return nil
}

func validSchedule(when string) bool {
	if hhmmRegex.MatchString(when) {
		return true
	}
	_, err := cron.ParseStandard(when)
	return err == nil
}
