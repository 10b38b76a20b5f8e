// Package config loads bot settings from defaults, a YAML file, a .env file,
// the process environment and the OS keyring, in increasing precedence
// (the keyring only fills secrets that are still empty).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"auto_wordpress_article_publisher/schedule"
)

const (
	configPathEnv = "WPBOT_CONFIG"

	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramAllowedEnv  = "TELEGRAM_ALLOWED_CHATS"
	llmProviderEnv      = "LLM_PROVIDER"
	openAIKeyEnv        = "OPENAI_API_KEY"
	openAIModelEnv      = "OPENAI_MODEL"
	openAIBaseURLEnv    = "OPENAI_BASE_URL"
	wpSiteURLEnv        = "WORDPRESS_SITE_URL"
	wpTokenEnv          = "WORDPRESS_OAUTH_TOKEN"
	wpUsernameEnv       = "WORDPRESS_USERNAME"
	wpCategoriesEnv     = "WORDPRESS_CATEGORIES"
	wpStatusEnv         = "WORDPRESS_POST_STATUS"
	unsplashKeyEnv      = "UNSPLASH_ACCESS_KEY"
	timezoneEnv         = "PUBLISH_TIMEZONE"
	publishTimeEnv      = "PUBLISH_TIME"
	strictDatesEnv      = "SCHEDULE_STRICT_DATES"
	historyDSNEnv       = "HISTORY_DSN"
	lockFileEnv         = "LOCK_FILE"
	statusAddrEnv       = "STATUS_ADDR"
	logLevelEnv         = "LOG_LEVEL"
	logFileEnv          = "LOG_FILE"
	defaultTimezone     = "Europe/London"
	defaultPublishTime  = "06:03"
	defaultModel        = "gpt-3.5-turbo"
	defaultPostStatus   = "future"
	defaultReservations = 100
)

var userConfigDirFunc = os.UserConfigDir

var postStatuses = map[string]bool{"future": true, "draft": true, "pending": true, "private": true, "publish": true}

type Config struct {
	Telegram   TelegramConfig  `yaml:"telegram"`
	LLM        LLMConfig       `yaml:"llm"`
	WordPress  WordPressConfig `yaml:"wordpress"`
	Unsplash   UnsplashConfig  `yaml:"unsplash"`
	Schedule   ScheduleConfig  `yaml:"schedule"`
	Brand      BrandConfig     `yaml:"brand"`
	History    HistoryConfig   `yaml:"history"`
	Log        LogConfig       `yaml:"log"`
	LockFile   string          `yaml:"lock_file"`
	// StatusAddr enables the read-only HTTP status endpoint when set.
	StatusAddr string `yaml:"status_addr"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// AllowedChats restricts who may use the bot; empty allows everyone.
	AllowedChats []int64 `yaml:"allowed_chats"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type WordPressConfig struct {
	SiteURL    string `yaml:"site_url"`
	Token      string `yaml:"token"`
	Username   string `yaml:"username"`
	Categories []int  `yaml:"categories"`
	Status     string `yaml:"status"`
	PageSize   int    `yaml:"page_size"`
}

type UnsplashConfig struct {
	AccessKey string `yaml:"access_key"`
	BaseURL   string `yaml:"base_url"`
}

// ScheduleConfig defines when posts go out.
type ScheduleConfig struct {
	Timezone    string `yaml:"timezone"`
	Time        string `yaml:"time"`
	StrictDates bool   `yaml:"strict_dates"`

	location *time.Location
	slot     schedule.Slot
}

// Location is the reference timezone, resolved during Load.
func (s ScheduleConfig) Location() *time.Location { return s.location }

// Slot is the canonical publication time, resolved during Load.
func (s ScheduleConfig) Slot() schedule.Slot { return s.slot }

type BrandConfig struct {
	Token string `yaml:"token"`
	URL   string `yaml:"url"`
}

type HistoryConfig struct {
	// DSN is a SQLite path or a postgres:// URL; "off" disables the ledger.
	DSN string `yaml:"dsn"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Options controls where Load looks.
type Options struct {
	// Path of the YAML file; falls back to $WPBOT_CONFIG.
	Path string
	// EnvFile is read with godotenv when it exists. Defaults to ".env".
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Secrets fills empty credentials. Nil skips the keyring.
	Secrets SecretStore
}

// Load builds the configuration. Non-fatal problems (dropped category ids,
// unreadable keyring) are returned as warnings for the caller to log.
func Load(opts Options) (Config, []string, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	var warnings []string
	env, err := newEnv(opts)
	if err != nil {
		return Config{}, nil, err
	}

	cfg := defaultConfig()

	path := opts.Path
	if path == "" {
		path, _ = env.get(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, nil, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, nil, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
	}

	warnings = append(warnings, cfg.applyEnvOverrides(env)...)
	if opts.Secrets != nil {
		warnings = append(warnings, cfg.applySecrets(opts.Secrets)...)
	}

	if err := cfg.bindSchedule(); err != nil {
		return Config{}, nil, err
	}
	if !postStatuses[cfg.WordPress.Status] {
		return Config{}, nil, fmt.Errorf("config: unsupported post status %q", cfg.WordPress.Status)
	}
	return cfg, warnings, nil
}

// env resolves a key from the process environment first, then the .env file.
type env struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func newEnv(opts Options) (env, error) {
	e := env{lookup: opts.LookupEnv, file: map[string]string{}}
	if _, err := os.Stat(opts.EnvFile); err != nil {
		return e, nil
	}
	m, err := godotenv.Read(opts.EnvFile)
	if err != nil {
		return env{}, fmt.Errorf("config: cannot parse %s: %w", opts.EnvFile, err)
	}
	e.file = m
	return e, nil
}

func (e env) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok && v != "" {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok && v != ""
}

func (c *Config) applyEnvOverrides(e env) []string {
	var warnings []string
	set := func(key string, dst *string) {
		if v, ok := e.get(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	set(telegramTokenEnv, &c.Telegram.Token)
	set(llmProviderEnv, &c.LLM.Provider)
	set(openAIKeyEnv, &c.LLM.APIKey)
	set(openAIModelEnv, &c.LLM.Model)
	set(openAIBaseURLEnv, &c.LLM.BaseURL)
	set(wpSiteURLEnv, &c.WordPress.SiteURL)
	set(wpTokenEnv, &c.WordPress.Token)
	set(wpUsernameEnv, &c.WordPress.Username)
	set(wpStatusEnv, &c.WordPress.Status)
	set(unsplashKeyEnv, &c.Unsplash.AccessKey)
	set(timezoneEnv, &c.Schedule.Timezone)
	set(publishTimeEnv, &c.Schedule.Time)
	set(historyDSNEnv, &c.History.DSN)
	set(lockFileEnv, &c.LockFile)
	set(statusAddrEnv, &c.StatusAddr)
	set(logLevelEnv, &c.Log.Level)
	set(logFileEnv, &c.Log.File)

	if v, ok := e.get(wpCategoriesEnv); ok {
		ids, dropped := ParseCategories(v)
		c.WordPress.Categories = ids
		for _, d := range dropped {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring non-numeric category %q", wpCategoriesEnv, d))
		}
	}
	if v, ok := e.get(telegramAllowedEnv); ok {
		ids, dropped := parseChatIDs(v)
		c.Telegram.AllowedChats = ids
		for _, d := range dropped {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring invalid chat id %q", telegramAllowedEnv, d))
		}
	}
	if v, ok := e.get(strictDatesEnv); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring invalid boolean %q", strictDatesEnv, v))
		} else {
			c.Schedule.StrictDates = b
		}
	}
	return warnings
}

func (c *Config) applySecrets(store SecretStore) []string {
	var warnings []string
	fill := func(name string, dst *string) {
		if *dst != "" {
			return
		}
		v, err := store.Get(name)
		if err != nil {
			if !errors.Is(err, ErrSecretNotFound) {
				warnings = append(warnings, fmt.Sprintf("keyring: cannot read %s: %v", name, err))
			}
			return
		}
		*dst = v
	}
	fill(SecretTelegramToken, &c.Telegram.Token)
	fill(SecretOpenAIKey, &c.LLM.APIKey)
	fill(SecretWordPressToken, &c.WordPress.Token)
	fill(SecretUnsplashKey, &c.Unsplash.AccessKey)
	return warnings
}

func (c *Config) bindSchedule() error {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Schedule.Timezone, err)
	}
	slot, err := schedule.ParseSlot(c.Schedule.Time)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Schedule.location = loc
	c.Schedule.slot = slot
	return nil
}

// ParseCategories keeps every digits-only entry of a comma separated list,
// 0 included, and returns the rejected entries. It never fails.
func ParseCategories(v string) ([]int, []string) {
	var ids []int
	var dropped []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isDigits(part) {
			dropped = append(dropped, part)
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			dropped = append(dropped, part)
			continue
		}
		ids = append(ids, id)
	}
	return ids, dropped
}

func parseChatIDs(v string) ([]int64, []string) {
	var ids []int64
	var dropped []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			dropped = append(dropped, part)
			continue
		}
		ids = append(ids, id)
	}
	return ids, dropped
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Part names a group of settings a command needs.
type Part int

const (
	PartTelegram Part = iota
	PartLLM
	PartWordPress
	PartUnsplash
)

// Validate reports every missing setting needed by parts in one error.
func (c Config) Validate(parts ...Part) error {
	var missing []string
	for _, p := range parts {
		switch p {
		case PartTelegram:
			if c.Telegram.Token == "" {
				missing = append(missing, telegramTokenEnv)
			}
		case PartLLM:
			if c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
				missing = append(missing, openAIKeyEnv)
			}
			if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
				missing = append(missing, openAIBaseURLEnv)
			}
		case PartWordPress:
			if c.WordPress.SiteURL == "" {
				missing = append(missing, wpSiteURLEnv)
			}
			if c.WordPress.Token == "" {
				missing = append(missing, wpTokenEnv)
			}
		case PartUnsplash:
			if c.Unsplash.AccessKey == "" {
				missing = append(missing, unsplashKeyEnv)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HistoryEnabled reports whether runs should be written to the ledger.
func (c Config) HistoryEnabled() bool {
	return c.History.DSN != "" && c.History.DSN != "off"
}

func defaultConfig() Config {
	historyDSN := "history.db"
	if dir, err := userConfigDirFunc(); err == nil {
		historyDSN = filepath.Join(dir, "wpbot", "history.db")
	}
	return Config{
		LLM: LLMConfig{Provider: "openai", Model: defaultModel},
		WordPress: WordPressConfig{
			Status:   defaultPostStatus,
			PageSize: defaultReservations,
		},
		Schedule: ScheduleConfig{Timezone: defaultTimezone, Time: defaultPublishTime},
		Brand:    BrandConfig{Token: "qloga", URL: "https://www.qloga.com"},
		History:  HistoryConfig{DSN: historyDSN},
		Log:      LogConfig{Level: "info", File: "bot.log"},
		LockFile: filepath.Join(os.TempDir(), "wpbot.lock"),
	}
}
