// Package config loads the bot configuration from environment variables or,
// when DRIP_CONFIG points at a YAML file, from that file. Brokerage
// credentials always come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/driftware/drip/internal/domain"
)

const (
	defaultSymbols  = "VOO"
	defaultTriggers = "DAILY_PURCHASE,PRICE_LOWER_THAN_AVERAGE_PURCHASE_PRICE"
	defaultNotional = "10"
	defaultCap      = 5
	defaultTimezone = "America/New_York"

	defaultDayOpen   = "06:00"
	defaultPreClose  = "15:59"
	defaultPostClose = "16:01"
	defaultPreOpen   = "07:58"

	defaultFeed        = "iex"
	defaultMetricsAddr = ":2112"
)

// Schedule holds the daily schedule instants as "HH:MM" local times.
type Schedule struct {
	Timezone         string
	DayOpen          string
	PreClose         string
	PostClose        string
	PreOpenReconnect string
}

// Config is the immutable startup configuration of the bot.
type Config struct {
	Symbols    []string
	Triggers   []domain.Trigger
	Notional   decimal.Decimal
	FailureCap int
	Schedule   Schedule

	APIKey    string
	APISecret string
	Paper     bool
	Feed      string

	MetricsAddr string
}

// Location resolves the configured exchange timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", c.Schedule.Timezone)
	}
	return loc, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if len(c.Triggers) == 0 {
		return fmt.Errorf("at least one valid trigger is required")
	}
	if !c.Notional.IsPositive() {
		return fmt.Errorf("order notional must be positive, got %s", c.Notional)
	}
	if c.FailureCap < 1 {
		return fmt.Errorf("order failure cap must be at least 1, got %d", c.FailureCap)
	}
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY must be set")
	}
	return nil
}

// Load reads the configuration. A .env file in the working directory is
// honored if present.
func Load(logger *zap.Logger) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error
	if path := os.Getenv("DRIP_CONFIG"); path != "" {
		cfg, err = loadYAML(path, logger)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg = loadEnv(logger)
	}

	// credentials never live in the config file
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnv(logger *zap.Logger) Config {
	return Config{
		Symbols:    splitList(getEnv("STOCK_LIST", defaultSymbols)),
		Triggers:   parseTriggers(getEnv("DAILY_ENABLED_TRADES", defaultTriggers), logger),
		Notional:   getEnvDecimal("ORDER_NOTIONAL", defaultNotional, logger),
		FailureCap: getEnvInt("ORDER_FAILURE_CAP", defaultCap, logger),
		Schedule: Schedule{
			Timezone:         getEnv("TIMEZONE", defaultTimezone),
			DayOpen:          getEnv("DAY_OPEN", defaultDayOpen),
			PreClose:         getEnv("PRE_CLOSE", defaultPreClose),
			PostClose:        getEnv("POST_CLOSE", defaultPostClose),
			PreOpenReconnect: getEnv("PRE_OPEN_RECONNECT", defaultPreOpen),
		},
		Paper:       getEnvBool("IS_PAPER", true),
		Feed:        getEnv("ALPACA_FEED", defaultFeed),
		MetricsAddr: getEnv("METRICS_ADDR", defaultMetricsAddr),
	}
}

type yamlConfig struct {
	Symbols          []string `yaml:"symbols"`
	Triggers         []string `yaml:"triggers"`
	Notional         string   `yaml:"notional"`
	FailureCap       *int     `yaml:"failure_cap"`
	Timezone         string   `yaml:"timezone"`
	DayOpen          string   `yaml:"day_open"`
	PreClose         string   `yaml:"pre_close"`
	PostClose        string   `yaml:"post_close"`
	PreOpenReconnect string   `yaml:"pre_open_reconnect"`
	Paper            *bool    `yaml:"paper"`
	Feed             string   `yaml:"feed"`
	MetricsAddr      string   `yaml:"metrics_addr"`
}

func loadYAML(path string, logger *zap.Logger) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file %s", path)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	cfg := Config{
		Symbols:    yc.Symbols,
		Triggers:   parseTriggers(strings.Join(yc.Triggers, ","), logger),
		Notional:   parseDecimal(yc.Notional, defaultNotional, logger),
		FailureCap: defaultCap,
		Schedule: Schedule{
			Timezone:         fallback(yc.Timezone, defaultTimezone),
			DayOpen:          fallback(yc.DayOpen, defaultDayOpen),
			PreClose:         fallback(yc.PreClose, defaultPreClose),
			PostClose:        fallback(yc.PostClose, defaultPostClose),
			PreOpenReconnect: fallback(yc.PreOpenReconnect, defaultPreOpen),
		},
		Paper:       true,
		Feed:        fallback(yc.Feed, defaultFeed),
		MetricsAddr: fallback(yc.MetricsAddr, defaultMetricsAddr),
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = splitList(defaultSymbols)
	}
	if len(yc.Triggers) == 0 {
		cfg.Triggers = parseTriggers(defaultTriggers, logger)
	}
	if yc.FailureCap != nil {
		cfg.FailureCap = *yc.FailureCap
	}
	if yc.Paper != nil {
		cfg.Paper = *yc.Paper
	}
	return cfg, nil
}

// parseTriggers parses a comma-separated trigger list, skipping malformed
// and duplicate entries instead of failing startup.
func parseTriggers(raw string, logger *zap.Logger) []domain.Trigger {
	seen := make(map[domain.Trigger]struct{})
	var out []domain.Trigger

	for _, part := range splitList(raw) {
		trig, err := domain.ParseTrigger(part)
		if err != nil {
			logger.Warn("skipping malformed trigger", zap.String("trigger", part), zap.Error(err))
			continue
		}
		if _, ok := seen[trig]; ok {
			continue
		}
		seen[trig] = struct{}{}
		out = append(out, trig)
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func getEnv(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func getEnvInt(key string, def int, logger *zap.Logger) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("ignoring invalid integer", zap.String("key", key), zap.String("value", value))
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return def
}

func getEnvDecimal(key, def string, logger *zap.Logger) decimal.Decimal {
	return parseDecimal(os.Getenv(key), def, logger)
}

func parseDecimal(value, def string, logger *zap.Logger) decimal.Decimal {
	if value == "" {
		return decimal.RequireFromString(def)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		logger.Warn("ignoring invalid decimal", zap.String("value", value))
		return decimal.RequireFromString(def)
	}
	return d
}
