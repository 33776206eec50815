package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"polyTradeBot/internal/adapters/logger"
	"polyTradeBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Execution
	Mode     domain.ExecMode // paper or live
	TickIntv time.Duration   // trading loop interval

	// Venue API
	VenueBaseURL string
	VenueAPIKey  string
	HTTPTimeout  time.Duration

	// Ledger
	InitialCash float64 // starting cash for the paper ledger
	LedgerKey   string
	LiveTTL     time.Duration // live ledger state TTL

	// Orders
	OrderUSD      float64 // default/fallback order size
	MaxOrderAge   time.Duration
	TrackerKey    string
	TrackerTTL    time.Duration
	PurgeInterval time.Duration

	// Exits
	TPPct         float64 // take-profit threshold as pnl fraction
	SLPct         float64 // stop-loss threshold as pnl fraction
	MaxHold       time.Duration
	ExitOnTimeout bool

	// Risk Limits
	MaxDailyLoss       float64
	MaxWeeklyLoss      float64
	MaxPositionSizeUSD float64
	MinPositionSizeUSD float64
	MaxPositionPct     float64
	MaxOpenPositions   int
	MaxDrawdownPct     float64

	// Quote quality
	MaxSpread      float64
	MinBandDepth   float64
	PriceTolerance float64

	// Circuit breaker
	MaxConsecutiveLosses int
	BreakerCooldown      time.Duration
	MaxVenueErrors       int

	// Sizing
	KellyFraction float64
	TradeCooldown time.Duration

	// Storage
	RedisURL     string // empty selects the in-memory store
	RiskKey      string
	DBPath       string
	DecisionKey  string // queue the scanner publishes decisions to
	WatchlistKey string

	// HTTP control surface
	APIAddr string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "std" or "json"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Execution
	mode := strings.ToLower(getEnv("MODE", "paper"))
	switch mode {
	case "paper":
		cfg.Mode = domain.ModePaper
	case "live":
		cfg.Mode = domain.ModeLive
	default:
		errs = append(errs, fmt.Sprintf("MODE must be 'paper' or 'live', got '%s'", mode))
	}

	tickSeconds := getEnvAsInt("TICK_EVERY_S", 60)
	if tickSeconds <= 0 {
		errs = append(errs, "TICK_EVERY_S must be positive")
	}
	cfg.TickIntv = time.Duration(tickSeconds) * time.Second

	// Venue API
	cfg.VenueBaseURL = getEnv("VENUE_BASE_URL", "https://clob.polymarket.com")
	cfg.VenueAPIKey = getEnv("VENUE_API_KEY", "")
	if cfg.Mode == domain.ModeLive && cfg.VenueAPIKey == "" {
		errs = append(errs, "VENUE_API_KEY must be set in live mode")
	}
	cfg.HTTPTimeout = time.Duration(getEnvAsInt("HTTP_TIMEOUT_S", 10)) * time.Second

	// Ledger
	cfg.InitialCash, err = getEnvAsFloatRequired("INITIAL_CASH", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CASH: %v", err))
	} else if cfg.InitialCash <= 0 {
		errs = append(errs, "INITIAL_CASH must be positive")
	}
	if cfg.Mode == domain.ModeLive {
		cfg.LedgerKey = getEnv("LIVE_LEDGER_REDIS_KEY", "live:ledger:v1")
	} else {
		cfg.LedgerKey = getEnv("LEDGER_REDIS_KEY", "paper:ledger:v1")
	}
	cfg.LiveTTL = time.Duration(getEnvAsInt("LIVE_LEDGER_TTL_S", 86400)) * time.Second

	// Orders
	cfg.OrderUSD, err = getEnvAsFloatRequired("ORDER_USD", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ORDER_USD: %v", err))
	} else if cfg.OrderUSD <= 0 {
		errs = append(errs, "ORDER_USD must be positive")
	}
	cfg.MaxOrderAge = time.Duration(getEnvAsInt("MAX_ORDER_AGE_S", 300)) * time.Second
	cfg.TrackerKey = getEnv("TRACKER_REDIS_KEY", "order_tracker:open_orders")
	cfg.TrackerTTL = time.Duration(getEnvAsInt("TRACKER_TTL_S", 86400)) * time.Second
	cfg.PurgeInterval = time.Duration(getEnvAsInt("PURGE_INTERVAL_S", 3600)) * time.Second

	// Exits
	cfg.TPPct, err = getEnvAsFloatRequired("TP_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TP_PCT: %v", err))
	} else if cfg.TPPct <= 0 || cfg.TPPct >= 1.0 {
		errs = append(errs, "TP_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.SLPct, err = getEnvAsFloatRequired("SL_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SL_PCT: %v", err))
	} else if cfg.SLPct <= 0 || cfg.SLPct >= 1.0 {
		errs = append(errs, "SL_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxHold = time.Duration(getEnvAsInt("MAX_HOLD_S", 180)) * time.Second
	cfg.ExitOnTimeout = getEnvAsBool("EXIT_ON_TIMEOUT", true)

	// Risk limits
	cfg.MaxDailyLoss = getEnvAsFloat("MAX_DAILY_LOSS", 50.0)
	cfg.MaxWeeklyLoss = getEnvAsFloat("MAX_WEEKLY_LOSS", 200.0)
	cfg.MaxPositionSizeUSD = getEnvAsFloat("MAX_POSITION_SIZE_USD", 100.0)
	cfg.MinPositionSizeUSD = getEnvAsFloat("MIN_POSITION_SIZE_USD", 5.0)
	cfg.MaxPositionPct = getEnvAsFloat("MAX_POSITION_PCT", 0.20)
	cfg.MaxOpenPositions = getEnvAsInt("MANAGE_MAX_POS", 3)
	cfg.MaxDrawdownPct = getEnvAsFloat("MAX_DRAWDOWN_PCT", 0.15)
	if cfg.MaxDailyLoss <= 0 || cfg.MaxWeeklyLoss <= 0 {
		errs = append(errs, "MAX_DAILY_LOSS and MAX_WEEKLY_LOSS must be positive")
	}
	if cfg.MinPositionSizeUSD > cfg.MaxPositionSizeUSD {
		errs = append(errs, "MIN_POSITION_SIZE_USD must not exceed MAX_POSITION_SIZE_USD")
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1.0 {
		errs = append(errs, "MAX_POSITION_PCT must be in (0.0, 1.0]")
	}
	if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MANAGE_MAX_POS must be positive")
	}
	if cfg.MaxDrawdownPct <= 0 || cfg.MaxDrawdownPct >= 1.0 {
		errs = append(errs, "MAX_DRAWDOWN_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	// Quote quality
	cfg.MaxSpread = getEnvAsFloat("MAX_SPREAD", 0.05)
	cfg.MinBandDepth = getEnvAsFloat("MIN_BAND_DEPTH", 50.0)
	cfg.PriceTolerance = getEnvAsFloat("PRICE_TOLERANCE", 0.10)

	// Circuit breaker
	cfg.MaxConsecutiveLosses = getEnvAsInt("CB_MAX_CONSECUTIVE_LOSSES", 5)
	if cfg.MaxConsecutiveLosses <= 0 {
		errs = append(errs, "CB_MAX_CONSECUTIVE_LOSSES must be positive")
	}
	cooldownSeconds := getEnvAsInt("CB_COOLDOWN_SECONDS", 3600)
	if cooldownSeconds <= 0 {
		errs = append(errs, "CB_COOLDOWN_SECONDS must be positive")
	}
	cfg.BreakerCooldown = time.Duration(cooldownSeconds) * time.Second
	cfg.MaxVenueErrors = getEnvAsInt("CB_MAX_VENUE_ERRORS", 10)

	// Sizing
	cfg.KellyFraction = getEnvAsFloat("KELLY_FRACTION", 0.25)
	if cfg.KellyFraction <= 0 || cfg.KellyFraction > 1.0 {
		errs = append(errs, "KELLY_FRACTION must be in (0.0, 1.0]")
	}
	cfg.TradeCooldown = time.Duration(getEnvAsInt("TRADE_COOLDOWN_S", 5)) * time.Second

	// Storage
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.RiskKey = getEnv("RISK_REDIS_KEY", "risk:state")
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_history.db")
	cfg.DecisionKey = getEnv("DECISION_REDIS_KEY", "decisions:pending")
	cfg.WatchlistKey = getEnv("WATCHLIST_REDIS_KEY", "decisions:watchlist")

	// HTTP control surface
	cfg.APIAddr = getEnv("API_ADDR", ":8080")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "std"))
	if cfg.LogFormat != "std" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be 'std' or 'json', got '%s'", cfg.LogFormat))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
