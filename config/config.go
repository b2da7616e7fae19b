package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is the full engine configuration, grouped by concern.
type Config struct {
	ScanConfig     ScanConfig     `json:"scan"`
	AnalyzerConfig AnalyzerConfig `json:"analyzer"`
	FilterConfig   FilterConfig   `json:"filter"`
	SimConfig      SimConfig      `json:"sim"`
	ReportConfig   ReportConfig   `json:"report"`
	TelegramConfig TelegramConfig `json:"telegram"`
	StorageConfig  StorageConfig  `json:"storage"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ScanConfig drives the continuous scan loop.
type ScanConfig struct {
	Symbols             []string `json:"symbols"`
	ScanIntervalSeconds int      `json:"scan_interval_seconds"` // floor 30
	Concurrency         int      `json:"concurrency"`
	SymbolIntervalMins  int      `json:"symbol_interval_minutes"` // per-symbol re-scan gap
	ThrottleMinutes     int      `json:"throttle_minutes"`        // post-admit cooldown
	FetchTimeoutSeconds int      `json:"fetch_timeout_seconds"`
}

// AnalyzerConfig selects timeframes and setup parameters.
type AnalyzerConfig struct {
	Timeframe       string `json:"timeframe"`
	HTFTimeframe    string `json:"htf_timeframe"`
	Leverage        int    `json:"leverage"`
	StarvationHours int    `json:"starvation_hours"` // relax thresholds past this signal drought
}

// FilterConfig holds the quality gate thresholds.
type FilterConfig struct {
	MinRiskReward        float64 `json:"min_risk_reward"`
	MinATRPct            float64 `json:"min_atr_pct"`
	MinVolumeRatio       float64 `json:"min_volume_ratio"`
	MinRSI               float64 `json:"min_rsi"`
	MaxRSI               float64 `json:"max_rsi"`
	MaxSpreadPct         float64 `json:"max_spread_pct"`
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
	MinSuccessRate       float64 `json:"min_success_rate"`
}

// SimConfig sizes and manages paper trades.
type SimConfig struct {
	EquityUSD       float64 `json:"equity_usd"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	TP1RatioQty     float64 `json:"tp1_ratio_qty"`
	FeeBps          float64 `json:"fee_bps"`
	BreakEvenOnTP1  bool    `json:"break_even_on_tp1"`
}

// ReportConfig schedules the daily summary (UTC).
type ReportConfig struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// TelegramConfig wires signal delivery and the command bot.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatIDs  string `json:"chat_ids"`  // csv of recipient chat ids
	AdminIDs string `json:"admin_ids"` // csv of control user ids
}

// StorageConfig names the on-disk artifacts.
type StorageConfig struct {
	DBPath       string `json:"db_path"`
	ChartsDir    string `json:"charts_dir"`
	ThrottleFile string `json:"throttle_file"`
	DailyCSV     string `json:"daily_csv"`
	UserSettings string `json:"user_settings"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	File    string `json:"file"`
	Console bool   `json:"console"`
}

// The scan pipeline only supports these intervals; the per-user
// horizon labels in the bot are display-only and not gated here.
var validTimeframes = map[string]bool{"15m": true, "30m": true, "1h": true}

// Load reads config.json when present, then applies environment
// overrides on top.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Scan loop
	symbols := getEnvOrDefault("SYMBOLS", strings.Join(cfg.ScanConfig.Symbols, ","))
	if symbols == "" {
		symbols = "BTCUSDT,ETHUSDT,SOLUSDT,DOGEUSDT,BNBUSDT"
	}
	cfg.ScanConfig.Symbols = splitCSV(symbols)
	cfg.ScanConfig.ScanIntervalSeconds = getEnvIntOrDefault("SCAN_INTERVAL_SECONDS", orInt(cfg.ScanConfig.ScanIntervalSeconds, 30))
	cfg.ScanConfig.Concurrency = getEnvIntOrDefault("SCAN_CONCURRENCY", orInt(cfg.ScanConfig.Concurrency, 3))
	cfg.ScanConfig.SymbolIntervalMins = getEnvIntOrDefault("SYMBOL_INTERVAL_MINUTES", orInt(cfg.ScanConfig.SymbolIntervalMins, 5))
	cfg.ScanConfig.ThrottleMinutes = getEnvIntOrDefault("THROTTLE_MINUTES", orInt(cfg.ScanConfig.ThrottleMinutes, 5))
	cfg.ScanConfig.FetchTimeoutSeconds = getEnvIntOrDefault("FETCH_TIMEOUT_SECONDS", orInt(cfg.ScanConfig.FetchTimeoutSeconds, 10))

	// Analyzer
	cfg.AnalyzerConfig.Timeframe = getEnvOrDefault("TIMEFRAME", orStr(cfg.AnalyzerConfig.Timeframe, "15m"))
	cfg.AnalyzerConfig.HTFTimeframe = getEnvOrDefault("HTF_TIMEFRAME", orStr(cfg.AnalyzerConfig.HTFTimeframe, "1h"))
	cfg.AnalyzerConfig.Leverage = getEnvIntOrDefault("LEVERAGE", orInt(cfg.AnalyzerConfig.Leverage, 10))
	cfg.AnalyzerConfig.StarvationHours = getEnvIntOrDefault("ADAPTIVE_STARVATION_HOURS", orInt(cfg.AnalyzerConfig.StarvationHours, 4))

	// Quality gate
	cfg.FilterConfig.MinRiskReward = getEnvFloatOrDefault("MIN_RISK_REWARD", orFloat(cfg.FilterConfig.MinRiskReward, 1.2))
	cfg.FilterConfig.MinATRPct = getEnvFloatOrDefault("MIN_ATR_PCT", orFloat(cfg.FilterConfig.MinATRPct, 7.5e-5))
	cfg.FilterConfig.MinVolumeRatio = getEnvFloatOrDefault("MIN_VOLUME_RATIO", orFloat(cfg.FilterConfig.MinVolumeRatio, 1.2))
	cfg.FilterConfig.MinRSI = getEnvFloatOrDefault("MIN_RSI", orFloat(cfg.FilterConfig.MinRSI, 30))
	cfg.FilterConfig.MaxRSI = getEnvFloatOrDefault("MAX_RSI", orFloat(cfg.FilterConfig.MaxRSI, 70))
	cfg.FilterConfig.MaxSpreadPct = getEnvFloatOrDefault("MAX_SPREAD_PCT", orFloat(cfg.FilterConfig.MaxSpreadPct, 0.01))
	cfg.FilterConfig.VolumeSpikeThreshold = getEnvFloatOrDefault("VOLUME_SPIKE_THRESHOLD", orFloat(cfg.FilterConfig.VolumeSpikeThreshold, 1.2))
	cfg.FilterConfig.MinSuccessRate = getEnvFloatOrDefault("MIN_SUCCESS_RATE", orFloat(cfg.FilterConfig.MinSuccessRate, 25))

	// Paper trading
	cfg.SimConfig.EquityUSD = getEnvFloatOrDefault("SIM_EQUITY_USD", orFloat(cfg.SimConfig.EquityUSD, 10000))
	cfg.SimConfig.RiskPerTradePct = getEnvFloatOrDefault("SIM_RISK_PER_TRADE_PCT", orFloat(cfg.SimConfig.RiskPerTradePct, 1.0))
	cfg.SimConfig.TP1RatioQty = getEnvFloatOrDefault("SIM_TP1_RATIO_QTY", orFloat(cfg.SimConfig.TP1RatioQty, 0.5))
	cfg.SimConfig.FeeBps = getEnvFloatOrDefault("SIM_FEE_BPS", orFloat(cfg.SimConfig.FeeBps, 8))
	cfg.SimConfig.BreakEvenOnTP1 = getEnvOrDefault("SIM_BE_ON_TP1", "1") != "0"

	// Daily report
	cfg.ReportConfig.Hour = getEnvIntOrDefault("DAILY_REPORT_HOUR", orInt(cfg.ReportConfig.Hour, 23))
	cfg.ReportConfig.Minute = getEnvIntOrDefault("DAILY_REPORT_MINUTE", orInt(cfg.ReportConfig.Minute, 59))

	// Telegram
	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramConfig.BotToken)
	cfg.TelegramConfig.ChatIDs = getEnvOrDefault("TELEGRAM_CHAT_IDS", cfg.TelegramConfig.ChatIDs)
	cfg.TelegramConfig.AdminIDs = getEnvOrDefault("TELEGRAM_ADMIN_ID", cfg.TelegramConfig.AdminIDs)

	// Storage
	cfg.StorageConfig.DBPath = getEnvOrDefault("DB_PATH", orStr(cfg.StorageConfig.DBPath, "signals.db"))
	cfg.StorageConfig.ChartsDir = getEnvOrDefault("CHARTS_DIR", orStr(cfg.StorageConfig.ChartsDir, "charts"))
	cfg.StorageConfig.ThrottleFile = getEnvOrDefault("THROTTLE_FILE", orStr(cfg.StorageConfig.ThrottleFile, "signal_throttle.json"))
	cfg.StorageConfig.DailyCSV = getEnvOrDefault("DAILY_CSV", orStr(cfg.StorageConfig.DailyCSV, "signals_daily.csv"))
	cfg.StorageConfig.UserSettings = getEnvOrDefault("USER_SETTINGS_FILE", orStr(cfg.StorageConfig.UserSettings, "user_settings.json"))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.File = getEnvOrDefault("LOG_FILE", cfg.LoggingConfig.File)
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", "1") != "0"
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.ScanConfig.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must list at least one symbol")
	}
	if c.ScanConfig.ScanIntervalSeconds < 30 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be at least 30, got %d", c.ScanConfig.ScanIntervalSeconds)
	}
	if c.ScanConfig.Concurrency < 1 {
		return fmt.Errorf("SCAN_CONCURRENCY must be at least 1, got %d", c.ScanConfig.Concurrency)
	}
	if !validTimeframes[c.AnalyzerConfig.Timeframe] {
		return fmt.Errorf("TIMEFRAME %q is not a supported interval", c.AnalyzerConfig.Timeframe)
	}
	if !validTimeframes[c.AnalyzerConfig.HTFTimeframe] {
		return fmt.Errorf("HTF_TIMEFRAME %q is not a supported interval", c.AnalyzerConfig.HTFTimeframe)
	}
	if c.FilterConfig.MinRSI >= c.FilterConfig.MaxRSI {
		return fmt.Errorf("MIN_RSI (%.1f) must be below MAX_RSI (%.1f)", c.FilterConfig.MinRSI, c.FilterConfig.MaxRSI)
	}
	if c.FilterConfig.MinRiskReward <= 0 {
		return fmt.Errorf("MIN_RISK_REWARD must be positive, got %g", c.FilterConfig.MinRiskReward)
	}
	if c.SimConfig.EquityUSD <= 0 {
		return fmt.Errorf("SIM_EQUITY_USD must be positive, got %g", c.SimConfig.EquityUSD)
	}
	if c.SimConfig.RiskPerTradePct <= 0 || c.SimConfig.RiskPerTradePct > 100 {
		return fmt.Errorf("SIM_RISK_PER_TRADE_PCT must be in (0, 100], got %g", c.SimConfig.RiskPerTradePct)
	}
	if c.SimConfig.TP1RatioQty < 0 || c.SimConfig.TP1RatioQty > 1 {
		return fmt.Errorf("SIM_TP1_RATIO_QTY must be in [0, 1], got %g", c.SimConfig.TP1RatioQty)
	}
	if c.ReportConfig.Hour < 0 || c.ReportConfig.Hour > 23 {
		return fmt.Errorf("DAILY_REPORT_HOUR must be 0-23, got %d", c.ReportConfig.Hour)
	}
	if c.ReportConfig.Minute < 0 || c.ReportConfig.Minute > 59 {
		return fmt.Errorf("DAILY_REPORT_MINUTE must be 0-59, got %d", c.ReportConfig.Minute)
	}
	return nil
}

// ScanInterval returns the loop interval as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanConfig.ScanIntervalSeconds) * time.Second
}

// SymbolGap returns the per-symbol re-scan gap.
func (c *Config) SymbolGap() time.Duration {
	return time.Duration(c.ScanConfig.SymbolIntervalMins) * time.Minute
}

// ThrottleCooldown returns the post-admission cooldown per symbol.
func (c *Config) ThrottleCooldown() time.Duration {
	return time.Duration(c.ScanConfig.ThrottleMinutes) * time.Minute
}

// FetchTimeout bounds a single market data request.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.ScanConfig.FetchTimeoutSeconds) * time.Second
}

// Render returns a key=value dump for the /config command. Secrets
// are masked.
func (c *Config) Render() string {
	entries := map[string]string{
		"TIMEFRAME":               c.AnalyzerConfig.Timeframe,
		"HTF_TIMEFRAME":           c.AnalyzerConfig.HTFTimeframe,
		"SYMBOLS":                 strings.Join(c.ScanConfig.Symbols, ","),
		"SCAN_INTERVAL_SECONDS":   strconv.Itoa(c.ScanConfig.ScanIntervalSeconds),
		"SCAN_CONCURRENCY":        strconv.Itoa(c.ScanConfig.Concurrency),
		"SYMBOL_INTERVAL_MINUTES": strconv.Itoa(c.ScanConfig.SymbolIntervalMins),
		"THROTTLE_MINUTES":        strconv.Itoa(c.ScanConfig.ThrottleMinutes),
		"MIN_RISK_REWARD":         formatFloat(c.FilterConfig.MinRiskReward),
		"MIN_ATR_PCT":             formatFloat(c.FilterConfig.MinATRPct),
		"MIN_RSI":                 formatFloat(c.FilterConfig.MinRSI),
		"MAX_RSI":                 formatFloat(c.FilterConfig.MaxRSI),
		"MAX_SPREAD_PCT":          formatFloat(c.FilterConfig.MaxSpreadPct),
		"VOLUME_SPIKE_THRESHOLD":  formatFloat(c.FilterConfig.VolumeSpikeThreshold),
		"MIN_SUCCESS_RATE":        formatFloat(c.FilterConfig.MinSuccessRate),
		"LEVERAGE":                strconv.Itoa(c.AnalyzerConfig.Leverage),
		"SIM_EQUITY_USD":          formatFloat(c.SimConfig.EquityUSD),
		"SIM_RISK_PER_TRADE_PCT":  formatFloat(c.SimConfig.RiskPerTradePct),
		"SIM_TP1_RATIO_QTY":       formatFloat(c.SimConfig.TP1RatioQty),
		"SIM_FEE_BPS":             formatFloat(c.SimConfig.FeeBps),
		"SIM_BE_ON_TP1":           boolFlag(c.SimConfig.BreakEvenOnTP1),
		"DAILY_REPORT_HOUR":       strconv.Itoa(c.ReportConfig.Hour),
		"DAILY_REPORT_MINUTE":     strconv.Itoa(c.ReportConfig.Minute),
		"DB_PATH":                 c.StorageConfig.DBPath,
		"CHARTS_DIR":              c.StorageConfig.ChartsDir,
		"DAILY_CSV":               c.StorageConfig.DailyCSV,
		"TELEGRAM_BOT_TOKEN":      maskSecret(c.TelegramConfig.BotToken),
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(entries[k])
		sb.WriteString("\n")
	}
	return sb.String()
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maskSecret(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return "(unset)"
		}
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func orStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
