package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	applyEnvOverrides(cfg)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT", "BNBUSDT"}, cfg.ScanConfig.Symbols)
	assert.Equal(t, 30, cfg.ScanConfig.ScanIntervalSeconds)
	assert.Equal(t, 3, cfg.ScanConfig.Concurrency)
	assert.Equal(t, "15m", cfg.AnalyzerConfig.Timeframe)
	assert.Equal(t, "1h", cfg.AnalyzerConfig.HTFTimeframe)
	assert.InDelta(t, 1.2, cfg.FilterConfig.MinRiskReward, 1e-9)
	assert.InDelta(t, 7.5e-5, cfg.FilterConfig.MinATRPct, 1e-12)
	assert.InDelta(t, 10000, cfg.SimConfig.EquityUSD, 1e-9)
	assert.True(t, cfg.SimConfig.BreakEvenOnTP1)
	assert.Equal(t, 23, cfg.ReportConfig.Hour)
	assert.Equal(t, 59, cfg.ReportConfig.Minute)
	assert.Equal(t, "signals.db", cfg.StorageConfig.DBPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "btcusdt, ethusdt")
	t.Setenv("SCAN_INTERVAL_SECONDS", "120")
	t.Setenv("TIMEFRAME", "30m")
	t.Setenv("SIM_BE_ON_TP1", "0")
	t.Setenv("MIN_RISK_REWARD", "2.0")

	cfg := loadDefaults(t)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.ScanConfig.Symbols)
	assert.Equal(t, 120, cfg.ScanConfig.ScanIntervalSeconds)
	assert.Equal(t, "30m", cfg.AnalyzerConfig.Timeframe)
	assert.False(t, cfg.SimConfig.BreakEvenOnTP1)
	assert.InDelta(t, 2.0, cfg.FilterConfig.MinRiskReward, 1e-9)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"interval floor", map[string]string{"SCAN_INTERVAL_SECONDS": "10"}, "SCAN_INTERVAL_SECONDS"},
		{"bad timeframe", map[string]string{"TIMEFRAME": "7m"}, "TIMEFRAME"},
		{"unsupported short timeframe", map[string]string{"TIMEFRAME": "5m"}, "TIMEFRAME"},
		{"bad htf", map[string]string{"HTF_TIMEFRAME": "2h"}, "HTF_TIMEFRAME"},
		{"unsupported long htf", map[string]string{"HTF_TIMEFRAME": "4h"}, "HTF_TIMEFRAME"},
		{"rsi band inverted", map[string]string{"MIN_RSI": "80"}, "MIN_RSI"},
		{"risk out of range", map[string]string{"SIM_RISK_PER_TRADE_PCT": "150"}, "SIM_RISK_PER_TRADE_PCT"},
		{"tp1 ratio", map[string]string{"SIM_TP1_RATIO_QTY": "1.5"}, "SIM_TP1_RATIO_QTY"},
		{"report hour", map[string]string{"DAILY_REPORT_HOUR": "24"}, "DAILY_REPORT_HOUR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg := &Config{}
			applyEnvOverrides(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRender_MasksToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:ABCDEF-secret")
	cfg := loadDefaults(t)

	out := cfg.Render()
	assert.Contains(t, out, "TIMEFRAME=15m")
	assert.Contains(t, out, "TELEGRAM_BOT_TOKEN=123...ret")
	assert.NotContains(t, out, "ABCDEF-secret")
}
