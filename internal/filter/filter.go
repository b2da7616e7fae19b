// Package filter is the quality gate over candidates. Mandatory checks
// reject; soft checks only log. Every rejection carries a machine
// readable reason code plus the offending value.
package filter

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Reason codes for rejections.
const (
	ReasonBadPrice     = "bad_price"
	ReasonTrend        = "trend"
	ReasonRSI          = "rsi_out_of_band"
	ReasonRiskReward   = "risk_reward"
	ReasonATRPct       = "atr_pct"
	ReasonLiquidity    = "liquidity_blocked"
	ReasonSpread       = "spread"
	ReasonChartMissing = "chart_missing"
)

// MarketContext carries everything the gate inspects about a candidate.
type MarketContext struct {
	Price            float64
	RSI              float64
	RSIKnown         bool
	ATRValue         float64
	RiskReward       float64
	VolumeChangePct  float64
	SpreadPct        float64
	LiquidityBlocked bool
	TrendOK          bool
	VolumeSpike      bool
	SuccessRate      float64 // rolling win rate, 0..100
	ChartPath        string
}

// Verdict is the gate's decision.
type Verdict struct {
	Admit  bool
	Reason string
	Value  float64
}

// Config holds the thresholds. Zero values are replaced by defaults.
type Config struct {
	MinRSI         float64
	MaxRSI         float64
	MinRiskReward  float64
	MinATRPct      float64
	MaxSpreadPct   float64
	MinSuccessRate float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinRSI:         30,
		MaxRSI:         70,
		MinRiskReward:  1.2,
		MinATRPct:      7.5e-5,
		MaxSpreadPct:   0.01,
		MinSuccessRate: 25,
	}
}

// Filter applies the gate.
type Filter struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Filter with the given thresholds.
func New(cfg Config, log zerolog.Logger) *Filter {
	return &Filter{cfg: cfg, log: log.With().Str("component", "quality_filter").Logger()}
}

// Check runs the mandatory predicates in order and returns the first
// failure; soft signals are logged but never block.
func (f *Filter) Check(symbol string, mc MarketContext) Verdict {
	if mc.Price <= 0 {
		return f.fail(symbol, ReasonBadPrice, mc.Price)
	}
	if !mc.TrendOK {
		return f.fail(symbol, ReasonTrend, 0)
	}
	if mc.RSIKnown && (mc.RSI < f.cfg.MinRSI || mc.RSI > f.cfg.MaxRSI) {
		return f.fail(symbol, ReasonRSI, mc.RSI)
	}
	if mc.RiskReward < f.cfg.MinRiskReward {
		return f.fail(symbol, ReasonRiskReward, mc.RiskReward)
	}
	atrPct := mc.ATRValue / mc.Price
	if atrPct < f.cfg.MinATRPct {
		return f.fail(symbol, ReasonATRPct, atrPct)
	}
	if mc.LiquidityBlocked {
		return f.fail(symbol, ReasonLiquidity, 0)
	}
	if mc.SpreadPct > f.cfg.MaxSpreadPct {
		return f.fail(symbol, ReasonSpread, mc.SpreadPct)
	}
	if mc.ChartPath == "" {
		return f.fail(symbol, ReasonChartMissing, 0)
	}
	if _, err := os.Stat(mc.ChartPath); err != nil {
		f.log.Warn().Str("symbol", symbol).Str("path", mc.ChartPath).Err(err).
			Msg("chart artifact not on disk")
		return f.fail(symbol, ReasonChartMissing, 0)
	}

	// Soft checks: informational only.
	if !mc.VolumeSpike {
		f.log.Debug().Str("symbol", symbol).Msg("soft: weak volume spike")
	}
	if mc.SuccessRate > 0 && mc.SuccessRate < f.cfg.MinSuccessRate {
		f.log.Debug().Str("symbol", symbol).
			Float64("success_rate", mc.SuccessRate).
			Float64("min", f.cfg.MinSuccessRate).
			Msg("soft: rolling success rate below target")
	}

	return Verdict{Admit: true}
}

func (f *Filter) fail(symbol, reason string, value float64) Verdict {
	f.log.Info().Str("symbol", symbol).Str("reason", reason).
		Float64("value", value).Msg("quality gate reject")
	return Verdict{Admit: false, Reason: reason, Value: value}
}

// String renders a verdict for operator-facing surfaces.
func (v Verdict) String() string {
	if v.Admit {
		return "admit"
	}
	return fmt.Sprintf("reject:%s value=%.6g", v.Reason, v.Value)
}
