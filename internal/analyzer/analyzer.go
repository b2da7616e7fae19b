// Package analyzer turns two timeframes of candles into at most one
// trade candidate per invocation. Higher-timeframe EMA stacking picks
// the direction; the base timeframe must show a pullback into EMA20
// followed by a break of the prior candle's extreme.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pump-signal-bot/internal/indicators"
	"pump-signal-bot/internal/market"
	"pump-signal-bot/internal/state"
)

// Side of a candidate.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Rejection reasons, stable identifiers for logs and counters.
const (
	ReasonFetchFailed         = "fetch_failed"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoHTFTrend          = "no_htf_trend"
	ReasonATRBand             = "atr_band"
	ReasonVolume              = "volume"
	ReasonStructure           = "structure"
	ReasonSwingMissing        = "swing_missing"
)

// Rejection explains why a symbol produced no candidate.
type Rejection struct {
	Symbol string
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s rejected: %s", r.Symbol, r.Reason)
	}
	return fmt.Sprintf("%s rejected: %s (%s)", r.Symbol, r.Reason, r.Detail)
}

func reject(symbol, reason, format string, args ...any) *Rejection {
	return &Rejection{Symbol: symbol, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// SignalCandidate is a fully priced trade idea awaiting admission.
type SignalCandidate struct {
	Symbol    string
	Side      string
	Timeframe string
	HTF       string

	EntryLow  float64
	EntryHigh float64
	TP1       float64
	TP2       float64
	TP3       float64
	SL        float64

	Leverage  int
	Strategy  string
	CreatedAt time.Time
	ChartPath string

	// Context for the quality filter and the notification payload.
	RSI          float64
	RSIKnown     bool
	ATRPct       float64
	VolumeRatio  float64
	RiskReward   float64
	SwingHigh    float64
	HasSwingHigh bool
	SwingLow     float64
	HasSwingLow  bool
	TrendLabel   string

	Candles []market.Candle // base timeframe, for the chart renderer
	EMA20   []float64
	EMA50   []float64
}

// EntryMid is the midpoint of the entry range.
func (c *SignalCandidate) EntryMid() float64 {
	return (c.EntryLow + c.EntryHigh) / 2
}

// Config tunes the analyzer thresholds.
type Config struct {
	BaseTimeframe string
	HTFTimeframe  string
	Leverage      int
	Strategy      string

	FetchLimit      int // candles per timeframe
	MinCandles      int // usable candles required on each timeframe
	SwingLookback   int
	StarvationHours float64 // gap after which relaxed thresholds apply
	MinVolumeRatio  float64 // relaxed volume threshold during starvation windows
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		BaseTimeframe:   "15m",
		HTFTimeframe:    "1h",
		Leverage:        10,
		Strategy:        "pullback_break",
		FetchLimit:      150,
		MinCandles:      60,
		SwingLookback:   40,
		StarvationHours: 4,
		MinVolumeRatio:  1.2,
	}
}

// Analyzer evaluates symbols against the trend-pullback strategy.
type Analyzer struct {
	port    market.Port
	tracker *state.LastSignalTracker
	cfg     Config
	log     zerolog.Logger
}

// New creates an Analyzer.
func New(port market.Port, tracker *state.LastSignalTracker, cfg Config, log zerolog.Logger) *Analyzer {
	if cfg.MinVolumeRatio <= 0 {
		cfg.MinVolumeRatio = 1.2
	}
	return &Analyzer{
		port:    port,
		tracker: tracker,
		cfg:     cfg,
		log:     log.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze fetches both timeframes and either returns a candidate or a
// *Rejection error naming the failed gate. On emission the symbol's
// last-signal clock is reset, so relaxed thresholds only apply again
// after a fresh starvation window.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*SignalCandidate, error) {
	base, err := a.port.GetKlines(ctx, symbol, a.cfg.BaseTimeframe, a.cfg.FetchLimit)
	if err != nil {
		return nil, reject(symbol, ReasonFetchFailed, "base %s: %v", a.cfg.BaseTimeframe, err)
	}
	htf, err := a.port.GetKlines(ctx, symbol, a.cfg.HTFTimeframe, a.cfg.FetchLimit)
	if err != nil {
		return nil, reject(symbol, ReasonFetchFailed, "htf %s: %v", a.cfg.HTFTimeframe, err)
	}
	if len(base) < a.cfg.MinCandles || len(htf) < a.cfg.MinCandles {
		return nil, reject(symbol, ReasonInsufficientHistory, "base=%d htf=%d need=%d",
			len(base), len(htf), a.cfg.MinCandles)
	}

	htfClose := market.Closes(htf)
	ema20HTF, err := indicators.EMA(htfClose, 20)
	if err != nil {
		return nil, fmt.Errorf("htf ema20 %s: %w", symbol, err)
	}
	ema50HTF, _ := indicators.EMA(htfClose, 50)
	ema100HTF, _ := indicators.EMA(htfClose, 100)

	closeHTF := htfClose[len(htfClose)-1]
	e20 := ema20HTF[len(ema20HTF)-1]
	e50 := ema50HTF[len(ema50HTF)-1]
	e100 := ema100HTF[len(ema100HTF)-1]

	var trend string
	switch {
	case closeHTF > e20 && e20 > e50 && e50 > e100:
		trend = "UP"
	case closeHTF < e20 && e20 < e50 && e50 < e100:
		trend = "DOWN"
	default:
		return nil, reject(symbol, ReasonNoHTFTrend, "close=%.6f ema20=%.6f ema50=%.6f ema100=%.6f",
			closeHTF, e20, e50, e100)
	}

	closes := market.Closes(base)
	highs := market.Highs(base)
	lows := market.Lows(base)
	volumes := market.Volumes(base)

	ema20, err := indicators.EMA(closes, 20)
	if err != nil {
		return nil, fmt.Errorf("base ema20 %s: %w", symbol, err)
	}
	ema50, _ := indicators.EMA(closes, 50)
	atrVals, err := indicators.ATR(highs, lows, closes, 14)
	if err != nil {
		return nil, fmt.Errorf("base atr %s: %w", symbol, err)
	}
	if len(atrVals) < 100 {
		return nil, reject(symbol, ReasonInsufficientHistory, "atr values=%d need=100", len(atrVals))
	}

	atrNow := atrVals[len(atrVals)-1]
	atrMean := indicators.RollingMean(atrVals, 100)

	// Relax the bands only for symbols that have signalled before and
	// then gone quiet past the starvation window.
	hoursGap, known := a.tracker.HoursSinceLast(symbol)
	adaptive := known && hoursGap > a.cfg.StarvationHours

	atrMinFactor, atrMaxFactor := 0.6, 1.8
	volThreshold := 1.5
	if adaptive {
		atrMinFactor, atrMaxFactor = 0.5, 2.0
		volThreshold = a.cfg.MinVolumeRatio
	}

	if atrNow < atrMinFactor*atrMean || atrNow > atrMaxFactor*atrMean {
		return nil, reject(symbol, ReasonATRBand, "now=%.6f mean=%.6f adaptive=%t",
			atrNow, atrMean, adaptive)
	}

	volMA := indicators.RollingMean(volumes, 20)
	volNow := volumes[len(volumes)-1]
	volRatio := 0.0
	if volMA > 0 {
		volRatio = volNow / volMA
	}
	if volRatio < volThreshold {
		return nil, reject(symbol, ReasonVolume, "ratio=%.2f need>=%.2f", volRatio, volThreshold)
	}

	swing, err := indicators.FindLastSwing(highs, lows, a.cfg.SwingLookback)
	if err != nil {
		return nil, fmt.Errorf("swing %s: %w", symbol, err)
	}

	n := len(closes)
	closeNow := closes[n-1]
	prevHigh := highs[n-2]
	prevLow := lows[n-2]
	ema20Now := ema20[len(ema20)-1]

	rsiVal, rsiOK := indicators.RSI(closes, 14)

	var side string
	var sl float64
	switch trend {
	case "UP":
		pulledBack := minOf(closes[n-3:]) <= ema20Now || minOf(lows[n-3:]) <= ema20Now
		if closeNow > ema20Now && closeNow >= prevHigh && pulledBack {
			side = SideLong
			anchor := closeNow - 1.5*atrNow
			if swing.HasLow {
				anchor = swing.Low
			}
			sl = anchor - 0.25*atrNow
		}
	case "DOWN":
		pulledBack := maxOf(closes[n-3:]) >= ema20Now || maxOf(highs[n-3:]) >= ema20Now
		if closeNow < ema20Now && closeNow <= prevLow && pulledBack {
			side = SideShort
			anchor := closeNow + 1.5*atrNow
			if swing.HasHigh {
				anchor = swing.High
			}
			sl = anchor + 0.25*atrNow
		}
	}
	if side == "" {
		return nil, reject(symbol, ReasonStructure, "trend=%s close=%.6f ema20=%.6f", trend, closeNow, ema20Now)
	}

	entryMid := closeNow
	var risk, tp1, tp2, tp3 float64
	if side == SideLong {
		risk = entryMid - sl
		tp1 = entryMid + 1.5*risk
		tp2 = entryMid + 2.5*risk
		tp3 = entryMid + 3.5*risk
	} else {
		risk = sl - entryMid
		tp1 = entryMid - 1.5*risk
		tp2 = entryMid - 2.5*risk
		tp3 = entryMid - 3.5*risk
	}
	if risk <= 0 {
		return nil, reject(symbol, ReasonSwingMissing, "non-positive risk %.6f (sl=%.6f)", risk, sl)
	}

	riskReward := 0.0
	if risk != 0 {
		riskReward = abs((tp1 - entryMid) / risk)
	}

	cand := &SignalCandidate{
		Symbol:       symbol,
		Side:         side,
		Timeframe:    a.cfg.BaseTimeframe,
		HTF:          a.cfg.HTFTimeframe,
		EntryLow:     entryMid - 0.25*atrNow,
		EntryHigh:    entryMid + 0.25*atrNow,
		TP1:          tp1,
		TP2:          tp2,
		TP3:          tp3,
		SL:           sl,
		Leverage:     a.cfg.Leverage,
		Strategy:     a.cfg.Strategy,
		CreatedAt:    time.Now().UTC(),
		RSI:          rsiVal,
		RSIKnown:     rsiOK,
		ATRPct:       atrNow / closeNow,
		VolumeRatio:  volRatio,
		RiskReward:   riskReward,
		SwingHigh:    swing.High,
		HasSwingHigh: swing.HasHigh,
		SwingLow:     swing.Low,
		HasSwingLow:  swing.HasLow,
		TrendLabel:   trendLabel(trend, a.cfg.HTFTimeframe),
		Candles:      base,
		EMA20:        ema20,
		EMA50:        ema50,
	}

	a.tracker.Record(symbol, cand.CreatedAt)

	a.log.Info().Str("symbol", symbol).Str("side", side).
		Float64("entry", entryMid).Float64("sl", sl).Float64("tp1", tp1).
		Float64("vol_ratio", volRatio).Bool("adaptive", adaptive).
		Msg("candidate produced")
	return cand, nil
}

func trendLabel(trend, htf string) string {
	switch trend {
	case "UP":
		return fmt.Sprintf("HTF %s Uptrend", htf)
	case "DOWN":
		return fmt.Sprintf("HTF %s Downtrend", htf)
	}
	return fmt.Sprintf("HTF %s Sideways", htf)
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
