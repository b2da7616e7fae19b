// Package coordinator chains the admission pipeline: analyze, render
// the mandatory chart, run the quality gate, apply the throttle, then
// persist, append to the daily CSV, notify and open the simulated
// trade. The post-admission steps are best-effort and independent; a
// downstream failure never rolls back an admitted signal.
package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pump-signal-bot/internal/analyzer"
	"pump-signal-bot/internal/chart"
	"pump-signal-bot/internal/database"
	"pump-signal-bot/internal/filter"
	"pump-signal-bot/internal/notification"
)

// Rejection reasons added by the coordinator itself.
const (
	ReasonChartFailed = "chart_failed"
	ReasonThrottle    = "throttle"
)

// Analyzer produces candidates.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*analyzer.SignalCandidate, error)
}

// ChartRenderer renders the mandatory artifact.
type ChartRenderer interface {
	Render(in chart.Input) (string, error)
}

// Throttle gates repeat admissions.
type Throttle interface {
	Allow(symbol string, cooldown time.Duration) bool
}

// Trader opens simulated positions for admitted signals.
type Trader interface {
	OnSignalOpen(ctx context.Context, cand *analyzer.SignalCandidate) error
}

// Notifier delivers the signal payload.
type Notifier interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photoPath, caption string) error
}

// Config tunes the coordinator.
type Config struct {
	ThrottleCooldown     time.Duration
	VolumeSpikeThreshold float64 // volume ratio counting as a spike
	SuccessRateWindow    int     // closed trades in the rolling win rate
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		ThrottleCooldown:     5 * time.Minute,
		VolumeSpikeThreshold: 1.2,
		SuccessRateWindow:    30,
	}
}

// Coordinator owns every externally observable effect of a scan.
type Coordinator struct {
	cfg      Config
	analyzer Analyzer
	charts   ChartRenderer
	gate     *filter.Filter
	throttle Throttle
	db       *database.DB
	csv      *CSVAppender
	notifier Notifier
	trader   Trader
	health   *Health
	log      zerolog.Logger
}

// New wires the pipeline. notifier and trader may be nil in tests.
func New(cfg Config, an Analyzer, charts ChartRenderer, gate *filter.Filter,
	throttle Throttle, db *database.DB, csv *CSVAppender,
	notifier Notifier, trader Trader, health *Health, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		analyzer: an,
		charts:   charts,
		gate:     gate,
		throttle: throttle,
		db:       db,
		csv:      csv,
		notifier: notifier,
		trader:   trader,
		health:   health,
		log:      log.With().Str("component", "coordinator").Logger(),
	}
}

// Process runs the full admission chain for one symbol. Errors never
// escape; outcomes land in logs and health counters.
func (c *Coordinator) Process(ctx context.Context, symbol string) {
	c.health.scanStarted()

	cand, err := c.analyzer.Analyze(ctx, symbol)
	if err != nil {
		var rej *analyzer.Rejection
		if errors.As(err, &rej) {
			c.health.rejected(rej.Reason)
			c.log.Debug().Str("symbol", symbol).Str("reason", rej.Reason).
				Str("detail", rej.Detail).Msg("analysis reject")
			return
		}
		c.health.rejected(analyzer.ReasonFetchFailed)
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("analysis failed")
		return
	}
	c.health.candidateSeen()

	// Mandatory artifact: no chart, no signal.
	chartPath, err := c.charts.Render(chart.Input{
		Symbol:  cand.Symbol,
		Side:    cand.Side,
		Candles: cand.Candles,
		EMA20:   cand.EMA20,
		EMA50:   cand.EMA50,
		Entry:   cand.EntryMid(),
		TP1:     cand.TP1,
		TP2:     cand.TP2,
		SL:      cand.SL,
	})
	if err != nil {
		c.health.rejected(ReasonChartFailed)
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("chart render failed, signal dropped")
		return
	}
	cand.ChartPath = chartPath

	successRate, err := c.db.SuccessRate(ctx, c.cfg.SuccessRateWindow)
	if err != nil {
		c.log.Warn().Err(err).Msg("success rate lookup failed")
	}

	mid := cand.EntryMid()
	verdict := c.gate.Check(symbol, filter.MarketContext{
		Price:       mid,
		RSI:         cand.RSI,
		RSIKnown:    cand.RSIKnown,
		ATRValue:    cand.ATRPct * mid,
		RiskReward:  cand.RiskReward,
		TrendOK:     true,
		VolumeSpike: cand.VolumeRatio >= c.cfg.VolumeSpikeThreshold,
		SuccessRate: successRate,
		ChartPath:   cand.ChartPath,
	})
	if !verdict.Admit {
		c.health.rejected(verdict.Reason)
		return
	}

	if !c.throttle.Allow(symbol, c.cfg.ThrottleCooldown) {
		c.health.rejected(ReasonThrottle)
		return
	}

	c.health.admittedSignal()
	c.log.Info().Str("symbol", symbol).Str("side", cand.Side).
		Str("chart", cand.ChartPath).Msg("signal admitted")

	c.persist(ctx, cand, mid)
	c.appendCSV(cand, mid)
	c.notify(ctx, cand, successRate)
	c.openTrade(ctx, cand)
}

func (c *Coordinator) persist(ctx context.Context, cand *analyzer.SignalCandidate, mid float64) {
	row := database.SignalRow{
		Symbol: cand.Symbol,
		Price:  mid,
		Score:  cand.RiskReward,
		VolumeSpike: sql.NullFloat64{
			Float64: cand.VolumeRatio,
			Valid:   true,
		},
		TsUTC: cand.CreatedAt.Format(time.RFC3339),
	}
	if cand.RSIKnown {
		row.RSI = sql.NullFloat64{Float64: cand.RSI, Valid: true}
	}
	if _, err := c.db.SaveSignal(ctx, row); err != nil {
		c.log.Error().Err(err).Str("symbol", cand.Symbol).Msg("signal persist failed")
	}
}

func (c *Coordinator) appendCSV(cand *analyzer.SignalCandidate, mid float64) {
	if c.csv == nil {
		return
	}
	err := c.csv.Append(cand.CreatedAt.Format(time.RFC3339), cand.Symbol,
		mid, cand.RiskReward, cand.TrendLabel, cand.TP1, cand.TP2, cand.SL)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", cand.Symbol).Msg("daily csv append failed")
	}
}

func (c *Coordinator) notify(ctx context.Context, cand *analyzer.SignalCandidate, successRate float64) {
	if c.notifier == nil {
		return
	}
	caption := notification.FormatSignalMessage(cand, successRate)
	if err := c.notifier.SendPhoto(ctx, cand.ChartPath, caption); err != nil {
		c.log.Warn().Err(err).Str("symbol", cand.Symbol).Msg("signal notification failed")
	}
}

func (c *Coordinator) openTrade(ctx context.Context, cand *analyzer.SignalCandidate) {
	if c.trader == nil {
		return
	}
	if err := c.trader.OnSignalOpen(ctx, cand); err != nil {
		c.log.Warn().Err(err).Str("symbol", cand.Symbol).Msg("simulated open failed")
	}
}
