// Package sim is the paper-trade engine. Positions are sized off a
// fixed risk fraction of equity, half-closed at TP1 and finished at
// TP2 or the stop; with break-even promotion enabled the runner leg of
// a stopped-out trade exits at entry once TP1 has filled.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pump-signal-bot/internal/analyzer"
	"pump-signal-bot/internal/database"
)

// Close reasons recorded on the trade row.
const (
	ReasonTP2 = "TP2"
	ReasonSL  = "SL"
)

// TextNotifier is the slice of the notification layer the engine needs.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// Config tunes position sizing and exit behavior.
type Config struct {
	EquityUSD   float64
	RiskPct     float64 // percent of equity risked per trade
	TP1RatioQty float64 // fraction of qty closed at TP1, (0,1]
	FeeBps      float64 // per-leg fee on notional
	BEOnTP1     bool    // stop moves to entry after TP1 fills
	Notify      bool
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		EquityUSD:   10000,
		RiskPct:     1.0,
		TP1RatioQty: 0.5,
		FeeBps:      8.0,
		BEOnTP1:     true,
		Notify:      true,
	}
}

// Engine advances simulated trades on price ticks.
type Engine struct {
	cfg      Config
	db       *database.DB
	notifier TextNotifier
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-symbol, open vs tick serialization
}

// New creates an Engine. notifier may be nil.
func New(cfg Config, db *database.DB, notifier TextNotifier, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		db:       db,
		notifier: notifier,
		log:      log.With().Str("component", "sim").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.locks[symbol] = l
	}
	return l
}

func (e *Engine) fee(notionalUSD float64) float64 {
	return e.cfg.FeeBps / 10000.0 * notionalUSD
}

func (e *Engine) notify(ctx context.Context, text string) {
	if !e.cfg.Notify || e.notifier == nil {
		return
	}
	if err := e.notifier.SendText(ctx, text); err != nil {
		e.log.Warn().Err(err).Msg("trade notification failed")
	}
}

// OnSignalOpen opens a simulated position for an admitted candidate.
// The symbol must not already carry a non-closed trade.
func (e *Engine) OnSignalOpen(ctx context.Context, cand *analyzer.SignalCandidate) error {
	lock := e.symbolLock(cand.Symbol)
	lock.Lock()
	defer lock.Unlock()

	entry := cand.EntryMid()
	stopDist := entry - cand.SL
	if stopDist < 0 {
		stopDist = -stopDist
	}
	if stopDist <= 0 {
		e.log.Warn().Str("symbol", cand.Symbol).Msg("zero stop distance, not opening")
		return fmt.Errorf("zero stop distance for %s", cand.Symbol)
	}

	riskUSD := e.cfg.EquityUSD * e.cfg.RiskPct / 100.0
	qty := riskUSD / stopDist
	if qty <= 0 {
		return fmt.Errorf("non-positive qty for %s", cand.Symbol)
	}

	id, err := e.db.OpenTrade(ctx, database.TradeRow{
		Symbol:   cand.Symbol,
		Side:     cand.Side,
		Entry:    entry,
		Size:     qty * entry,
		Qty:      qty,
		TP1:      cand.TP1,
		TP2:      cand.TP2,
		SL:       cand.SL,
		OpenedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if errors.Is(err, database.ErrTradeExists) {
		e.log.Info().Str("symbol", cand.Symbol).Msg("symbol already has an open trade")
		return err
	}
	if err != nil {
		return fmt.Errorf("open trade %s: %w", cand.Symbol, err)
	}

	e.log.Info().Int64("trade_id", id).Str("symbol", cand.Symbol).
		Str("side", cand.Side).Float64("entry", entry).Float64("qty", qty).
		Msg("simulated position opened")
	e.notify(ctx, fmt.Sprintf("🟢 %s OPEN %s\nEntry: %.6g  SL: %.6g  TP1: %.6g  TP2: %.6g",
		cand.Side, cand.Symbol, entry, cand.SL, cand.TP1, cand.TP2))
	return nil
}

// OnTick advances the symbol's open trade, if any. TP2 and SL finalize;
// a TP1 touch closes the configured fraction once.
func (e *Engine) OnTick(ctx context.Context, symbol string, lastPrice float64) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	trade, ok, err := e.db.ActiveTrade(ctx, symbol)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("tick: loading trade failed")
		return
	}
	if !ok {
		return
	}

	long := trade.Side == analyzer.SideLong

	hitTP2 := (long && lastPrice >= trade.TP2) || (!long && lastPrice <= trade.TP2)
	hitSL := (long && lastPrice <= trade.SL) || (!long && lastPrice >= trade.SL)
	hitTP1 := (long && lastPrice >= trade.TP1) || (!long && lastPrice <= trade.TP1)

	switch {
	case hitTP2:
		e.finalClose(ctx, trade, trade.TP2, ReasonTP2)
	case hitSL:
		e.finalClose(ctx, trade, trade.SL, ReasonSL)
	case hitTP1 && trade.FilledTP1Qty < trade.Qty*e.cfg.TP1RatioQty:
		e.partialClose(ctx, trade, lastPrice)
	default:
		if err := e.db.TouchTrade(ctx, trade.ID, lastPrice, time.Now()); err != nil {
			e.log.Warn().Err(err).Int64("trade_id", trade.ID).Msg("tick: mark update failed")
		}
	}
}

func (e *Engine) partialClose(ctx context.Context, trade database.TradeRow, lastPrice float64) {
	closeQty := trade.Qty*e.cfg.TP1RatioQty - trade.FilledTP1Qty
	if closeQty <= 0 {
		return
	}

	var realized float64
	if trade.Side == analyzer.SideLong {
		realized = (trade.TP1 - trade.Entry) * closeQty
	} else {
		realized = (trade.Entry - trade.TP1) * closeQty
	}
	realized -= e.fee(trade.Entry*closeQty) + e.fee(trade.TP1*closeQty)

	if err := e.db.MarkPartial(ctx, trade.ID, closeQty, lastPrice, time.Now()); err != nil {
		e.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("partial close persist failed")
		return
	}

	e.log.Info().Int64("trade_id", trade.ID).Str("symbol", trade.Symbol).
		Float64("close_qty", closeQty).Float64("realized_usd", realized).
		Msg("TP1 partial fill")
	e.notify(ctx, fmt.Sprintf("✅ TP1 HIT %s %s  +$%.2f", trade.Side, trade.Symbol, realized))
}

func (e *Engine) finalClose(ctx context.Context, trade database.TradeRow, exitPrice float64, reason string) {
	totalPnL := e.computeTotalPnL(trade, exitPrice, reason)

	pnlPct := 0.0
	if trade.Size != 0 {
		pnlPct = totalPnL / trade.Size * 100
	}

	if err := e.db.CloseTrade(ctx, trade.ID, reason, exitPrice, totalPnL, pnlPct, time.Now()); err != nil {
		e.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("final close persist failed")
		return
	}

	e.log.Info().Int64("trade_id", trade.ID).Str("symbol", trade.Symbol).
		Str("reason", reason).Float64("exit", exitPrice).
		Float64("pnl_usd", totalPnL).Float64("pnl_pct", pnlPct).
		Msg("position closed")
	e.notify(ctx, fmt.Sprintf("💰 %s %s | Exit: %.6g | PnL $%.2f (%.2f%%)",
		trade.Symbol, reason, exitPrice, totalPnL, pnlPct))
}

// computeTotalPnL recomputes both legs from the trade row so the total
// is deterministic regardless of how many partial notifications fired.
// With break-even promotion, a stop-out after TP1 exits the runner leg
// at entry instead of the stop.
func (e *Engine) computeTotalPnL(trade database.TradeRow, finalExit float64, reason string) float64 {
	q1 := trade.FilledTP1Qty
	if q1 > trade.Qty {
		q1 = trade.Qty
	}
	q2 := trade.Qty - q1
	if q2 < 0 {
		q2 = 0
	}

	long := trade.Side == analyzer.SideLong
	pnl := 0.0

	if q1 > 0 {
		if long {
			pnl += (trade.TP1 - trade.Entry) * q1
		} else {
			pnl += (trade.Entry - trade.TP1) * q1
		}
		pnl -= e.fee(trade.Entry*q1) + e.fee(trade.TP1*q1)
	}

	exit := finalExit
	if e.cfg.BEOnTP1 && q1 > 0 && reason == ReasonSL {
		exit = trade.Entry
	}

	if q2 > 0 {
		if long {
			pnl += (exit - trade.Entry) * q2
		} else {
			pnl += (trade.Entry - exit) * q2
		}
		pnl -= e.fee(trade.Entry*q2) + e.fee(exit*q2)
	}

	return pnl
}
