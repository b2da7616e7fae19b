package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTradeExists is returned when a symbol already has a non-closed trade.
var ErrTradeExists = errors.New("symbol already has an open trade")

const timeLayout = time.RFC3339

// SaveSignal inserts an admitted signal and returns its row id.
func (db *DB) SaveSignal(ctx context.Context, row SignalRow) (int64, error) {
	res, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO signals (symbol, price, volume, score, rsi, macd, macd_sig, volume_spike, ts_utc)
		VALUES (:symbol, :price, :volume, :score, :rsi, :macd, :macd_sig, :volume_spike, :ts_utc)`,
		row)
	if err != nil {
		return 0, fmt.Errorf("insert signal %s: %w", row.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("signal insert id: %w", err)
	}
	return id, nil
}

// LastSignals returns the most recent signals, newest first.
func (db *DB) LastSignals(ctx context.Context, limit int) ([]SignalRow, error) {
	var rows []SignalRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select last signals: %w", err)
	}
	return rows, nil
}

// SignalsSince counts signals created at or after the given time.
func (db *DB) SignalsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM signals WHERE ts_utc >= ?`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("count signals since: %w", err)
	}
	return n, nil
}

// OpenTrade inserts a new OPEN trade. It fails with ErrTradeExists when
// the symbol already carries a trade that has not closed.
func (db *DB) OpenTrade(ctx context.Context, row TradeRow) (int64, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM trades WHERE symbol = ? AND status != ?`,
		row.Symbol, TradeStatusClosed)
	if err != nil {
		return 0, fmt.Errorf("check open trades for %s: %w", row.Symbol, err)
	}
	if n > 0 {
		return 0, ErrTradeExists
	}

	row.Status = TradeStatusOpen
	res, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO trades (symbol, side, entry, size, qty,
			tp1, tp2, sl, filled_tp1_qty, status, opened_at, pnl_usd, pnl_pct, last_price)
		VALUES (:symbol, :side, :entry, :size, :qty,
			:tp1, :tp2, :sl, 0, :status, :opened_at, 0, 0, :entry)`,
		row)
	if err != nil {
		return 0, fmt.Errorf("insert trade %s: %w", row.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trade insert id: %w", err)
	}
	return id, nil
}

// ActiveTrade returns the symbol's non-closed trade, ok=false when none.
func (db *DB) ActiveTrade(ctx context.Context, symbol string) (TradeRow, bool, error) {
	var row TradeRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT * FROM trades WHERE symbol = ? AND status != ? ORDER BY id DESC LIMIT 1`,
		symbol, TradeStatusClosed)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRow{}, false, nil
	}
	if err != nil {
		return TradeRow{}, false, fmt.Errorf("select active trade %s: %w", symbol, err)
	}
	return row, true, nil
}

// ActiveTrades returns every non-closed trade, oldest first. Used on
// startup to rebuild the simulator's in-memory book.
func (db *DB) ActiveTrades(ctx context.Context) ([]TradeRow, error) {
	var rows []TradeRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM trades WHERE status != ? ORDER BY id ASC`, TradeStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("select active trades: %w", err)
	}
	return rows, nil
}

// MarkPartial accumulates the TP1 fill. qty stays the original total so
// the final close can split the legs; status flips to PARTIAL, or
// straight to CLOSED if the fill consumed the whole position.
func (db *DB) MarkPartial(ctx context.Context, id int64, qtyDelta, lastPrice float64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE trades SET filled_tp1_qty = filled_tp1_qty + ?,
			status = CASE WHEN filled_tp1_qty + ? >= qty THEN ? ELSE ? END,
			last_price = ?, last_update = ?
		WHERE id = ?`,
		qtyDelta, qtyDelta, TradeStatusClosed, TradeStatusPartial,
		lastPrice, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark trade %d partial: %w", id, err)
	}
	return nil
}

// CloseTrade finalizes a trade with its realized result.
func (db *DB) CloseTrade(ctx context.Context, id int64, reason string, lastPrice, pnlUSD, pnlPct float64, at time.Time) error {
	stamp := at.UTC().Format(timeLayout)
	_, err := db.conn.ExecContext(ctx, `
		UPDATE trades SET status = ?, close_reason = ?, last_price = ?,
			pnl_usd = ?, pnl_pct = ?, closed_at = ?, last_update = ?
		WHERE id = ?`,
		TradeStatusClosed, reason, lastPrice, pnlUSD, pnlPct, stamp, stamp, id)
	if err != nil {
		return fmt.Errorf("close trade %d: %w", id, err)
	}
	return nil
}

// TouchTrade updates the mark price on an active trade.
func (db *DB) TouchTrade(ctx context.Context, id int64, lastPrice float64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE trades SET last_price = ?, last_update = ? WHERE id = ?`,
		lastPrice, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("touch trade %d: %w", id, err)
	}
	return nil
}

// RecentTrades returns the latest trades regardless of status, newest first.
func (db *DB) RecentTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	var rows []TradeRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent trades: %w", err)
	}
	return rows, nil
}

// ClosedSince returns trades closed at or after the given time.
func (db *DB) ClosedSince(ctx context.Context, since time.Time) ([]TradeRow, error) {
	var rows []TradeRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM trades WHERE status = ? AND closed_at >= ? ORDER BY closed_at ASC`,
		TradeStatusClosed, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("select closed trades since: %w", err)
	}
	return rows, nil
}

// RecentClosedPnL returns the realized pnl of the last closed trades,
// newest first. Feeds the rolling success-rate soft check.
func (db *DB) RecentClosedPnL(ctx context.Context, limit int) ([]float64, error) {
	var pnls []float64
	err := db.conn.SelectContext(ctx, &pnls,
		`SELECT pnl_usd FROM trades WHERE status = ? ORDER BY id DESC LIMIT ?`,
		TradeStatusClosed, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent closed pnl: %w", err)
	}
	return pnls, nil
}

// SuccessRate is the win percentage over the last limit closed trades,
// 0 when none have closed.
func (db *DB) SuccessRate(ctx context.Context, limit int) (float64, error) {
	pnls, err := db.RecentClosedPnL(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(pnls) == 0 {
		return 0, nil
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls)) * 100, nil
}

// Summary aggregates all closed trades.
func (db *DB) Summary(ctx context.Context) (PnLSummary, error) {
	var s PnLSummary
	err := db.conn.GetContext(ctx, &s, `
		SELECT COUNT(*) AS total_trades,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(CASE WHEN pnl_usd <= 0 THEN 1 ELSE 0 END), 0) AS losses,
			COALESCE(SUM(pnl_usd), 0) AS total_pnl_usd,
			COALESCE(MAX(pnl_usd), 0) AS best_pnl_usd,
			COALESCE(MIN(pnl_usd), 0) AS worst_pnl_usd
		FROM trades WHERE status = ?`, TradeStatusClosed)
	if err != nil {
		return PnLSummary{}, fmt.Errorf("pnl summary: %w", err)
	}
	return s, nil
}
