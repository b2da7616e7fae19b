package database

import "database/sql"

// Trade status values. A symbol has at most one trade outside CLOSED.
const (
	TradeStatusOpen    = "OPEN"
	TradeStatusPartial = "PARTIAL"
	TradeStatusClosed  = "CLOSED"
)

// SignalRow is the persisted form of an admitted signal. Score carries
// the risk/reward ratio; volume_spike the volume ratio against its
// 20-bar mean. MACD columns stay nullable for strategies that fill them.
type SignalRow struct {
	ID          int64           `db:"id"`
	Symbol      string          `db:"symbol"`
	Price       float64         `db:"price"`
	Volume      float64         `db:"volume"`
	Score       float64         `db:"score"`
	RSI         sql.NullFloat64 `db:"rsi"`
	MACD        sql.NullFloat64 `db:"macd"`
	MACDSig     sql.NullFloat64 `db:"macd_sig"`
	VolumeSpike sql.NullFloat64 `db:"volume_spike"`
	TsUTC       string          `db:"ts_utc"`
}

// TradeRow is one simulated position. Qty keeps the original total
// quantity for the whole trade life; FilledTP1Qty accumulates the TP1
// partial fill.
type TradeRow struct {
	ID           int64           `db:"id"`
	Symbol       string          `db:"symbol"`
	Side         string          `db:"side"`
	Entry        float64         `db:"entry"`
	Size         float64         `db:"size"`
	Qty          float64         `db:"qty"`
	TP1          float64         `db:"tp1"`
	TP2          float64         `db:"tp2"`
	SL           float64         `db:"sl"`
	FilledTP1Qty float64         `db:"filled_tp1_qty"`
	Status       string          `db:"status"`
	OpenedAt     string          `db:"opened_at"`
	ClosedAt     sql.NullString  `db:"closed_at"`
	CloseReason  sql.NullString  `db:"close_reason"`
	PnLUSD       float64         `db:"pnl_usd"`
	PnLPct       float64         `db:"pnl_pct"`
	LastPrice    sql.NullFloat64 `db:"last_price"`
	LastUpdate   sql.NullString  `db:"last_update"`
}

// PnLSummary aggregates closed-trade performance.
type PnLSummary struct {
	TotalTrades int     `db:"total_trades"`
	Wins        int     `db:"wins"`
	Losses      int     `db:"losses"`
	TotalPnLUSD float64 `db:"total_pnl_usd"`
	BestPnLUSD  float64 `db:"best_pnl_usd"`
	WorstPnLUSD float64 `db:"worst_pnl_usd"`
}

// WinRate returns wins over closed trades as a percentage, 0 when no
// trades have closed.
func (s PnLSummary) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades) * 100
}
