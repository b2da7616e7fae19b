package market

import (
	"context"
	"time"
)

// Candle is one OHLCV bar. OpenTime is UTC; series returned by the port
// are ordered oldest first, most recent last.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// SymbolInfo describes one tradable pair as reported by the exchange.
type SymbolInfo struct {
	Symbol string
	Status string
}

// Port is the market-data contract the rest of the engine depends on.
// Implementations must honor the context deadline on every call.
type Port interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetExchangeInfo(ctx context.Context) ([]SymbolInfo, error)
	GetServerTime(ctx context.Context) (int64, error)
}

// TickHandler receives last-price updates from the ticker stream.
type TickHandler func(symbol string, lastPrice float64)

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high series from a candle slice.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low series from a candle slice.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Opens extracts the open series from a candle slice.
func Opens(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Open
	}
	return out
}

// Volumes extracts the volume series from a candle slice.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
