package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BinanceConfig holds the adapter settings.
type BinanceConfig struct {
	APIKey       string
	SecretKey    string
	FetchTimeout time.Duration
	// RequestsPerSecond caps outgoing REST calls; Binance weight limits
	// allow far more, this keeps a misconfigured universe from burning
	// the budget. 0 means a default of 10 rps.
	RequestsPerSecond float64
}

// BinanceAdapter implements Port against the Binance spot REST API.
type BinanceAdapter struct {
	client  *binance.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
}

// NewBinanceAdapter creates a Binance-backed market data port. Kline
// fetches go through a circuit breaker so a flapping endpoint sheds
// load instead of stalling every scan worker.
func NewBinanceAdapter(cfg BinanceConfig, log zerolog.Logger) *BinanceAdapter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance-klines",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &BinanceAdapter{
		client:  binance.NewClient(cfg.APIKey, cfg.SecretKey),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: breaker,
		timeout: timeout,
		log:     log.With().Str("component", "market").Logger(),
	}
}

// GetKlines fetches up to `limit` closed candles for symbol/interval,
// most recent last.
func (a *BinanceAdapter) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.breaker.Execute(func() (interface{}, error) {
		return a.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	klines := raw.([]*binance.Kline)
	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseKline(k)
		if err != nil {
			a.log.Debug().Str("symbol", symbol).Err(err).Msg("skipping malformed kline")
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// GetExchangeInfo lists the pairs the exchange reports, with status.
func (a *BinanceAdapter) GetExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	out := make([]SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, SymbolInfo{Symbol: s.Symbol, Status: s.Status})
	}
	return out, nil
}

// GetServerTime returns the exchange clock in unix milliseconds.
func (a *BinanceAdapter) GetServerTime(ctx context.Context) (int64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ts, err := a.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("server time: %w", err)
	}
	return ts, nil
}

func parseKline(k *binance.Kline) (Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("low: %w", err)
	}
	closeP, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("close: %w", err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("volume: %w", err)
	}

	return Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closeP,
		Volume:   vol,
	}, nil
}
