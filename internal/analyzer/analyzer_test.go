package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-signal-bot/internal/market"
	"pump-signal-bot/internal/state"
)

// stubPort serves canned candles per interval.
type stubPort struct {
	byInterval map[string][]market.Candle
	err        error
}

var _ market.Port = (*stubPort)(nil)

func (s *stubPort) GetKlines(_ context.Context, _, interval string, _ int) ([]market.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byInterval[interval], nil
}

func (s *stubPort) GetExchangeInfo(context.Context) ([]market.SymbolInfo, error) { return nil, nil }
func (s *stubPort) GetServerTime(context.Context) (int64, error)                 { return 0, nil }

func flatCandles(n int, close, spread, volume float64) []market.Candle {
	out := make([]market.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:     close, High: close + spread, Low: close - spread,
			Close: close, Volume: volume,
		}
	}
	return out
}

// risingCandles produces a steadily climbing series so the EMAs stack
// into a clean uptrend.
func risingCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 100,
		}
	}
	return out
}

// breakoutBase is a flat base series ending in a pullback under EMA20
// followed by a breakout candle with a volume spike.
func breakoutBase(lastVolume float64) []market.Candle {
	candles := flatCandles(150, 100, 1, 100)

	candles[147].Close = 99.5
	candles[147].High = 100.5
	candles[147].Low = 99

	candles[148].Close = 100.2
	candles[148].High = 100.6
	candles[148].Low = 99.8

	candles[149].Close = 101.2
	candles[149].High = 101.4
	candles[149].Low = 100.1
	candles[149].Volume = lastVolume

	return candles
}

func newTestAnalyzer(port market.Port, tracker *state.LastSignalTracker) *Analyzer {
	return New(port, tracker, DefaultConfig(), zerolog.Nop())
}

func TestAnalyze_LongAdmission(t *testing.T) {
	port := &stubPort{byInterval: map[string][]market.Candle{
		"15m": breakoutBase(200),
		"1h":  risingCandles(150),
	}}
	tracker := state.NewLastSignalTracker()
	a := newTestAnalyzer(port, tracker)

	cand, err := a.Analyze(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, cand)

	assert.Equal(t, SideLong, cand.Side)
	assert.Equal(t, "BTCUSDT", cand.Symbol)

	// SL below entry, targets stacked above at 1.5/2.5/3.5 R.
	mid := cand.EntryMid()
	assert.Less(t, cand.SL, mid)
	assert.Greater(t, cand.TP1, mid)
	assert.Greater(t, cand.TP2, cand.TP1)
	assert.Greater(t, cand.TP3, cand.TP2)
	risk := mid - cand.SL
	assert.InDelta(t, mid+1.5*risk, cand.TP1, 1e-9)
	assert.InDelta(t, mid+2.5*risk, cand.TP2, 1e-9)
	assert.InDelta(t, mid+3.5*risk, cand.TP3, 1e-9)
	assert.InDelta(t, 1.5, cand.RiskReward, 1e-9)

	// Entry range straddles the close symmetrically.
	assert.InDelta(t, 101.2, mid, 1e-9)
	assert.Greater(t, cand.VolumeRatio, 1.5)

	// Emission stamps the last-signal clock.
	h, ok := tracker.HoursSinceLast("BTCUSDT")
	require.True(t, ok)
	assert.Less(t, h, 0.1)
}

func TestAnalyze_SidewaysHTFRejects(t *testing.T) {
	port := &stubPort{byInterval: map[string][]market.Candle{
		"15m": breakoutBase(200),
		"1h":  flatCandles(150, 100, 1, 100),
	}}
	a := newTestAnalyzer(port, state.NewLastSignalTracker())

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonNoHTFTrend, rej.Reason)
}

func TestAnalyze_AdaptiveVolumeThreshold(t *testing.T) {
	// Volume ratio lands between the relaxed (1.2) and strict (1.5)
	// thresholds: (19*100+140)/20 = 102, ratio = 140/102 ~ 1.37.
	mk := func() *stubPort {
		return &stubPort{byInterval: map[string][]market.Candle{
			"15m": breakoutBase(140),
			"1h":  risingCandles(150),
		}}
	}

	// Never-signalled symbol gets strict thresholds and is rejected.
	strict := newTestAnalyzer(mk(), state.NewLastSignalTracker())
	_, err := strict.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonVolume, rej.Reason)

	// The same symbol five hours after its last signal is relaxed.
	tracker := state.NewLastSignalTracker()
	tracker.Record("BTCUSDT", time.Now().Add(-5*time.Hour))
	relaxed := newTestAnalyzer(mk(), tracker)
	cand, err := relaxed.Analyze(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SideLong, cand.Side)

	// Emission resets the starvation clock.
	h, ok := tracker.HoursSinceLast("BTCUSDT")
	require.True(t, ok)
	assert.Less(t, h, 0.1)
}

func TestAnalyze_ConfiguredRelaxedVolumeRatio(t *testing.T) {
	// Same 1.37 ratio as above, but the relaxed threshold is raised
	// past it, so even a starved symbol is rejected on volume.
	port := &stubPort{byInterval: map[string][]market.Candle{
		"15m": breakoutBase(140),
		"1h":  risingCandles(150),
	}}
	tracker := state.NewLastSignalTracker()
	tracker.Record("BTCUSDT", time.Now().Add(-5*time.Hour))

	cfg := DefaultConfig()
	cfg.MinVolumeRatio = 1.45
	a := New(port, tracker, cfg, zerolog.Nop())

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonVolume, rej.Reason)
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	port := &stubPort{byInterval: map[string][]market.Candle{
		"15m": flatCandles(30, 100, 1, 100),
		"1h":  risingCandles(150),
	}}
	a := newTestAnalyzer(port, state.NewLastSignalTracker())

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonInsufficientHistory, rej.Reason)
}

func TestAnalyze_FetchFailure(t *testing.T) {
	port := &stubPort{err: errors.New("boom")}
	a := newTestAnalyzer(port, state.NewLastSignalTracker())

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonFetchFailed, rej.Reason)
}

func TestAnalyze_NoBreakoutRejectsStructure(t *testing.T) {
	// Flat base with a volume spike but no breakout candle.
	candles := flatCandles(150, 100, 1, 100)
	candles[149].Volume = 200
	port := &stubPort{byInterval: map[string][]market.Candle{
		"15m": candles,
		"1h":  risingCandles(150),
	}}
	a := newTestAnalyzer(port, state.NewLastSignalTracker())

	_, err := a.Analyze(context.Background(), "BTCUSDT")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonStructure, rej.Reason)
}
