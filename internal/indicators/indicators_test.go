package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA_LengthAndConstantSeries(t *testing.T) {
	series := []float64{42, 42, 42, 42, 42, 42, 42, 42}
	out, err := EMA(series, 3)
	require.NoError(t, err)
	require.Len(t, out, len(series))
	for i, v := range out {
		assert.InDelta(t, 42.0, v, 1e-12, "index %d", i)
	}
}

func TestEMA_BadPeriod(t *testing.T) {
	_, err := EMA([]float64{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrBadPeriod)
}

func TestEMA_TracksTrend(t *testing.T) {
	series := []float64{100, 101, 102, 103, 104, 105}
	out, err := EMA(series, 3)
	require.NoError(t, err)
	// EMA lags the price but must move up monotonically on a rising series.
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i], out[i-1])
	}
	assert.Less(t, out[len(out)-1], 105.0)
}

func TestRSI_NotReady(t *testing.T) {
	_, ok := RSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)
}

func TestRSI_AllGains(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = float64(100 + i)
	}
	v, ok := RSI(series, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestRSI_Neutral(t *testing.T) {
	// Alternating equal gains and losses should land near 50.
	series := []float64{100}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			series = append(series, series[len(series)-1]+1)
		} else {
			series = append(series, series[len(series)-1]-1)
		}
	}
	v, ok := RSI(series, 14)
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1.0)
}

func TestATR_NonNegative(t *testing.T) {
	highs := []float64{10, 11, 12, 11.5, 13, 12.8, 14}
	lows := []float64{9, 10, 10.5, 10.8, 11.9, 12, 13}
	closes := []float64{9.5, 10.8, 11, 11.2, 12.5, 12.2, 13.7}
	out, err := ATR(highs, lows, closes, 3)
	require.NoError(t, err)
	require.Len(t, out, len(highs))
	for i, v := range out {
		assert.GreaterOrEqual(t, v, 0.0, "index %d", i)
	}
}

func TestATR_LengthMismatch(t *testing.T) {
	_, err := ATR([]float64{1, 2}, []float64{1}, []float64{1, 2}, 14)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestATR_GapUsesPrevClose(t *testing.T) {
	// Second bar gaps above the prior close; TR must use |H-prevClose|.
	highs := []float64{10, 20}
	lows := []float64{9, 19}
	closes := []float64{10, 20}
	out, err := ATR(highs, lows, closes, 1)
	require.NoError(t, err)
	// period 1 EMA follows TR exactly: TR[1] = max(1, |20-10|, |19-10|) = 10
	assert.InDelta(t, 10.0, out[1], 1e-12)
}

func TestRollingMean(t *testing.T) {
	assert.Equal(t, 0.0, RollingMean(nil, 5))
	assert.InDelta(t, 2.0, RollingMean([]float64{1, 2, 3}, 10), 1e-12)
	assert.InDelta(t, 2.5, RollingMean([]float64{1, 1, 2, 3}, 2), 1e-12)
}

func TestFindLastSwing(t *testing.T) {
	// Pivot high of 15 at index 4, pivot low of 8 at index 8.
	highs := []float64{10, 11, 12, 13, 15, 13, 12, 11, 10, 11, 12}
	lows := []float64{9, 10, 11, 12, 14, 12, 10, 9, 8, 9, 10}
	sw, err := FindLastSwing(highs, lows, 40)
	require.NoError(t, err)
	assert.True(t, sw.HasHigh)
	assert.True(t, sw.HasLow)
	assert.Equal(t, 15.0, sw.High)
	assert.Equal(t, 8.0, sw.Low)
}

func TestFindLastSwing_NoPivot(t *testing.T) {
	// Strictly monotonic series has no interior pivots.
	highs := make([]float64, 10)
	lows := make([]float64, 10)
	for i := range highs {
		highs[i] = float64(i + 10)
		lows[i] = float64(i + 9)
	}
	sw, err := FindLastSwing(highs, lows, 40)
	require.NoError(t, err)
	assert.False(t, sw.HasHigh)
	assert.False(t, sw.HasLow)
}

func TestFindLastSwing_PicksMostRecent(t *testing.T) {
	// Two pivot highs; the later one (20 at index 8) must win.
	highs := []float64{1, 2, 5, 2, 1, 2, 10, 15, 20, 15, 10}
	lows := []float64{0, 1, 4, 1, 0.5, 1, 9, 14, 19, 14, 9}
	sw, err := FindLastSwing(highs, lows, 40)
	require.NoError(t, err)
	require.True(t, sw.HasHigh)
	assert.Equal(t, 20.0, sw.High)
	require.True(t, sw.HasLow)
	assert.Equal(t, 0.5, sw.Low)
}

func TestRSI_MathSanity(t *testing.T) {
	series := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10,
		45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28}
	v, ok := RSI(series, 14)
	require.True(t, ok)
	assert.False(t, math.IsNaN(v))
	assert.Greater(t, v, 50.0)
	assert.Less(t, v, 100.0)
}
