package indicators

import (
	"errors"
	"math"
)

// ErrLengthMismatch is returned when parallel OHLC series disagree in length.
var ErrLengthMismatch = errors.New("indicators: series length mismatch")

// ErrBadPeriod is returned for non-positive periods.
var ErrBadPeriod = errors.New("indicators: period must be > 0")

// EMA calculates an exponential moving average over the full series.
// Smoothing k = 2/(period+1), seeded with the first sample, so the
// output always has the same length as the input.
func EMA(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrBadPeriod
	}
	if len(series) == 0 {
		return nil, nil
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, len(series))
	prev := series[0]
	out[0] = prev
	for i := 1; i < len(series); i++ {
		prev = series[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out, nil
}

// RSI calculates the Relative Strength Index over the last `period`
// deltas. The second return value is false when fewer than period+1
// samples are available.
func RSI(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period+1 {
		return 0, false
	}

	gains := 0.0
	losses := 0.0
	for i := len(series) - period; i < len(series); i++ {
		delta := series[i] - series[i-1]
		if delta >= 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// ATR calculates the Average True Range as an EMA of the true range
// series. TrueRange(i) = max(H-L, |H-prevClose|, |L-prevClose|); the
// first true range uses close[0] as the previous close.
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	if len(highs) != len(lows) || len(highs) != len(closes) {
		return nil, ErrLengthMismatch
	}
	if len(highs) == 0 {
		return nil, nil
	}

	trs := make([]float64, len(highs))
	prevClose := closes[0]
	for i := range highs {
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
		trs[i] = tr
		prevClose = closes[i]
	}
	return EMA(trs, period)
}

// RollingMean returns the mean of the last `period` samples, or of the
// whole series when it is shorter. Empty input yields 0.
func RollingMean(series []float64, period int) float64 {
	if len(series) == 0 || period <= 0 {
		return 0
	}
	start := len(series) - period
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range series[start:] {
		sum += v
	}
	return sum / float64(len(series)-start)
}

// pivotHigh reports whether highs[idx] is a strict local maximum over a
// five-bar window (two neighbors on each side).
func pivotHigh(highs []float64, idx int) bool {
	return idx >= 2 && idx+2 < len(highs) &&
		highs[idx] > highs[idx-1] && highs[idx] > highs[idx-2] &&
		highs[idx] > highs[idx+1] && highs[idx] > highs[idx+2]
}

func pivotLow(lows []float64, idx int) bool {
	return idx >= 2 && idx+2 < len(lows) &&
		lows[idx] < lows[idx-1] && lows[idx] < lows[idx-2] &&
		lows[idx] < lows[idx+1] && lows[idx] < lows[idx+2]
}

// Swing holds the most recent pivot levels found by FindLastSwing.
// HasHigh/HasLow are false when no pivot exists inside the lookback.
type Swing struct {
	High    float64
	Low     float64
	HasHigh bool
	HasLow  bool
}

// FindLastSwing scans backwards over at most `lookback` bars for the
// most recent five-bar pivot high and pivot low.
func FindLastSwing(highs, lows []float64, lookback int) (Swing, error) {
	if len(highs) != len(lows) {
		return Swing{}, ErrLengthMismatch
	}

	var sw Swing
	start := len(highs) - lookback
	if start < 2 {
		start = 2
	}
	for i := len(highs) - 1; i >= start; i-- {
		if !sw.HasHigh && pivotHigh(highs, i) {
			sw.High = highs[i]
			sw.HasHigh = true
		}
		if !sw.HasLow && pivotLow(lows, i) {
			sw.Low = lows[i]
			sw.HasLow = true
		}
		if sw.HasHigh && sw.HasLow {
			break
		}
	}
	return sw, nil
}
