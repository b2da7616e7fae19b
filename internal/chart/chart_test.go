package chart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-signal-bot/internal/market"
)

func testCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := 100 + float64(i%7)
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c, High: c + 2, Low: c - 2, Close: c + 1,
			Volume: 100 + float64(i),
		}
	}
	return out
}

func testInput(n int) Input {
	candles := testCandles(n)
	ema := make([]float64, n)
	for i := range ema {
		ema[i] = 100
	}
	return Input{
		Symbol:  "BTCUSDT",
		Side:    "LONG",
		Candles: candles,
		EMA20:   ema,
		EMA50:   ema,
		Entry:   103, TP1: 106, TP2: 109, SL: 99,
	}
}

func TestRender_WritesPNG(t *testing.T) {
	dir := t.TempDir()
	g, err := New(filepath.Join(dir, "charts"), zerolog.Nop())
	require.NoError(t, err)

	path, err := g.Render(testInput(120))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "chart_BTCUSDT_"))
	assert.True(t, strings.HasSuffix(path, ".png"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// PNG magic bytes.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Join(dir, "charts"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestRender_FewCandles(t *testing.T) {
	g, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = g.Render(testInput(10))
	assert.NoError(t, err)
}

func TestRender_EmptyCandlesFails(t *testing.T) {
	g, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	in := testInput(10)
	in.Candles = nil
	path, err := g.Render(in)
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestRender_SameSecondCollisionGetsSuffix(t *testing.T) {
	g, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := g.targetPath("BTCUSDT", now)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))

	second, err := g.targetPath("BTCUSDT", now)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "_1.png")
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "charts")
	_, err := New(dir, zerolog.Nop())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
