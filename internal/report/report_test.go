package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-signal-bot/internal/database"
)

func newTestReporter(t *testing.T, csvContent string) (*Reporter, *database.DB) {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "signals_daily.csv")
	if csvContent != "" {
		require.NoError(t, os.WriteFile(csvPath, []byte(csvContent), 0o644))
	}

	db, err := database.Open(filepath.Join(dir, "signals.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(Config{CSVPath: csvPath, Hour: 23, Minute: 59}, db, nil, zerolog.Nop()), db
}

func TestGenerate_WithSignalsAndTrades(t *testing.T) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)
	csvContent := ts + ",BTCUSDT,64100,1.5,HTF 1h Uptrend,64900,65500,63400\n" +
		ts + ",ETHUSDT,3200,2.1,HTF 1h Downtrend,3100,3050,3300\n"

	r, db := newTestReporter(t, csvContent)
	ctx := context.Background()

	id, err := db.OpenTrade(ctx, database.TradeRow{
		Symbol: "BTCUSDT", Side: "LONG", Entry: 100, Size: 1000, Qty: 10,
		TP1: 103, TP2: 105, SL: 98,
		OpenedAt: now.Format(time.RFC3339),
	})
	require.NoError(t, err)
	require.NoError(t, db.CloseTrade(ctx, id, "TP2", 105, 50, 5, now))

	summary, err := r.Generate(ctx, now)
	require.NoError(t, err)

	assert.Contains(t, summary, "Signals: 2")
	assert.Contains(t, summary, "Up/Down: 1/1")
	assert.Contains(t, summary, "Avg score: 1.80")
	assert.Contains(t, summary, "Best score: 2.10")
	assert.Contains(t, summary, "Closed trades: 1 | Win/Loss: 1/0 (100.0%)")
	assert.Contains(t, summary, "Total PnL: $50.00")
}

func TestGenerate_EmptyDay(t *testing.T) {
	r, _ := newTestReporter(t, "")
	summary, err := r.Generate(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Contains(t, summary, "No signals recorded today.")
	assert.Contains(t, summary, "No trades closed today.")
}

func TestGenerate_IgnoresOtherDays(t *testing.T) {
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	csvContent := old + ",BTCUSDT,64100,1.5,HTF 1h Uptrend,64900,65500,63400\n"

	r, _ := newTestReporter(t, csvContent)
	summary, err := r.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Contains(t, summary, "No signals recorded today.")
}

func TestNextFireTime(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	next := nextFireTime(now, 23, 59)
	assert.Equal(t, time.Date(2026, 8, 26, 23, 59, 0, 0, time.UTC), next)

	// Already past today's slot: tomorrow.
	next = nextFireTime(now, 9, 0)
	assert.Equal(t, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC), next)

	// Exactly at the slot: strictly after, so tomorrow.
	at := time.Date(2026, 8, 26, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, at.Add(24*time.Hour), nextFireTime(at, 23, 59))
}
