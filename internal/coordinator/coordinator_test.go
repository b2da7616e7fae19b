package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-signal-bot/internal/analyzer"
	"pump-signal-bot/internal/chart"
	"pump-signal-bot/internal/database"
	"pump-signal-bot/internal/filter"
	"pump-signal-bot/internal/throttle"
)

type stubAnalyzer struct {
	cand *analyzer.SignalCandidate
	err  error
}

func (s *stubAnalyzer) Analyze(context.Context, string) (*analyzer.SignalCandidate, error) {
	return s.cand, s.err
}

type stubCharts struct {
	dir  string
	fail bool
}

func (s *stubCharts) Render(in chart.Input) (string, error) {
	if s.fail {
		return "", errors.New("render blew up")
	}
	path := filepath.Join(s.dir, "chart_"+in.Symbol+".png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type stubNotifier struct {
	texts  []string
	photos []string
	err    error
}

func (s *stubNotifier) SendText(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func (s *stubNotifier) SendPhoto(_ context.Context, photoPath, _ string) error {
	s.photos = append(s.photos, photoPath)
	return s.err
}

type stubTrader struct {
	opened []string
	err    error
}

func (s *stubTrader) OnSignalOpen(_ context.Context, cand *analyzer.SignalCandidate) error {
	s.opened = append(s.opened, cand.Symbol)
	return s.err
}

func goodCandidate() *analyzer.SignalCandidate {
	return &analyzer.SignalCandidate{
		Symbol:    "BTCUSDT",
		Side:      analyzer.SideLong,
		Timeframe: "15m",
		EntryLow:  99.9, EntryHigh: 100.1,
		TP1: 101.5, TP2: 102.5, TP3: 103.5, SL: 99,
		Leverage:    10,
		RSI:         55,
		RSIKnown:    true,
		ATRPct:      0.01,
		VolumeRatio: 1.8,
		RiskReward:  1.5,
		TrendLabel:  "HTF 1h Uptrend",
		CreatedAt:   time.Now().UTC(),
	}
}

type fixture struct {
	coord    *Coordinator
	db       *database.DB
	notifier *stubNotifier
	trader   *stubTrader
	health   *Health
	csvPath  string
}

func newFixture(t *testing.T, an Analyzer, charts ChartRenderer) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "signals.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		notifier: &stubNotifier{},
		trader:   &stubTrader{},
		health:   NewHealth(),
		csvPath:  filepath.Join(dir, "signals_daily.csv"),
	}
	f.coord = New(DefaultConfig(), an, charts,
		filter.New(filter.DefaultConfig(), zerolog.Nop()),
		throttle.New(filepath.Join(dir, "signal_throttle.json"), zerolog.Nop()),
		db, NewCSVAppender(f.csvPath), f.notifier, f.trader, f.health, zerolog.Nop())
	return f
}

func TestProcess_AdmitsAndFansOut(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, &stubAnalyzer{cand: goodCandidate()}, &stubCharts{dir: dir})

	f.coord.Process(context.Background(), "BTCUSDT")

	// Persisted.
	rows, err := f.db.LastSignals(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 100.0, rows[0].Price, 1e-9)
	assert.InDelta(t, 1.5, rows[0].Score, 1e-9)

	// CSV row appended.
	raw, err := os.ReadFile(f.csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "BTCUSDT")
	assert.Contains(t, string(raw), "HTF 1h Uptrend")

	// Notified with the chart and handed to the simulator.
	require.Len(t, f.notifier.photos, 1)
	assert.True(t, strings.HasSuffix(f.notifier.photos[0], "chart_BTCUSDT.png"))
	assert.Equal(t, []string{"BTCUSDT"}, f.trader.opened)

	snap := f.health.Snapshot()
	assert.EqualValues(t, 1, snap.Admitted)
	assert.EqualValues(t, 1, snap.Candidates)
}

func TestProcess_ThrottleBlocksSecondAdmission(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, &stubAnalyzer{cand: goodCandidate()}, &stubCharts{dir: dir})
	ctx := context.Background()

	f.coord.Process(ctx, "BTCUSDT")
	f.coord.Process(ctx, "BTCUSDT")

	assert.Len(t, f.trader.opened, 1)

	raw, err := os.ReadFile(f.csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "BTCUSDT"))

	snap := f.health.Snapshot()
	assert.EqualValues(t, 1, snap.Admitted)
	found := false
	for _, r := range snap.Rejections {
		if r.Reason == ReasonThrottle {
			assert.EqualValues(t, 1, r.Count)
			found = true
		}
	}
	assert.True(t, found, "throttle rejection not counted")
}

func TestProcess_ChartFailureDropsSignal(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{cand: goodCandidate()}, &stubCharts{fail: true})

	f.coord.Process(context.Background(), "BTCUSDT")

	rows, err := f.db.LastSignals(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, f.trader.opened)
	assert.Empty(t, f.notifier.photos)

	snap := f.health.Snapshot()
	assert.EqualValues(t, 0, snap.Admitted)
	require.NotEmpty(t, snap.Rejections)
	assert.Equal(t, ReasonChartFailed, snap.Rejections[0].Reason)
}

func TestProcess_AnalyzerRejectionOnlyCounts(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{err: &analyzer.Rejection{
		Symbol: "BTCUSDT", Reason: analyzer.ReasonNoHTFTrend,
	}}, &stubCharts{dir: t.TempDir()})

	f.coord.Process(context.Background(), "BTCUSDT")

	_, err := os.Stat(f.csvPath)
	assert.True(t, os.IsNotExist(err))

	snap := f.health.Snapshot()
	assert.EqualValues(t, 0, snap.Candidates)
	assert.Equal(t, analyzer.ReasonNoHTFTrend, snap.Rejections[0].Reason)
}

func TestProcess_QualityGateRejects(t *testing.T) {
	cand := goodCandidate()
	cand.RiskReward = 1.0 // below MIN_RISK_REWARD
	f := newFixture(t, &stubAnalyzer{cand: cand}, &stubCharts{dir: t.TempDir()})

	f.coord.Process(context.Background(), "BTCUSDT")

	assert.Empty(t, f.trader.opened)
	snap := f.health.Snapshot()
	assert.EqualValues(t, 1, snap.Candidates)
	assert.EqualValues(t, 0, snap.Admitted)
	assert.Equal(t, filter.ReasonRiskReward, snap.Rejections[0].Reason)
}

func TestProcess_NotifierFailureDoesNotBlockTrade(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, &stubAnalyzer{cand: goodCandidate()}, &stubCharts{dir: dir})
	f.notifier.err = errors.New("telegram down")

	f.coord.Process(context.Background(), "BTCUSDT")

	// Best-effort steps are independent: the trade still opens and the
	// signal stays persisted.
	assert.Equal(t, []string{"BTCUSDT"}, f.trader.opened)
	rows, err := f.db.LastSignals(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
