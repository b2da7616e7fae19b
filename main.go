package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pump-signal-bot/config"
	"pump-signal-bot/internal/analyzer"
	"pump-signal-bot/internal/bot"
	"pump-signal-bot/internal/chart"
	"pump-signal-bot/internal/coordinator"
	"pump-signal-bot/internal/database"
	"pump-signal-bot/internal/filter"
	"pump-signal-bot/internal/logging"
	"pump-signal-bot/internal/market"
	"pump-signal-bot/internal/notification"
	"pump-signal-bot/internal/report"
	"pump-signal-bot/internal/scanner"
	"pump-signal-bot/internal/sim"
	"pump-signal-bot/internal/state"
	"pump-signal-bot/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:    cfg.LoggingConfig.Level,
		FilePath: cfg.LoggingConfig.File,
		Console:  cfg.LoggingConfig.Console,
	})
	logger.Info().
		Strs("symbols", cfg.ScanConfig.Symbols).
		Str("timeframe", cfg.AnalyzerConfig.Timeframe).
		Str("htf", cfg.AnalyzerConfig.HTFTimeframe).
		Dur("interval", cfg.ScanInterval()).
		Msg("signal engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.StorageConfig.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StorageConfig.DBPath).Msg("database open failed")
	}
	defer db.Close()

	port := market.NewBinanceAdapter(market.BinanceConfig{
		APIKey:       os.Getenv("BINANCE_API_KEY"),
		SecretKey:    os.Getenv("BINANCE_SECRET_KEY"),
		FetchTimeout: cfg.FetchTimeout(),
	}, logger)

	tracker := state.NewLastSignalTracker()
	gate := throttle.New(cfg.StorageConfig.ThrottleFile, logger)

	charts, err := chart.New(cfg.StorageConfig.ChartsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.StorageConfig.ChartsDir).Msg("chart directory unusable")
	}

	an := analyzer.New(port, tracker, analyzer.Config{
		BaseTimeframe:   cfg.AnalyzerConfig.Timeframe,
		HTFTimeframe:    cfg.AnalyzerConfig.HTFTimeframe,
		Leverage:        cfg.AnalyzerConfig.Leverage,
		Strategy:        "pullback_break",
		FetchLimit:      150,
		MinCandles:      60,
		SwingLookback:   40,
		StarvationHours: float64(cfg.AnalyzerConfig.StarvationHours),
		MinVolumeRatio:  cfg.FilterConfig.MinVolumeRatio,
	}, logger)

	quality := filter.New(filter.Config{
		MinRSI:         cfg.FilterConfig.MinRSI,
		MaxRSI:         cfg.FilterConfig.MaxRSI,
		MinRiskReward:  cfg.FilterConfig.MinRiskReward,
		MinATRPct:      cfg.FilterConfig.MinATRPct,
		MaxSpreadPct:   cfg.FilterConfig.MaxSpreadPct,
		MinSuccessRate: cfg.FilterConfig.MinSuccessRate,
	}, logger)

	notifyManager := notification.NewManager(logger)
	if cfg.TelegramConfig.BotToken != "" && cfg.TelegramConfig.ChatIDs != "" {
		notifyManager.Add(notification.NewTelegramNotifier(
			cfg.TelegramConfig.BotToken, cfg.TelegramConfig.ChatIDs, logger))
		logger.Info().Msg("telegram delivery enabled")
	} else {
		logger.Warn().Msg("telegram not configured, signals stay local")
	}

	trader := sim.New(sim.Config{
		EquityUSD:   cfg.SimConfig.EquityUSD,
		RiskPct:     cfg.SimConfig.RiskPerTradePct,
		TP1RatioQty: cfg.SimConfig.TP1RatioQty,
		FeeBps:      cfg.SimConfig.FeeBps,
		BEOnTP1:     cfg.SimConfig.BreakEvenOnTP1,
		Notify:      true,
	}, db, notifyManager, logger)

	health := coordinator.NewHealth()
	csvOut := coordinator.NewCSVAppender(cfg.StorageConfig.DailyCSV)
	coord := coordinator.New(coordinator.Config{
		ThrottleCooldown:     cfg.ThrottleCooldown(),
		VolumeSpikeThreshold: cfg.FilterConfig.VolumeSpikeThreshold,
		SuccessRateWindow:    30,
	}, an, charts, quality, gate, db, csvOut, notifyManager, trader, health, logger)

	scan := scanner.New(scanner.Config{
		Symbols:         cfg.ScanConfig.Symbols,
		ScanInterval:    cfg.ScanInterval(),
		Concurrency:     cfg.ScanConfig.Concurrency,
		PerSymbolMinGap: cfg.SymbolGap(),
	}, coord, tracker, logger)

	ticks := market.NewTickerStream(cfg.ScanConfig.Symbols, func(symbol string, lastPrice float64) {
		trader.OnTick(ctx, symbol, lastPrice)
	}, logger)

	reporter := report.New(report.Config{
		CSVPath: cfg.StorageConfig.DailyCSV,
		Hour:    cfg.ReportConfig.Hour,
		Minute:  cfg.ReportConfig.Minute,
	}, db, notifyManager, logger)

	settings := bot.NewSettingsStore(cfg.StorageConfig.UserSettings, logger)
	commands := bot.New(cfg.TelegramConfig.BotToken, cfg.TelegramConfig.AdminIDs, bot.Deps{
		DB:         db,
		Health:     health,
		Reporter:   reporter,
		Settings:   settings,
		Symbols:    cfg.ScanConfig.Symbols,
		ConfigText: cfg.Render(),
		TestSignal: testSignalFunc(notifyManager),
	}, logger)

	done := make(chan struct{}, 4)
	go func() { scan.Run(ctx); done <- struct{}{} }()
	go func() { ticks.Run(ctx); done <- struct{}{} }()
	go func() { reporter.Run(ctx); done <- struct{}{} }()
	go func() { commands.Run(ctx); done <- struct{}{} }()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested, draining workers")

	drain := time.NewTimer(10 * time.Second)
	defer drain.Stop()
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-drain.C:
			logger.Warn().Msg("shutdown drain timed out")
			return
		}
	}
	logger.Info().Msg("signal engine stopped")
}

// testSignalFunc wires the /testsignal command to a canned delivery so
// operators can verify the chat path without waiting for a real setup.
func testSignalFunc(n *notification.Manager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cand := &analyzer.SignalCandidate{
			Symbol:      "TESTUSDT",
			Side:        analyzer.SideLong,
			Timeframe:   "15m",
			HTF:         "1h",
			EntryLow:    99.75,
			EntryHigh:   100.25,
			TP1:         101.5,
			TP2:         102.5,
			TP3:         103.5,
			SL:          99.0,
			Leverage:    10,
			Strategy:    "pullback_break",
			TrendLabel:  "HTF 1h Uptrend",
			RSI:         55,
			RSIKnown:    true,
			ATRPct:      0.01,
			VolumeRatio: 1.5,
			RiskReward:  1.5,
			CreatedAt:   time.Now().UTC(),
		}
		text := "🧪 <b>Test signal</b> (not a real setup)\n\n" +
			notification.FormatSignalMessage(cand, 50)
		return n.SendText(ctx, text)
	}
}
