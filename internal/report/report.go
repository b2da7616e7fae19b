// Package report produces the end-of-day summary from the daily CSV
// and the trade store, and schedules its delivery.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pump-signal-bot/internal/database"
)

// Notifier delivers the finished report.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// Config sets the delivery time (UTC).
type Config struct {
	CSVPath string
	Hour    int
	Minute  int
}

// Reporter builds and schedules daily summaries.
type Reporter struct {
	cfg      Config
	db       *database.DB
	notifier Notifier
	log      zerolog.Logger
}

// New creates a Reporter. notifier may be nil (generate-only use).
func New(cfg Config, db *database.DB, notifier Notifier, log zerolog.Logger) *Reporter {
	return &Reporter{
		cfg:      cfg,
		db:       db,
		notifier: notifier,
		log:      log.With().Str("component", "report").Logger(),
	}
}

type signalRow struct {
	ts    time.Time
	trend string
	score float64
}

// readSignals loads the daily CSV rows falling inside [start, end).
func (r *Reporter) readSignals(start, end time.Time) ([]signalRow, error) {
	f, err := os.Open(r.cfg.CSVPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open daily csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read daily csv: %w", err)
	}

	var rows []signalRow
	for _, rec := range records {
		if len(rec) < 8 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			continue
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		score, _ := strconv.ParseFloat(rec[3], 64)
		rows = append(rows, signalRow{ts: ts, trend: rec[4], score: score})
	}
	return rows, nil
}

// Generate renders the summary for the UTC day containing now.
func (r *Reporter) Generate(ctx context.Context, now time.Time) (string, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	end := day.Add(24 * time.Hour)

	parts := []string{"🧾 Daily Summary " + day.Format("2006-01-02")}

	signals, err := r.readSignals(day, end)
	if err != nil {
		r.log.Warn().Err(err).Msg("daily csv unreadable")
	}
	if len(signals) > 0 {
		up, down := 0, 0
		sum, best := 0.0, signals[0].score
		for _, s := range signals {
			if strings.Contains(s.trend, "Uptrend") {
				up++
			} else if strings.Contains(s.trend, "Downtrend") {
				down++
			}
			sum += s.score
			if s.score > best {
				best = s.score
			}
		}
		parts = append(parts,
			fmt.Sprintf("• Signals: %d", len(signals)),
			fmt.Sprintf("• Up/Down: %d/%d", up, down),
			fmt.Sprintf("• Avg score: %.2f", sum/float64(len(signals))),
			fmt.Sprintf("• Best score: %.2f", best),
		)
	} else {
		parts = append(parts, "• No signals recorded today.")
	}

	closed, err := r.db.ClosedSince(ctx, day)
	if err != nil {
		return "", fmt.Errorf("load closed trades: %w", err)
	}
	if len(closed) > 0 {
		wins, losses := 0, 0
		pnlSum := 0.0
		for _, t := range closed {
			if t.PnLUSD > 0 {
				wins++
			} else {
				losses++
			}
			pnlSum += t.PnLUSD
		}
		winRate := float64(wins) / float64(len(closed)) * 100
		parts = append(parts,
			fmt.Sprintf("• Closed trades: %d | Win/Loss: %d/%d (%.1f%%)", len(closed), wins, losses, winRate),
			fmt.Sprintf("• Total PnL: $%.2f", pnlSum),
		)
	} else {
		parts = append(parts, "• No trades closed today.")
	}

	open, err := r.db.ActiveTrades(ctx)
	if err == nil && len(open) > 0 {
		parts = append(parts, fmt.Sprintf("• Still open: %d", len(open)))
	}

	return strings.Join(parts, "\n"), nil
}

// Run delivers the report once a day at the configured UTC time until
// ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		next := nextFireTime(time.Now().UTC(), r.cfg.Hour, r.cfg.Minute)
		r.log.Info().Time("next", next).Msg("daily report scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		summary, err := r.Generate(ctx, time.Now())
		if err != nil {
			r.log.Error().Err(err).Msg("daily report generation failed")
			continue
		}
		if r.notifier != nil {
			if err := r.notifier.SendText(ctx, summary); err != nil {
				r.log.Warn().Err(err).Msg("daily report delivery failed")
			}
		}
	}
}

// nextFireTime is the next occurrence of hh:mm strictly after now.
func nextFireTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
