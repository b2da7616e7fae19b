// Package scanner owns the periodic scan loop. Each tick dispatches the
// symbol universe onto a bounded worker pool; the sleep at the end of a
// tick compensates for elapsed work so the cadence does not drift.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pump-signal-bot/internal/state"
)

// Processor runs the admission pipeline for one symbol.
type Processor interface {
	Process(ctx context.Context, symbol string)
}

// Config tunes the loop.
type Config struct {
	Symbols         []string
	ScanInterval    time.Duration
	Concurrency     int
	PerSymbolMinGap time.Duration // skip symbols admitted more recently than this
}

// Scanner drives the scan loop until its context is cancelled.
type Scanner struct {
	cfg       Config
	processor Processor
	tracker   *state.LastSignalTracker
	log       zerolog.Logger
}

// New creates a Scanner.
func New(cfg Config, processor Processor, tracker *state.LastSignalTracker, log zerolog.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Scanner{
		cfg:       cfg,
		processor: processor,
		tracker:   tracker,
		log:       log.With().Str("component", "scanner").Logger(),
	}
}

// Run blocks, scanning until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	s.log.Info().Int("symbols", len(s.cfg.Symbols)).
		Dur("interval", s.cfg.ScanInterval).
		Int("concurrency", s.cfg.Concurrency).
		Msg("scan loop starting")

	for {
		t0 := time.Now()
		s.RunOnce(ctx)

		if ctx.Err() != nil {
			s.log.Info().Msg("scan loop stopped")
			return
		}

		// Sleep out the remainder of the interval, never negative.
		sleep := s.cfg.ScanInterval - time.Since(t0)
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scan loop stopped")
			return
		case <-timer.C:
		}
	}
}

// RunOnce performs a single tick: one bounded-parallel pass over the
// universe. A symbol's panic or failure never stops the others.
func (s *Scanner) RunOnce(ctx context.Context) {
	scanID := uuid.NewString()[:8]
	start := time.Now()

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	dispatched := 0

	for _, symbol := range s.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		if s.skipForGap(symbol) {
			continue
		}

		dispatched++
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Str("scan_id", scanID).Str("symbol", sym).
						Any("panic", r).Msg("scan worker panicked")
				}
			}()
			s.processor.Process(ctx, sym)
		}(symbol)
	}

	wg.Wait()
	s.log.Debug().Str("scan_id", scanID).Int("dispatched", dispatched).
		Dur("elapsed", time.Since(start)).Msg("scan tick complete")
}

// skipForGap reports whether the symbol signalled too recently to be
// worth re-analyzing this tick.
func (s *Scanner) skipForGap(symbol string) bool {
	if s.cfg.PerSymbolMinGap <= 0 {
		return false
	}
	last, ok := s.tracker.Last(symbol)
	if !ok {
		return false
	}
	return time.Since(last) < s.cfg.PerSymbolMinGap
}
