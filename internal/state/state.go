// Package state tracks the last admission time per symbol. The analyzer
// consults it to decide between strict and relaxed thresholds; the
// admission path records into it. In-memory only, rebuilt on restart.
package state

import (
	"sync"
	"time"
)

// LastSignalTracker is a single-writer map of symbol to the time of its
// most recent admitted signal.
type LastSignalTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewLastSignalTracker creates an empty tracker.
func NewLastSignalTracker() *LastSignalTracker {
	return &LastSignalTracker{last: make(map[string]time.Time)}
}

// Record stamps the symbol with t.
func (tr *LastSignalTracker) Record(symbol string, t time.Time) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.last[symbol] = t.UTC()
}

// Last returns the recorded time for symbol, ok=false if never recorded.
func (tr *LastSignalTracker) Last(symbol string) (time.Time, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	t, ok := tr.last[symbol]
	return t, ok
}

// HoursSinceLast returns the hours elapsed since the last recorded
// signal for symbol; ok=false when the symbol has never signalled.
func (tr *LastSignalTracker) HoursSinceLast(symbol string) (float64, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	t, ok := tr.last[symbol]
	if !ok {
		return 0, false
	}
	return time.Since(t).Hours(), true
}

// Snapshot copies the current map for read-only use.
func (tr *LastSignalTracker) Snapshot() map[string]time.Time {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make(map[string]time.Time, len(tr.last))
	for k, v := range tr.last {
		out[k] = v
	}
	return out
}
