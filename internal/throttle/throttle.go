// Package throttle implements the per-symbol signal cooldown. State is
// a JSON object {symbol: RFC3339 UTC timestamp} persisted on every
// admit so a restart keeps prior cooldowns in force.
package throttle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Throttle gates repeated admissions per symbol.
type Throttle struct {
	mu     sync.Mutex
	path   string
	last   map[string]time.Time
	loaded bool
	log    zerolog.Logger
}

// New creates a throttle persisting to the given file path.
func New(path string, log zerolog.Logger) *Throttle {
	return &Throttle{
		path: path,
		last: make(map[string]time.Time),
		log:  log.With().Str("component", "throttle").Logger(),
	}
}

// Allow reports whether a signal for symbol may be emitted now. On
// true the symbol is stamped and the state persisted; on false nothing
// changes. State is lazily loaded from disk on first use.
func (t *Throttle) Allow(symbol string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loadLocked()

	now := time.Now().UTC()
	if last, ok := t.last[symbol]; ok && now.Sub(last) < cooldown {
		remaining := cooldown - now.Sub(last)
		t.log.Info().Str("symbol", symbol).Dur("remaining", remaining).
			Msg("throttle block")
		return false
	}

	t.last[symbol] = now
	if err := t.persistLocked(); err != nil {
		t.log.Warn().Err(err).Msg("throttle state could not be saved")
	}
	return true
}

// Last returns the persisted stamp for symbol, ok=false if absent.
func (t *Throttle) Last(symbol string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked()
	ts, ok := t.last[symbol]
	return ts, ok
}

func (t *Throttle) loadLocked() {
	if t.loaded {
		return
	}
	t.loaded = true

	raw, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warn().Err(err).Msg("throttle state could not be loaded")
		}
		return
	}

	var stamps map[string]string
	if err := json.Unmarshal(raw, &stamps); err != nil {
		t.log.Warn().Err(err).Msg("throttle state file is malformed, starting fresh")
		return
	}
	for sym, iso := range stamps {
		ts, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			t.log.Warn().Str("symbol", sym).Str("ts", iso).Msg("skipping bad throttle stamp")
			continue
		}
		t.last[sym] = ts.UTC()
	}
}

// persistLocked rewrites the state file atomically: the JSON goes to a
// temp file in the same directory, then replaces the target by rename.
func (t *Throttle) persistLocked() error {
	stamps := make(map[string]string, len(t.last))
	for sym, ts := range t.last {
		stamps[sym] = ts.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(stamps)
	if err != nil {
		return fmt.Errorf("marshal throttle state: %w", err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
