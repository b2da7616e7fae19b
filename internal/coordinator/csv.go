package coordinator

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// CSVAppender appends one row per admitted signal to the daily CSV.
// Columns: ts, symbol, entry_mid, score, trend_label, tp1, tp2, sl.
type CSVAppender struct {
	mu   sync.Mutex
	path string
}

// NewCSVAppender creates an appender for the given file path.
func NewCSVAppender(path string) *CSVAppender {
	return &CSVAppender{path: path}
}

// Append writes one row and flushes before returning.
func (a *CSVAppender) Append(ts, symbol string, entryMid, score float64, trendLabel string, tp1, tp2, sl float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daily csv %s: %w", a.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		ts,
		symbol,
		strconv.FormatFloat(entryMid, 'f', -1, 64),
		strconv.FormatFloat(score, 'f', -1, 64),
		trendLabel,
		strconv.FormatFloat(tp1, 'f', -1, 64),
		strconv.FormatFloat(tp2, 'f', -1, 64),
		strconv.FormatFloat(sl, 'f', -1, 64),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write daily csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush daily csv: %w", err)
	}
	return nil
}
