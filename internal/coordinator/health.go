package coordinator

import (
	"sort"
	"sync"
	"time"
)

// Health counts pipeline outcomes since process start. All methods are
// safe for concurrent use.
type Health struct {
	mu         sync.Mutex
	startedAt  time.Time
	scans      int64
	candidates int64
	admitted   int64
	rejections map[string]int64
	lastAdmit  time.Time
}

// NewHealth creates zeroed counters.
func NewHealth() *Health {
	return &Health{
		startedAt:  time.Now().UTC(),
		rejections: make(map[string]int64),
	}
}

func (h *Health) scanStarted() {
	h.mu.Lock()
	h.scans++
	h.mu.Unlock()
}

func (h *Health) candidateSeen() {
	h.mu.Lock()
	h.candidates++
	h.mu.Unlock()
}

func (h *Health) admittedSignal() {
	h.mu.Lock()
	h.admitted++
	h.lastAdmit = time.Now().UTC()
	h.mu.Unlock()
}

func (h *Health) rejected(reason string) {
	h.mu.Lock()
	h.rejections[reason]++
	h.mu.Unlock()
}

// RejectionCount is one reason's tally.
type RejectionCount struct {
	Reason string
	Count  int64
}

// Snapshot is a point-in-time copy for the /health command.
type Snapshot struct {
	StartedAt  time.Time
	Uptime     time.Duration
	Scans      int64
	Candidates int64
	Admitted   int64
	Rejections []RejectionCount
	LastAdmit  time.Time
}

// Snapshot copies the counters, rejection reasons sorted by count
// descending.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	rej := make([]RejectionCount, 0, len(h.rejections))
	for reason, n := range h.rejections {
		rej = append(rej, RejectionCount{Reason: reason, Count: n})
	}
	sort.Slice(rej, func(i, j int) bool {
		if rej[i].Count != rej[j].Count {
			return rej[i].Count > rej[j].Count
		}
		return rej[i].Reason < rej[j].Reason
	})

	return Snapshot{
		StartedAt:  h.startedAt,
		Uptime:     time.Since(h.startedAt),
		Scans:      h.scans,
		Candidates: h.candidates,
		Admitted:   h.admitted,
		Rejections: rej,
		LastAdmit:  h.lastAdmit,
	}
}
