package alerting

import (
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
)

// DefaultHistorySize is the recent-alerts ring capacity.
const DefaultHistorySize = 1000

// History is a bounded ring of the most recent alerts.
type History struct {
	mu   sync.RWMutex
	buf  []models.AlertEvent
	head int
	n    int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]models.AlertEvent, size)}
}

func (h *History) Add(ev models.AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = ev
	h.head = (h.head + 1) % len(h.buf)
	if h.n < len(h.buf) {
		h.n++
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// each walks alerts newest first until fn returns false.
func (h *History) each(fn func(models.AlertEvent) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	size := len(h.buf)
	for i := 1; i <= h.n; i++ {
		if !fn(h.buf[(h.head-i+size)%size]) {
			return
		}
	}
}

// Recent returns alerts matching f, newest first.
func (h *History) Recent(f models.AlertFilter) []models.AlertEvent {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.AlertEvent, 0, limit)
	h.each(func(ev models.AlertEvent) bool {
		if f.Symbol != "" && ev.Symbol != f.Symbol {
			return true
		}
		if f.Type != "" && ev.Type != f.Type {
			return true
		}
		out = append(out, ev)
		return len(out) < limit
	})
	return out
}

// CountSince counts alerts stamped at or after since.
func (h *History) CountSince(since time.Time) int {
	n := 0
	h.each(func(ev models.AlertEvent) bool {
		if !ev.Timestamp.Before(since) {
			n++
		}
		return true
	})
	return n
}

// Summary groups the alerts of the last hours before now.
func (h *History) Summary(hours int, now time.Time) models.AlertSummary {
	since := now.Add(-time.Duration(hours) * time.Hour)
	s := models.AlertSummary{
		Hours:      hours,
		BySeverity: make(map[models.Severity]int),
		ByType:     make(map[models.RuleKind]int),
		BySymbol:   make(map[models.Symbol]int),
	}
	h.each(func(ev models.AlertEvent) bool {
		if ev.Timestamp.Before(since) {
			return true
		}
		s.TotalAlerts++
		s.BySeverity[ev.Severity]++
		s.ByType[ev.Type]++
		s.BySymbol[ev.Symbol]++
		return true
	})
	return s
}
