package agents

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPortfolioHistorySize is how many portfolio values are kept for the chart feed
const DefaultPortfolioHistorySize = 100

// HistoryPoint is one recorded portfolio value
type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// PortfolioHistory is a fixed-size ring of portfolio values
type PortfolioHistory struct {
	mu     sync.Mutex
	points []HistoryPoint
	next   int
	full   bool
}

func NewPortfolioHistory(size int) *PortfolioHistory {
	if size <= 0 {
		size = DefaultPortfolioHistorySize
	}
	return &PortfolioHistory{points: make([]HistoryPoint, size)}
}

// Record appends a value, overwriting the oldest once the ring is full
func (h *PortfolioHistory) Record(value decimal.Decimal, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points[h.next] = HistoryPoint{Timestamp: at, Value: value}
	h.next = (h.next + 1) % len(h.points)
	if h.next == 0 {
		h.full = true
	}
}

// Points returns the recorded values, oldest first
func (h *PortfolioHistory) Points() []HistoryPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]HistoryPoint, h.next)
		copy(out, h.points[:h.next])
		return out
	}
	out := make([]HistoryPoint, 0, len(h.points))
	out = append(out, h.points[h.next:]...)
	return append(out, h.points[:h.next]...)
}

// Len returns the number of recorded values
func (h *PortfolioHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.points)
	}
	return h.next
}
