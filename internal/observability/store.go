package observability

import (
	"sync"

	"packet-intake/pkg/pipeline"
)

// bounded keeps the most recent limit items.
type bounded[T any] struct {
	mu    sync.Mutex
	limit int
	items []T
}

func newBounded[T any](limit int) *bounded[T] {
	if limit <= 0 {
		limit = 1000
	}
	return &bounded[T]{limit: limit, items: make([]T, 0, limit)}
}

func (b *bounded[T]) add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	if len(b.items) > b.limit {
		b.items = append([]T{}, b.items[len(b.items)-b.limit:]...)
	}
}

func (b *bounded[T]) list() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, 0, len(b.items))
	return append(out, b.items...)
}

func (b *bounded[T]) last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if len(b.items) == 0 {
		return zero, false
	}
	return b.items[len(b.items)-1], true
}

// History holds the latest stats reports.
type History struct {
	reports *bounded[pipeline.Report]
}

func NewHistory(limit int) *History {
	return &History{reports: newBounded[pipeline.Report](limit)}
}

func (h *History) Add(r pipeline.Report) {
	h.reports.add(r)
}

func (h *History) List() []pipeline.Report {
	return h.reports.list()
}

func (h *History) Latest() (pipeline.Report, bool) {
	return h.reports.last()
}

func (h *History) Limit() int {
	return h.reports.limit
}

// Trace records one API request.
type Trace struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
	ClientIP   string `json:"client_ip"`
}

type Traces struct {
	traces *bounded[Trace]
}

func NewTraces(limit int) *Traces {
	return &Traces{traces: newBounded[Trace](limit)}
}

func (s *Traces) Add(trace Trace) {
	s.traces.add(trace)
}

func (s *Traces) List() []Trace {
	return s.traces.list()
}
