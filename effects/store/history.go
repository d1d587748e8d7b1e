package store

import (
	"sync"
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// Record is one applied event and the state it produced. TimeSpan brackets
// the reduction.
type Record[S, E any] struct {
	Seq   uint64
	Event E
	State S
	timespan.TimeSpan
}

// history is a ring of the most recent records.
type history[S, E any] struct {
	mu      sync.Mutex
	records []Record[S, E]
	next    int
	full    bool
}

func newHistory[S, E any](size int) *history[S, E] {
	if size == 0 {
		return nil
	}
	return &history[S, E]{records: make([]Record[S, E], size)}
}

func (h *history[S, E]) add(rec Record[S, E]) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

// between returns the records whose span overlaps [from, to], oldest first.
func (h *history[S, E]) between(from, to time.Time) []Record[S, E] {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := h.records[:h.next]
	if h.full {
		ordered = append(append([]Record[S, E]{}, h.records[h.next:]...), h.records[:h.next]...)
	}
	var out []Record[S, E]
	for _, rec := range ordered {
		if rec.End().Before(from) || rec.Start().After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Between is the span from from to to, for History queries.
func Between(from, to time.Time) timespan.TimeSpan {
	return timespan.BetweenTimes(from, to)
}

// Since is the span from t until now.
func Since(t time.Time) timespan.TimeSpan {
	return timespan.BetweenTimes(t, time.Now())
}
