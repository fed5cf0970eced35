// Package obs keeps a small in-process window of recent analysis
// activity for the admin endpoint. It holds the last N events in
// memory; nothing is persisted and nothing is shared across instances,
// so behind a load balancer each replica reports only its own slice.
package obs

import (
	"sync"
	"time"
)

// Event is one recorded analysis run.
type Event struct {
	StoryID   string        `json:"story_id"`
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration_ms"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Stats are process-lifetime counters, independent of the window size.
type Stats struct {
	Total           int           `json:"total"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"average_duration_ms"`
}

// RingLog is a fixed-capacity circular buffer of analysis events.
// Safe for concurrent use.
type RingLog struct {
	mu       sync.Mutex
	events   []Event
	next     int
	filled   bool
	total    int
	failed   int
	duration time.Duration
}

const DefaultCapacity = 256

func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingLog{events: make([]Event, capacity)}
}

// RecordAnalysis appends an event, overwriting the oldest once the
// buffer is full.
func (r *RingLog) RecordAnalysis(storyID, status string, duration time.Duration, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = Event{
		StoryID:   storyID,
		Status:    status,
		Duration:  duration,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.filled = true
	}

	r.total++
	r.duration += duration
	if status == "failed" {
		r.failed++
	}
}

// Snapshot returns the buffered events newest first.
func (r *RingLog) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.filled {
		size = len(r.events)
	}
	out := make([]Event, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}

// Stats returns process-lifetime totals.
func (r *RingLog) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Total:     r.total,
		Completed: r.total - r.failed,
		Failed:    r.failed,
	}
	if r.total > 0 {
		s.AverageDuration = r.duration / time.Duration(r.total)
	}
	return s
}
