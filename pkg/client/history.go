package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is how many requests a History keeps.
const DefaultHistorySize = 10

// Entry is one sent request.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	// Status is the HTTP status, or 0 when no response arrived.
	Status    int    `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"response_time_ms"`
	PQL       string `json:"pql,omitempty"`
}

// History is a bounded, most-recent-first log of requests. It is safe for
// concurrent use.
type History struct {
	mu      sync.RWMutex
	size    int
	entries []Entry
}

// NewHistory creates a history keeping at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Record builds an entry from a send outcome and adds it.
func (h *History) Record(url, pqlText string, res *Result, err error) Entry {
	e := Entry{
		Method: "POST",
		URL:    url,
		PQL:    pqlText,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if res != nil {
		e.Status = res.StatusCode
		e.LatencyMS = res.Latency.Milliseconds()
	}
	return h.Add(e)
}

// Add stores e at the front, assigning an ID and timestamp when missing.
func (h *History) Add(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]Entry{e}, h.entries...)
	if len(h.entries) > h.size {
		h.entries = h.entries[:h.size]
	}
	return e
}

// List returns a copy of the entries, newest first.
func (h *History) List() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}
