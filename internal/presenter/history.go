package presenter

import (
	"sync"
	"time"

	"jajanin-relay/internal/models"
)

// HistoryCapacity is how many recent donations the feed keeps.
const HistoryCapacity = 5

// HistoryEntry is one donation in the recent feed.
type HistoryEntry struct {
	Alert      models.AlertEvent `json:"alert"`
	Display    string            `json:"display"`
	ReceivedAt time.Time         `json:"received_at"`
}

// History is a bounded newest-first feed of presented alerts.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	cap     int
}

// NewHistory creates a feed holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{cap: capacity}
}

// Add records an alert as the newest entry, evicting the oldest beyond capacity.
func (h *History) Add(alert models.AlertEvent, at time.Time) {
	entry := HistoryEntry{Alert: alert, Display: alert.DisplayText(), ReceivedAt: at}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]HistoryEntry{entry}, h.entries...)
	if len(h.entries) > h.cap {
		h.entries = h.entries[:h.cap]
	}
}

// Recent returns a copy of the feed, newest first.
func (h *History) Recent() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
