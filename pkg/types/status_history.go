package types

import "time"

// StatusHistoryEntry is one append-only record of an order status change or note.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// StatusHistory is stored as a JSON array on the order row.
type StatusHistory []StatusHistoryEntry

// Append returns a new history with entry added at the end.
func (h StatusHistory) Append(status, note string, at time.Time) StatusHistory {
	out := make(StatusHistory, len(h), len(h)+1)
	copy(out, h)
	return append(out, StatusHistoryEntry{Status: status, Timestamp: at.UTC(), Note: note})
}

// Last returns the most recent entry, if any.
func (h StatusHistory) Last() (StatusHistoryEntry, bool) {
	if len(h) == 0 {
		return StatusHistoryEntry{}, false
	}
	return h[len(h)-1], true
}
