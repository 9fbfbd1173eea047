// Package conversation keeps the bounded per-user turn history supplied to
// the model for multi-turn continuity.
package conversation

import (
	"sync"

	"github.com/xaenox/justask-bot/internal/models"
)

type Tracker struct {
	mu      sync.Mutex
	bound   int
	entries map[int64][]models.ContextEntry
}

// NewTracker creates a tracker that keeps at most bound entries per user.
func NewTracker(bound int) *Tracker {
	if bound < 1 {
		bound = 1
	}
	return &Tracker{
		bound:   bound,
		entries: make(map[int64][]models.ContextEntry),
	}
}

// Append pushes an entry and trims the oldest ones beyond the bound.
func (t *Tracker) Append(userID int64, role models.Role, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.entries[userID], models.ContextEntry{Role: role, Text: text})
	if len(entries) > t.bound {
		entries = entries[len(entries)-t.bound:]
	}
	t.entries[userID] = entries
}

// Get returns the user's history oldest first. The returned slice is a copy;
// it only ever reflects fully completed appends.
func (t *Tracker) Get(userID int64) []models.ContextEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.entries[userID]
	out := make([]models.ContextEntry, len(entries))
	copy(out, entries)
	return out
}

// Reset clears the user's history.
func (t *Tracker) Reset(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, userID)
}
