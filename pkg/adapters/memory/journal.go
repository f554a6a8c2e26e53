// Package memory provides in-process implementations of the journal and locker ports.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/pidtune/pkg/ports"
)

// Journal implements ports.Journal in memory.
// Safe for concurrent use.
type Journal struct {
	entries []ports.JournalEntry
	mu      sync.RWMutex
}

// NewJournal creates a new in-memory journal.
func NewJournal() *Journal {
	return &Journal{}
}

var _ ports.Journal = (*Journal)(nil)

// Append records the entry.
func (j *Journal) Append(ctx context.Context, entry ports.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	i, _ := slices.BinarySearchFunc(j.entries, entry, func(e, target ports.JournalEntry) int {
		return e.StartedAt.Compare(target.StartedAt)
	})
	// Entries with the same start time keep their append order.
	for i < len(j.entries) && j.entries[i].StartedAt.Equal(entry.StartedAt) {
		i++
	}
	j.entries = slices.Insert(j.entries, i, entry)
	return nil
}

// List returns a copy of the entries, oldest first.
func (j *Journal) List(ctx context.Context) ([]ports.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.entries), nil
}
