// Package dedup tracks which alerts have already been handled so each one
// is announced at most once for the life of the process, and keeps the
// bounded most-recent-first history behind the status views.
package dedup

import (
	"sort"
	"sync"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
)

// Deduplicator separates new alerts from already-seen ones. The seen set
// only ever grows: evicting a record from the bounded history never forgets
// its ID, so an alert cannot be re-announced after falling off the table.
type Deduplicator struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	history []domain.AlertRecord // newest first
	limit   int
}

// New creates a deduplicator whose history keeps at most limit records.
func New(limit int) *Deduplicator {
	if limit < 1 {
		limit = 1
	}
	return &Deduplicator{
		seen:  make(map[string]struct{}),
		limit: limit,
	}
}

// Filter returns the records not yet marked seen, in their input order.
// Repeats of the same ID within a single batch count as seen after the
// first occurrence.
func (d *Deduplicator) Filter(records []domain.AlertRecord) []domain.AlertRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var fresh []domain.AlertRecord
	inBatch := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, ok := d.seen[rec.ID]; ok {
			continue
		}
		if _, ok := inBatch[rec.ID]; ok {
			continue
		}
		inBatch[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}

// MarkSeen records the alert as handled and prepends it to the history.
// Marking an already-seen ID is a no-op; the history row it produced the
// first time is not duplicated or reordered.
func (d *Deduplicator) MarkSeen(rec domain.AlertRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[rec.ID]; ok {
		return
	}
	d.seen[rec.ID] = struct{}{}

	d.history = append([]domain.AlertRecord{rec}, d.history...)
	if len(d.history) > d.limit {
		d.history = d.history[:d.limit]
	}
}

// Recent returns up to n history records, newest first.
func (d *Deduplicator) Recent(n int) []domain.AlertRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if n > len(d.history) {
		n = len(d.history)
	}
	out := make([]domain.AlertRecord, n)
	copy(out, d.history[:n])
	return out
}

// Snapshot copies the full state for persistence. SeenIDs is sorted so
// snapshots of the same state compare equal.
func (d *Deduplicator) Snapshot() domain.DedupSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.seen))
	for id := range d.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	history := make([]domain.AlertRecord, len(d.history))
	copy(history, d.history)

	return domain.DedupSnapshot{SeenIDs: ids, History: history}
}

// Restore replaces the deduplicator's state with a persisted snapshot.
// History IDs are folded into the seen set in case the snapshot's SeenIDs
// list is incomplete.
func (d *Deduplicator) Restore(snap domain.DedupSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen = make(map[string]struct{}, len(snap.SeenIDs)+len(snap.History))
	for _, id := range snap.SeenIDs {
		d.seen[id] = struct{}{}
	}
	for _, rec := range snap.History {
		d.seen[rec.ID] = struct{}{}
	}

	d.history = make([]domain.AlertRecord, len(snap.History))
	copy(d.history, snap.History)
	if len(d.history) > d.limit {
		d.history = d.history[:d.limit]
	}
}
