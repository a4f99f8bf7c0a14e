package domain

import (
	"strings"
	"time"
)

// AlertRecord is one active alert pulled from the NWS CAP feed. Identity is
// ID alone; two records with the same ID are the same alert regardless of
// content drift between fetches.
type AlertRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	Event      string    `json:"event,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Urgency    string    `json:"urgency,omitempty"`
	Location   string    `json:"location,omitempty"` // name of the monitored location the record was fetched for
	ObservedAt time.Time `json:"observed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DedupSnapshot is the persisted shape of the deduplicator's state.
// SeenIDs contains every ID in History plus the IDs of records already
// evicted from it; History is most-recent-first and bounded.
type DedupSnapshot struct {
	SeenIDs []string      `json:"seen_ids"`
	History []AlertRecord `json:"history"`
}

// Priority orders announcements. A High item is drained ahead of queued
// Normal items and interrupts a Normal item that is already being spoken.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Announcement is one unit of spoken output. It exists from the moment an
// alert clears dedup (or the periodic identification line is due) until it
// has been spoken or logged, and is never requeued after interruption.
type Announcement struct {
	Text     string
	Priority Priority
}

// ClassifyPriority returns PriorityHigh when the title contains any of the
// urgent keywords, matched case-insensitively as substrings.
func ClassifyPriority(title string, urgentKeywords []string) Priority {
	lower := strings.ToLower(title)
	for _, kw := range urgentKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return PriorityHigh
		}
	}
	return PriorityNormal
}
