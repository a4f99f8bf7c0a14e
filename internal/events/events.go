// Package events carries the monitor's observer surface: a small in-process
// pub/sub bus and the event types published on it. Any UI or automation
// attaches here (or over the HTTP API) rather than reaching into components.
package events

import (
	"time"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
)

// Event is implemented by every type published on the Bus.
type Event interface {
	event()
}

// CycleStarted is published when a check cycle begins executing.
type CycleStarted struct {
	CycleID string
	At      time.Time
}

// CycleCompleted is published when a check cycle has fully finished,
// including its dedup and announcement enqueueing.
type CycleCompleted struct {
	CycleID      string
	ActiveAlerts int
	NewAlerts    int
	Forecast     domain.ForecastBundle
	Duration     time.Duration
}

// CountdownTick is published once per second while the scheduler is armed,
// and once with Paused=true when it pauses. A paused countdown carries no
// meaningful Remaining value.
type CountdownTick struct {
	Remaining time.Duration
	Paused    bool
}

// ResolutionFailed is published when a location token failed every
// resolution strategy during a cycle.
type ResolutionFailed struct {
	Location string
	Token    string
	Reason   string
}

// AlertsUpdated reports the per-location outcome of an alert fetch.
type AlertsUpdated struct {
	Location string
	Active   int
	New      int
}

// AnnouncementSpoken is published after an announcement has been delivered,
// whether spoken aloud or degraded to a log line.
type AnnouncementSpoken struct {
	Text     string
	Priority domain.Priority
	Muted    bool
}

func (CycleStarted) event()       {}
func (CycleCompleted) event()     {}
func (CountdownTick) event()      {}
func (ResolutionFailed) event()   {}
func (AlertsUpdated) event()      {}
func (AnnouncementSpoken) event() {}
