package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/couchcryptid/weather-alert-monitor/internal/settings"
)

// cycleConfig is the settings snapshot one cycle runs against. Settings
// edits mid-cycle apply to the next cycle, never the running one.
type cycleConfig struct {
	id             string
	announce       bool
	autoRefresh    bool
	locations      []settings.Location
	urgentKeywords []string
	repeaterInfo   string
}

// cycleConfigLocked snapshots the current settings for a cycle. Callers
// hold mu.
func (s *Scheduler) cycleConfigLocked() cycleConfig {
	return cycleConfig{
		id:             uuid.NewString()[:8],
		announce:       s.announce,
		autoRefresh:    s.autoRefresh,
		locations:      append([]settings.Location(nil), s.locations...),
		urgentKeywords: append([]string(nil), s.urgentKeywords...),
		repeaterInfo:   s.repeaterInfo,
	}
}

// runCycle checks every watched location in roster order. The first
// location is the primary one: when auto-refresh is on, its forecast
// bundle is refreshed alongside its alerts. A failure at any location is
// logged and skipped; the cycle always completes and reschedules.
func (s *Scheduler) runCycle(cfg cycleConfig) {
	start := s.deps.Clock.Now()
	logger := s.deps.Logger.With("cycle_id", cfg.id)
	logger.Info("check cycle started", "locations", len(cfg.locations))

	s.deps.Metrics.CyclesTotal.Inc()
	s.deps.Bus.Publish(events.CycleStarted{CycleID: cfg.id, At: start})

	var (
		totalActive int
		totalNew    int
		forecast    domain.ForecastBundle
	)

	for i, loc := range cfg.locations {
		coords, err := s.resolveLocation(loc)
		if err != nil {
			reason := describeFetchError(err)
			logger.Warn("location resolution failed",
				"location", loc.Name, "token", loc.Token, "reason", reason, "error", err)
			s.deps.Metrics.ResolutionFailures.Inc()
			s.deps.Bus.Publish(events.ResolutionFailed{Location: loc.Name, Token: loc.Token, Reason: reason})
			continue
		}

		active, fresh := s.checkAlerts(logger, cfg, loc, coords)
		totalActive += active
		totalNew += fresh

		if i == 0 && cfg.autoRefresh {
			if fb, err := s.fetchForecast(coords); err != nil {
				logger.Warn("forecast fetch failed",
					"location", loc.Name, "reason", describeFetchError(err), "error", err)
			} else {
				forecast = fb
			}
		}
	}

	if cfg.announce && cfg.repeaterInfo != "" {
		s.deps.Announcer.Enqueue(domain.Announcement{Text: cfg.repeaterInfo, Priority: domain.PriorityNormal})
	}

	duration := s.deps.Clock.Since(start)
	s.deps.Metrics.CycleDuration.Observe(duration.Seconds())
	s.finishCycle(cfg, totalActive, totalNew, forecast, duration)

	logger.Info("check cycle completed",
		"active_alerts", totalActive, "new_alerts", totalNew, "duration", duration)
}

// checkAlerts fetches and processes one location's alerts, returning the
// active and new counts. New alerts are announced (when enabled) and marked
// seen in feed order.
func (s *Scheduler) checkAlerts(logger *slog.Logger, cfg cycleConfig, loc settings.Location, coords domain.Coordinates) (int, int) {
	records, err := s.fetchAlerts(coords)
	if err != nil {
		logger.Warn("alert fetch failed",
			"location", loc.Name, "reason", describeFetchError(err), "error", err)
		return 0, 0
	}

	fresh := s.deps.Dedup.Filter(records)
	for _, rec := range fresh {
		rec.Location = loc.Name
		priority := domain.ClassifyPriority(rec.Title, cfg.urgentKeywords)
		if cfg.announce {
			s.deps.Announcer.Enqueue(domain.Announcement{
				Text:     announcementText(loc.Name, rec),
				Priority: priority,
			})
			s.deps.Metrics.AlertsAnnounced.Inc()
		}
		// Marked seen even when announcements are off, so toggling them
		// on later does not replay old alerts.
		s.deps.Dedup.MarkSeen(rec)
	}

	s.deps.Bus.Publish(events.AlertsUpdated{Location: loc.Name, Active: len(records), New: len(fresh)})
	logger.Info("alerts checked", "location", loc.Name, "active", len(records), "new", len(fresh))
	return len(records), len(fresh)
}

// finishCycle records the cycle result and either re-arms a full countdown
// or returns to the paused state if the flags were dropped mid-cycle or the
// scheduler stopped.
func (s *Scheduler) finishCycle(cfg cycleConfig, totalActive, totalNew int, forecast domain.ForecastBundle, duration time.Duration) {
	completedAt := s.deps.Clock.Now()

	s.mu.Lock()
	s.lastCycle = &LastCycle{
		ID:           cfg.id,
		CompletedAt:  completedAt,
		ActiveAlerts: totalActive,
		NewAlerts:    totalNew,
		Duration:     duration,
	}
	if !forecast.Empty() {
		s.lastForecast = forecast
	}

	if s.started && s.activeLocked() {
		s.setStateLocked(StateArmed)
		s.remaining = s.interval
		s.armLocked(s.interval)
	} else {
		s.setStateLocked(StatePaused)
		s.remaining = 0
	}
	s.mu.Unlock()

	s.ready.Store(true)
	s.deps.Bus.Publish(events.CycleCompleted{
		CycleID:      cfg.id,
		ActiveAlerts: totalActive,
		NewAlerts:    totalNew,
		Forecast:     forecast,
		Duration:     duration,
	})
}

func (s *Scheduler) resolveLocation(loc settings.Location) (domain.Coordinates, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	return s.deps.Resolver.Resolve(ctx, loc.Token)
}

func (s *Scheduler) fetchAlerts(coords domain.Coordinates) ([]domain.AlertRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	return s.deps.Alerts.ActiveAlerts(ctx, coords)
}

func (s *Scheduler) fetchForecast(coords domain.Coordinates) (domain.ForecastBundle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	return s.deps.Forecasts.FetchForecast(ctx, coords)
}

// announcementText builds the spoken line for one alert.
func announcementText(locationName string, rec domain.AlertRecord) string {
	text := fmt.Sprintf("Weather Alert: For %s, %s. %s", locationName, rec.Title, rec.Summary)
	return strings.TrimSpace(text)
}

// describeFetchError maps the error taxonomy to a short reason label for
// logs and events.
func describeFetchError(err error) string {
	switch {
	case errors.Is(err, domain.ErrNetworkTimeout):
		return "network timeout"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "service unavailable"
	case errors.Is(err, domain.ErrLocationNotFound):
		return "location not found"
	default:
		return "error"
	}
}
