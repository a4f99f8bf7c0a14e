package monitor_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-alert-monitor/internal/dedup"
	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/couchcryptid/weather-alert-monitor/internal/monitor"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
	"github.com/couchcryptid/weather-alert-monitor/internal/settings"
)

const (
	testInterval   = 15 * time.Minute
	testFirstDelay = 100 * time.Millisecond
)

// --- mocks ---

type stubResolver struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (r *stubResolver) Resolve(_ context.Context, token string) (domain.Coordinates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, token)
	if r.fail[token] {
		return domain.Coordinates{}, fmt.Errorf("token %q: %w", token, domain.ErrLocationNotFound)
	}
	return domain.Coordinates{Lat: 38.6273, Lon: -88.9453}, nil
}

type stubAlerts struct {
	mu      sync.Mutex
	feed    []domain.AlertRecord
	calls   int
	started chan struct{} // non-nil: signaled when a fetch begins
	release chan struct{} // non-nil: fetch blocks until closed
}

func (s *stubAlerts) ActiveAlerts(_ context.Context, _ domain.Coordinates) ([]domain.AlertRecord, error) {
	s.mu.Lock()
	s.calls++
	feed := append([]domain.AlertRecord(nil), s.feed...)
	started, release := s.started, s.release
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return feed, nil
}

func (s *stubAlerts) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubForecasts struct {
	mu     sync.Mutex
	bundle domain.ForecastBundle
	err    error
	calls  int
}

func (s *stubForecasts) FetchForecast(_ context.Context, _ domain.Coordinates) (domain.ForecastBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.bundle, s.err
}

func (s *stubForecasts) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAnnouncer struct {
	mu    sync.Mutex
	items []domain.Announcement
}

func (a *stubAnnouncer) Enqueue(an domain.Announcement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, an)
}

func (a *stubAnnouncer) Items() []domain.Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Announcement(nil), a.items...)
}

// --- harness ---

type harness struct {
	clock     *clockwork.FakeClock
	sched     *monitor.Scheduler
	resolver  *stubResolver
	alerts    *stubAlerts
	forecasts *stubForecasts
	announcer *stubAnnouncer
	bus       *events.Bus
	sub       <-chan events.Event
}

func newHarness(t *testing.T, cfg monitor.Config) *harness {
	t.Helper()
	if cfg.Locations == nil {
		cfg.Locations = []settings.Location{{Name: "Salem", Token: "62881"}}
	}
	if cfg.UrgentKeywords == nil {
		cfg.UrgentKeywords = []string{"tornado", "severe thunderstorm", "flash flood warning"}
	}
	cfg.FirstCheckDelay = testFirstDelay

	h := &harness{
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)),
		resolver:  &stubResolver{},
		alerts:    &stubAlerts{},
		forecasts: &stubForecasts{},
		announcer: &stubAnnouncer{},
		bus:       events.NewBus(),
	}
	h.sub = h.bus.Subscribe()

	h.sched = monitor.New(cfg, monitor.Deps{
		Resolver:  h.resolver,
		Alerts:    h.alerts,
		Forecasts: h.forecasts,
		Dedup:     dedup.New(50),
		Announcer: h.announcer,
		Bus:       h.bus,
		Clock:     h.clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   observability.NewMetricsForTesting(),
	})
	t.Cleanup(h.sched.Stop)
	return h
}

// waitForCycle blocks until a cycle other than prevID has completed and
// returns its summary. Completion and re-arm happen atomically, so once
// this returns it is safe to advance the clock toward the next cycle.
func (h *harness) waitForCycle(t *testing.T, prevID string) monitor.LastCycle {
	t.Helper()
	var out monitor.LastCycle
	require.Eventually(t, func() bool {
		lc := h.sched.Status().LastCycle
		if lc == nil || lc.ID == prevID {
			return false
		}
		out = *lc
		return true
	}, 5*time.Second, 10*time.Millisecond, "no cycle completed")
	return out
}

// waitForEvent drains the subscription until match accepts an event. Only
// usable in tests that do not advance the clock by more than a few seconds
// beforehand; countdown ticks would otherwise flood the subscriber buffer.
func (h *harness) waitForEvent(t *testing.T, match func(events.Event) bool) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.sub:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func tornadoRecord(id string) domain.AlertRecord {
	return domain.AlertRecord{
		ID:      id,
		Title:   "Tornado Warning issued April 26",
		Summary: "Take cover now.",
	}
}

// --- tests ---

func TestScheduler_FirstCycleRunsAfterStartDelay(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)

	cycle := h.waitForCycle(t, "")
	assert.Equal(t, 1, cycle.ActiveAlerts)
	assert.Equal(t, 1, cycle.NewAlerts)

	items := h.announcer.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Weather Alert: For Salem, Tornado Warning issued April 26. Take cover now.", items[0].Text)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)

	cd := h.sched.Countdown()
	assert.Equal(t, monitor.StateArmed, cd.State)
	assert.Equal(t, testInterval, cd.Remaining, "countdown should reset to the full interval on completion")
}

func TestScheduler_SeenAlertsAreNotReannounced(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	first := h.waitForCycle(t, "")

	h.clock.Advance(testInterval)
	second := h.waitForCycle(t, first.ID)

	assert.Equal(t, 2, h.alerts.Calls())
	assert.Equal(t, 1, second.ActiveAlerts)
	assert.Equal(t, 0, second.NewAlerts, "second cycle should see no new alerts")
	assert.Len(t, h.announcer.Items(), 1)
}

func TestScheduler_NonUrgentAlertGetsNormalPriority(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{{ID: "urn:2", Title: "Dense Fog Advisory", Summary: "Low visibility."}}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	items := h.announcer.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.PriorityNormal, items[0].Priority)
}

func TestScheduler_RepeaterLineSpokenOncePerCycle(t *testing.T) {
	h := newHarness(t, monitor.Config{
		Announce:     true,
		AutoRefresh:  true,
		RepeaterInfo: "Repeater, WSDR538 Salem 462.550Mhz",
	})

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	items := h.announcer.Items()
	require.Len(t, items, 1, "empty feed should still produce the identification line")
	assert.Equal(t, "Repeater, WSDR538 Salem 462.550Mhz", items[0].Text)
	assert.Equal(t, domain.PriorityNormal, items[0].Priority)
}

func TestScheduler_AnnounceDisabledStillSuppressesLater(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: false, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	first := h.waitForCycle(t, "")
	assert.Empty(t, h.announcer.Items(), "announcing is off")

	// Turning announcements on must not replay the alert seen while off.
	h.sched.SetFlags(true, true)
	h.clock.Advance(testInterval)
	h.waitForCycle(t, first.ID)
	assert.Empty(t, h.announcer.Items())
}

func TestScheduler_StartsPausedWhenFlagsOff(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: false, AutoRefresh: false})

	require.NoError(t, h.sched.Start(testInterval))

	cd := h.sched.Countdown()
	assert.Equal(t, monitor.StatePaused, cd.State)
	assert.Equal(t, "--:-- (Paused)", cd.String())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.alerts.Calls(), "paused scheduler must not run cycles")
}

func TestScheduler_SetFlagsOffPausesArmedScheduler(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	require.NoError(t, h.sched.Start(testInterval))

	h.sched.SetFlags(false, false)

	ev := h.waitForEvent(t, func(ev events.Event) bool {
		tick, ok := ev.(events.CountdownTick)
		return ok && tick.Paused
	})
	assert.True(t, ev.(events.CountdownTick).Paused)
	assert.Equal(t, monitor.StatePaused, h.sched.Countdown().State)

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.alerts.Calls(), "pending timer should be cancelled on pause")
}

func TestScheduler_SetFlagsOnReArmsWithImmediateCheck(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: false, AutoRefresh: false})
	require.NoError(t, h.sched.Start(testInterval))
	require.Equal(t, monitor.StatePaused, h.sched.Countdown().State)

	h.sched.SetFlags(true, false)
	require.Equal(t, monitor.StateArmed, h.sched.Countdown().State)

	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")
	assert.Equal(t, 1, h.alerts.Calls())
}

func TestScheduler_RunOnceWhilePausedStaysPaused(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: false, AutoRefresh: false})
	require.NoError(t, h.sched.Start(testInterval))

	h.sched.RunOnce()
	h.waitForCycle(t, "")

	assert.Equal(t, 1, h.alerts.Calls())
	assert.Equal(t, monitor.StatePaused, h.sched.Countdown().State)

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.alerts.Calls(), "manual run must not arm the scheduler")
}

func TestScheduler_RunOnceWhileArmedReplacesPendingTimer(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	require.NoError(t, h.sched.Start(testInterval))

	h.sched.RunOnce()
	first := h.waitForCycle(t, "")
	require.Equal(t, 1, h.alerts.Calls())

	// The original first-check timer was cancelled; only the re-armed
	// full-interval timer remains.
	h.clock.Advance(testFirstDelay)
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.alerts.Calls())

	h.clock.Advance(testInterval)
	h.waitForCycle(t, first.ID)
	assert.Equal(t, 2, h.alerts.Calls())
}

func TestScheduler_CountdownTicksWhileArmed(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	for i := 1; i <= 3; i++ {
		h.clock.Advance(time.Second)
		want := testInterval - time.Duration(i)*time.Second
		require.Eventually(t, func() bool {
			return h.sched.Countdown().Remaining == want
		}, 2*time.Second, 10*time.Millisecond, "tick %d", i)
	}
	assert.Equal(t, "14:57", h.sched.Countdown().String())
}

func TestScheduler_ReconfigureWhileArmedRestartsCountdown(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	require.NoError(t, h.sched.Start(testInterval))

	h.sched.Reconfigure(5 * time.Minute)

	cd := h.sched.Countdown()
	assert.Equal(t, 5*time.Minute, cd.Remaining)
	assert.Equal(t, monitor.StateArmed, cd.State)

	// The first-check timer was replaced by the fresh full countdown.
	h.clock.Advance(testFirstDelay)
	h.clock.Advance(time.Second)
	assert.Equal(t, 0, h.alerts.Calls())

	h.clock.Advance(5 * time.Minute)
	h.waitForCycle(t, "")
	assert.Equal(t, 1, h.alerts.Calls())
}

func TestScheduler_ResolutionFailureSkipsLocation(t *testing.T) {
	h := newHarness(t, monitor.Config{
		Announce:    true,
		AutoRefresh: true,
		Locations: []settings.Location{
			{Name: "Nowhere", Token: "XXXX"},
			{Name: "Salem", Token: "62881"},
		},
	})
	h.resolver.fail = map[string]bool{"XXXX": true}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)

	failed := h.waitForEvent(t, func(ev events.Event) bool {
		_, ok := ev.(events.ResolutionFailed)
		return ok
	}).(events.ResolutionFailed)
	assert.Equal(t, "Nowhere", failed.Location)
	assert.Equal(t, "XXXX", failed.Token)
	assert.Equal(t, "location not found", failed.Reason)

	h.waitForCycle(t, "")
	assert.Equal(t, 1, h.alerts.Calls(), "only the resolvable location is checked")
	assert.Equal(t, monitor.StateArmed, h.sched.Countdown().State, "failure must not stop rescheduling")
}

func TestScheduler_ForecastFetchedForPrimaryOnly(t *testing.T) {
	h := newHarness(t, monitor.Config{
		Announce:    true,
		AutoRefresh: true,
		Locations: []settings.Location{
			{Name: "Salem", Token: "62881"},
			{Name: "Louisville", Token: "SDF"},
		},
	})
	h.forecasts.bundle = domain.ForecastBundle{
		Daily:       []domain.ForecastPeriod{{ShortForecast: "Sunny"}},
		RetrievedAt: time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC),
	}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	assert.Equal(t, 2, h.alerts.Calls())
	assert.Equal(t, 1, h.forecasts.Calls())

	status := h.sched.Status()
	require.Len(t, status.Forecast.Daily, 1)
	assert.Equal(t, "Sunny", status.Forecast.Daily[0].ShortForecast)
}

func TestScheduler_ForecastSkippedWhenAutoRefreshOff(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: false})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	assert.Equal(t, 1, h.alerts.Calls(), "alerts are still checked while announce is on")
	assert.Equal(t, 0, h.forecasts.Calls(), "forecast refresh follows the auto-refresh flag")
}

func TestScheduler_PublishesCycleEvents(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)

	started := h.waitForEvent(t, func(ev events.Event) bool {
		_, ok := ev.(events.CycleStarted)
		return ok
	}).(events.CycleStarted)
	require.NotEmpty(t, started.CycleID)

	updated := h.waitForEvent(t, func(ev events.Event) bool {
		_, ok := ev.(events.AlertsUpdated)
		return ok
	}).(events.AlertsUpdated)
	assert.Equal(t, "Salem", updated.Location)
	assert.Equal(t, 1, updated.Active)
	assert.Equal(t, 1, updated.New)

	completed := h.waitForEvent(t, func(ev events.Event) bool {
		_, ok := ev.(events.CycleCompleted)
		return ok
	}).(events.CycleCompleted)
	assert.Equal(t, started.CycleID, completed.CycleID)
	assert.Equal(t, 1, completed.NewAlerts)
}

func TestScheduler_StopWaitsForInFlightCycle(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.started = make(chan struct{}, 1)
	h.alerts.release = make(chan struct{})

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	<-h.alerts.started

	stopDone := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while a cycle was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(h.alerts.release)
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}

	assert.Equal(t, monitor.StatePaused, h.sched.Countdown().State)
	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.alerts.Calls(), "stopped scheduler must not re-arm")
}

func TestScheduler_StartValidation(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})

	require.Error(t, h.sched.Start(0))
	require.NoError(t, h.sched.Start(testInterval))
	require.Error(t, h.sched.Start(testInterval), "second start must fail")
}

func TestScheduler_CheckReadiness(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	require.NoError(t, h.sched.Start(testInterval))

	require.Error(t, h.sched.CheckReadiness(context.Background()))

	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")
	assert.NoError(t, h.sched.CheckReadiness(context.Background()))
}

func TestScheduler_StatusSnapshot(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	h.waitForCycle(t, "")

	status := h.sched.Status()
	assert.Equal(t, "armed", status.State)
	assert.Equal(t, "15:00", status.Countdown)
	assert.Equal(t, "15m0s", status.Interval)
	assert.True(t, status.Announce)
	assert.Equal(t, []string{"Salem"}, status.Locations)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, 1, status.LastCycle.ActiveAlerts)
	assert.Equal(t, 1, status.LastCycle.NewAlerts)
}

func TestCountdown_String(t *testing.T) {
	assert.Equal(t, "--:-- (Paused)", monitor.Countdown{State: monitor.StatePaused}.String())
	assert.Equal(t, "01:30", monitor.Countdown{Remaining: 90 * time.Second, State: monitor.StateArmed}.String())
	assert.Equal(t, "00:00", monitor.Countdown{Remaining: 0, State: monitor.StateRunning}.String())
	assert.Equal(t, "15:00", monitor.Countdown{Remaining: 15 * time.Minute, State: monitor.StateArmed}.String())
}

func TestScheduler_RunOnceWhileRunningCollapses(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.started = make(chan struct{}, 1)
	h.alerts.release = make(chan struct{})

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	<-h.alerts.started
	require.Equal(t, monitor.StateRunning, h.sched.Countdown().State)

	// Manual triggers while a cycle is mid-fetch collapse into it instead
	// of stacking further cycles.
	h.sched.RunOnce()
	h.sched.RunOnce()
	h.sched.RunOnce()

	close(h.alerts.release)
	h.waitForCycle(t, "")

	assert.Equal(t, 1, h.alerts.Calls(), "collapsed manual checks must not run extra fetches")
	assert.Equal(t, monitor.StateArmed, h.sched.Countdown().State)
}

func TestScheduler_FlagsDropMidCycleStillAnnounces(t *testing.T) {
	h := newHarness(t, monitor.Config{Announce: true, AutoRefresh: true})
	h.alerts.feed = []domain.AlertRecord{tornadoRecord("urn:1")}
	h.alerts.started = make(chan struct{}, 1)
	h.alerts.release = make(chan struct{})

	require.NoError(t, h.sched.Start(testInterval))
	h.clock.Advance(testFirstDelay)
	<-h.alerts.started

	// Disabling both flags mid-cycle never aborts the cycle: a partially
	// announced alert would be lost forever once it is marked seen.
	h.sched.SetFlags(false, false)
	close(h.alerts.release)
	h.waitForCycle(t, "")

	items := h.announcer.Items()
	require.Len(t, items, 1, "the in-flight cycle's announcement must still be delivered")
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)

	assert.Equal(t, monitor.StatePaused, h.sched.Countdown().State, "flags off takes effect at cycle completion")
	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.alerts.Calls(), "paused scheduler must not run further cycles")
}
