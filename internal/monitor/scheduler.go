// Package monitor runs the periodic check cycle: resolve each watched
// location, pull its active alerts, queue announcements for the new ones,
// and refresh the primary location's forecast. A countdown ticker keeps
// subscribers informed between cycles.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
	"github.com/couchcryptid/weather-alert-monitor/internal/settings"
)

const (
	defaultFirstCheckDelay = 100 * time.Millisecond
	defaultFetchTimeout    = 10 * time.Second
)

// State is the scheduler's lifecycle state. Paused means both the announce
// and auto-refresh flags are off; Armed means a cycle is scheduled; Running
// means one is executing right now.
type State int

const (
	StatePaused State = iota
	StateArmed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	default:
		return "paused"
	}
}

// Countdown is the time left until the next cycle, formatted the way the
// status display shows it.
type Countdown struct {
	Remaining time.Duration
	State     State
}

func (c Countdown) String() string {
	if c.State == StatePaused {
		return "--:-- (Paused)"
	}
	total := int(c.Remaining.Round(time.Second).Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// LastCycle summarizes the most recently completed check cycle.
type LastCycle struct {
	ID           string        `json:"id"`
	CompletedAt  time.Time     `json:"completed_at"`
	ActiveAlerts int           `json:"active_alerts"`
	NewAlerts    int           `json:"new_alerts"`
	Duration     time.Duration `json:"duration"`
}

// Status is a point-in-time snapshot of the scheduler for the HTTP API.
type Status struct {
	State       string                `json:"state"`
	Countdown   string                `json:"countdown"`
	Interval    string                `json:"interval"`
	Announce    bool                  `json:"announce"`
	AutoRefresh bool                  `json:"auto_refresh"`
	Locations   []string              `json:"locations"`
	LastCycle   *LastCycle            `json:"last_cycle,omitempty"`
	Forecast    domain.ForecastBundle `json:"forecast"`
}

// CoordinateResolver turns a location token into coordinates.
type CoordinateResolver interface {
	Resolve(ctx context.Context, token string) (domain.Coordinates, error)
}

// AlertSource fetches the alerts active at a point.
type AlertSource interface {
	ActiveAlerts(ctx context.Context, coords domain.Coordinates) ([]domain.AlertRecord, error)
}

// ForecastSource fetches the forecast bundle for a point.
type ForecastSource interface {
	FetchForecast(ctx context.Context, coords domain.Coordinates) (domain.ForecastBundle, error)
}

// Deduplicator separates new alerts from already-handled ones.
type Deduplicator interface {
	Filter(records []domain.AlertRecord) []domain.AlertRecord
	MarkSeen(rec domain.AlertRecord)
}

// Announcer accepts announcements for spoken delivery.
type Announcer interface {
	Enqueue(a domain.Announcement)
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Resolver  CoordinateResolver
	Alerts    AlertSource
	Forecasts ForecastSource
	Dedup     Deduplicator
	Announcer Announcer
	Bus       *events.Bus
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Config carries the scheduler's initial settings and process-level knobs.
type Config struct {
	FirstCheckDelay time.Duration
	FetchTimeout    time.Duration
	Announce        bool
	AutoRefresh     bool
	Locations       []settings.Location
	UrgentKeywords  []string
	RepeaterInfo    string
}

// Scheduler drives the check cycles. All state transitions happen under mu;
// cycles run on their own goroutine so accessors and the countdown ticker
// stay responsive while fetches are in flight.
type Scheduler struct {
	deps            Deps
	firstCheckDelay time.Duration
	fetchTimeout    time.Duration

	mu             sync.Mutex
	state          State
	interval       time.Duration
	remaining      time.Duration
	announce       bool
	autoRefresh    bool
	locations      []settings.Location
	urgentKeywords []string
	repeaterInfo   string
	started        bool

	cycleTimer clockwork.Timer
	timerGen   uint64

	tickQuit chan struct{}
	tickDone chan struct{}

	cycleWG sync.WaitGroup
	ready   atomic.Bool

	lastCycle    *LastCycle
	lastForecast domain.ForecastBundle
}

// New creates a scheduler. Call Start to arm it.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.FirstCheckDelay <= 0 {
		cfg.FirstCheckDelay = defaultFirstCheckDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Scheduler{
		deps:            deps,
		firstCheckDelay: cfg.FirstCheckDelay,
		fetchTimeout:    cfg.FetchTimeout,
		announce:        cfg.Announce,
		autoRefresh:     cfg.AutoRefresh,
		locations:       append([]settings.Location(nil), cfg.Locations...),
		urgentKeywords:  append([]string(nil), cfg.UrgentKeywords...),
		repeaterInfo:    cfg.RepeaterInfo,
	}
}

// Start arms the scheduler with the given interval and launches the
// countdown ticker. The first cycle runs almost immediately; subsequent
// cycles wait the full interval after each completion.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.interval = interval

	s.tickQuit = make(chan struct{})
	s.tickDone = make(chan struct{})
	go s.tickLoop(s.deps.Clock.NewTicker(time.Second), s.tickQuit, s.tickDone)

	if s.activeLocked() {
		s.remaining = interval
		s.setStateLocked(StateArmed)
		s.armLocked(s.firstCheckDelay)
		s.deps.Logger.Info("scheduler started", "interval", interval, "first_check_delay", s.firstCheckDelay)
	} else {
		s.setStateLocked(StatePaused)
		s.deps.Logger.Info("scheduler started paused", "interval", interval)
	}
	return nil
}

// Stop disarms the scheduler and waits for an in-flight cycle to finish.
// The cycle is not cancelled: its fetches run under their own timeouts and
// its announcements still reach the queue. Start may be called again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.disarmLocked()
	s.setStateLocked(StatePaused)
	s.remaining = 0
	tickQuit, tickDone := s.tickQuit, s.tickDone
	s.mu.Unlock()

	close(tickQuit)
	<-tickDone
	s.cycleWG.Wait()
	s.deps.Logger.Info("scheduler stopped")
}

// Reconfigure applies a new check interval. An armed countdown restarts
// from the full new interval; a running cycle picks it up on completion.
// The same interval is a no-op.
func (s *Scheduler) Reconfigure(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return
	}
	old := s.interval
	s.interval = interval

	if s.started && s.state == StateArmed {
		s.remaining = interval
		s.armLocked(interval)
	}
	s.deps.Logger.Info("check interval changed", "from", old, "to", interval)
}

// RunOnce triggers an immediate cycle. A pending countdown is cancelled in
// favor of the immediate run; a request during a running cycle collapses
// into it. In the paused state the cycle runs once and the scheduler stays
// paused afterwards.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.deps.Logger.Warn("manual check requested before scheduler start")
		return
	}

	switch s.state {
	case StateRunning:
		s.deps.Logger.Debug("manual check requested during cycle, collapsed")
	case StateArmed, StatePaused:
		s.disarmLocked()
		s.launchCycleLocked()
	}
}

// SetFlags applies the announce and auto-refresh switches. Both off pauses
// the scheduler; switching back on re-arms it with a near-immediate first
// check. A cycle already running is unaffected and re-evaluates the flags
// when it completes.
func (s *Scheduler) SetFlags(announce, autoRefresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.announce == announce && s.autoRefresh == autoRefresh {
		return
	}
	s.announce = announce
	s.autoRefresh = autoRefresh
	s.deps.Logger.Info("flags changed", "announce", announce, "auto_refresh", autoRefresh)

	if !s.started {
		return
	}

	switch {
	case !s.activeLocked() && s.state == StateArmed:
		s.disarmLocked()
		s.setStateLocked(StatePaused)
		s.remaining = 0
		s.deps.Bus.Publish(events.CountdownTick{Remaining: 0, Paused: true})
	case s.activeLocked() && s.state == StatePaused:
		s.remaining = s.interval
		s.setStateLocked(StateArmed)
		s.armLocked(s.firstCheckDelay)
	}
}

// SetLocations replaces the watched-location roster. Takes effect on the
// next cycle.
func (s *Scheduler) SetLocations(locations []settings.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations = append([]settings.Location(nil), locations...)
}

// SetUrgentKeywords replaces the keywords that promote an alert to a
// high-priority announcement.
func (s *Scheduler) SetUrgentKeywords(keywords []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urgentKeywords = append([]string(nil), keywords...)
}

// SetRepeaterInfo replaces the identification line spoken at the end of
// each announcing cycle. Empty disables it.
func (s *Scheduler) SetRepeaterInfo(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeaterInfo = line
}

// Apply pushes a freshly loaded settings file into the scheduler.
func (s *Scheduler) Apply(st settings.Settings) {
	s.SetLocations(st.Locations)
	s.SetUrgentKeywords(st.UrgentKeywords)
	s.SetRepeaterInfo(st.RepeaterInfo)
	s.SetFlags(st.AnnounceAlerts, st.AutoRefresh)
	s.Reconfigure(st.Interval())
}

// Countdown reports the time until the next cycle.
func (s *Scheduler) Countdown() Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Countdown{Remaining: s.remaining, State: s.state}
}

// Status assembles the scheduler snapshot for the HTTP API.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.locations))
	for i, loc := range s.locations {
		names[i] = loc.Name
	}

	st := Status{
		State:       s.state.String(),
		Countdown:   Countdown{Remaining: s.remaining, State: s.state}.String(),
		Interval:    s.interval.String(),
		Announce:    s.announce,
		AutoRefresh: s.autoRefresh,
		Locations:   names,
		Forecast:    s.lastForecast,
	}
	if s.lastCycle != nil {
		lc := *s.lastCycle
		st.LastCycle = &lc
	}
	return st
}

// CheckReadiness returns nil once at least one check cycle has completed,
// or an error describing why the service is not yet ready.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no check cycle has completed yet")
	}
	return nil
}

// activeLocked reports whether either flag keeps the scheduler armed.
// Callers hold mu.
func (s *Scheduler) activeLocked() bool {
	return s.announce || s.autoRefresh
}

// setStateLocked transitions the state and mirrors it into the gauge.
// Callers hold mu.
func (s *Scheduler) setStateLocked(st State) {
	s.state = st
	s.deps.Metrics.SchedulerState.Set(float64(st))
}

// armLocked schedules the cycle timer d from now, replacing any pending
// timer. The generation counter keeps a stale timer that fires during
// replacement from starting a cycle. Callers hold mu.
func (s *Scheduler) armLocked(d time.Duration) {
	if s.cycleTimer != nil {
		s.cycleTimer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.cycleTimer = s.deps.Clock.AfterFunc(d, func() { s.timerFired(gen) })
}

// disarmLocked cancels the pending cycle timer, if any. Callers hold mu.
func (s *Scheduler) disarmLocked() {
	if s.cycleTimer != nil {
		s.cycleTimer.Stop()
		s.cycleTimer = nil
	}
	s.timerGen++
}

// launchCycleLocked transitions to Running and starts the cycle goroutine.
// The WaitGroup is incremented under mu so Stop cannot miss the cycle.
// Callers hold mu.
func (s *Scheduler) launchCycleLocked() {
	s.setStateLocked(StateRunning)
	s.remaining = 0
	cfg := s.cycleConfigLocked()
	s.cycleWG.Add(1)
	go func() {
		defer s.cycleWG.Done()
		s.runCycle(cfg)
	}()
}

func (s *Scheduler) timerFired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.state != StateArmed || gen != s.timerGen {
		return
	}
	s.launchCycleLocked()
}

// tickLoop decrements the countdown once per second while armed and
// publishes the current reading for status subscribers.
func (s *Scheduler) tickLoop(ticker clockwork.Ticker, quit chan struct{}, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.state == StateArmed {
		s.remaining -= time.Second
		if s.remaining < 0 {
			s.remaining = 0
		}
	}
	remaining := s.remaining
	paused := s.state == StatePaused
	s.mu.Unlock()

	s.deps.Metrics.CountdownSeconds.Set(remaining.Seconds())
	s.deps.Bus.Publish(events.CountdownTick{Remaining: remaining, Paused: paused})
}
