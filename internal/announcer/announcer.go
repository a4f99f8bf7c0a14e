// Package announcer serializes spoken output. Announcements from any
// goroutine are queued into two priority bands and delivered one at a time
// by a single worker, so concurrent alert cycles never talk over each other.
package announcer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
	"github.com/couchcryptid/weather-alert-monitor/internal/speech"
)

// Sequencer owns the announcement queue and its delivery worker. High-band
// items drain before Normal-band items, and a High arrival interrupts a
// Normal item mid-utterance. An interrupted item is gone; it does not
// return to the queue.
type Sequencer struct {
	engine  speech.Engine
	logger  *slog.Logger
	metrics *observability.Metrics
	bus     *events.Bus

	mu             sync.Mutex
	high           []domain.Announcement
	normal         []domain.Announcement
	speaking       bool
	current        domain.Priority
	cancelSpeak    context.CancelFunc
	preemptPending bool
	muted          bool
	started        bool
	stopping       bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates a sequencer around a speech engine. Call Start to launch the
// delivery worker.
func New(engine speech.Engine, logger *slog.Logger, metrics *observability.Metrics, bus *events.Bus) *Sequencer {
	return &Sequencer{
		engine:  engine,
		logger:  logger,
		metrics: metrics,
		bus:     bus,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (s *Sequencer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Enqueue adds an announcement to its priority band. It never blocks: the
// worker is woken if idle, and a High item arriving while a Normal item is
// being spoken cuts that item short.
func (s *Sequencer) Enqueue(a domain.Announcement) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.logger.Debug("announcer stopping, dropping announcement", "text", a.Text)
		return
	}

	if a.Priority == domain.PriorityHigh {
		s.high = append(s.high, a)
	} else {
		s.normal = append(s.normal, a)
	}
	s.updateQueueDepth()

	// Holding mu pins the in-flight utterance: the worker cannot pop the
	// next item until we release, so the cancel lands on exactly the
	// Normal item observed here. If its delivery context is not registered
	// yet, the pending flag makes deliver cancel it on registration;
	// either way the interruption cannot outlive this utterance.
	if a.Priority == domain.PriorityHigh && s.speaking && s.current == domain.PriorityNormal {
		s.metrics.AnnouncementsInterrupted.Inc()
		if s.cancelSpeak != nil {
			s.cancelSpeak()
		} else {
			s.preemptPending = true
		}
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SetMuted switches audio output on or off. Muted announcements are still
// dequeued, logged, and published; only the speech call is skipped.
func (s *Sequencer) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted == muted {
		return
	}
	s.muted = muted
	s.logger.Info("audio mute changed", "muted", muted)
}

// Muted reports the current mute state.
func (s *Sequencer) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// QueueLen reports how many announcements are waiting, not counting one
// being spoken.
func (s *Sequencer) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high) + len(s.normal)
}

// Stop drains the remaining queue, lets the current utterance finish, and
// returns once the worker has exited. Announcements enqueued after Stop
// are dropped.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if s.stopping {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopping = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

func (s *Sequencer) run() {
	defer close(s.done)
	for {
		a, ok := s.next()
		if ok {
			s.deliver(a)
			continue
		}
		select {
		case <-s.quit:
			// Items enqueued between the empty check above and the
			// stopping flag taking effect still get spoken.
			for {
				a, ok := s.next()
				if !ok {
					return
				}
				s.deliver(a)
			}
		case <-s.wake:
		}
	}
}

// next pops the head of the High band, falling back to Normal. The speaking
// flag is set while the popped item is held so Enqueue can see what an
// arriving High item would interrupt.
func (s *Sequencer) next() (domain.Announcement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var a domain.Announcement
	switch {
	case len(s.high) > 0:
		a, s.high = s.high[0], s.high[1:]
	case len(s.normal) > 0:
		a, s.normal = s.normal[0], s.normal[1:]
	default:
		s.speaking = false
		return domain.Announcement{}, false
	}

	s.speaking = true
	s.current = a.Priority
	s.updateQueueDepth()
	return a, true
}

func (s *Sequencer) deliver(a domain.Announcement) {
	// Each utterance speaks under its own context; preemption cancels it.
	// The parent is Background so shutdown drains the queue instead of
	// cutting speech mid-word, and cancelling after the utterance finished
	// is a no-op, so a preempt can never carry over to the next item.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	muted := s.muted
	s.cancelSpeak = cancel
	if s.preemptPending {
		s.preemptPending = false
		cancel()
	}
	s.mu.Unlock()

	switch {
	case muted:
		s.logger.Debug("audio muted, would have spoken", "text", a.Text)
	case ctx.Err() != nil:
		s.logger.Debug("announcement interrupted before start", "text", a.Text)
	default:
		if err := s.engine.Speak(ctx, a.Text); err != nil {
			s.logger.Warn("speech failed, continuing", "error", err)
		} else {
			s.metrics.AnnouncementsSpoken.WithLabelValues(a.Priority.String()).Inc()
		}
	}

	s.mu.Lock()
	s.speaking = false
	s.cancelSpeak = nil
	s.preemptPending = false
	s.mu.Unlock()

	s.bus.Publish(events.AnnouncementSpoken{Text: a.Text, Priority: a.Priority, Muted: muted})
}

// updateQueueDepth is called with mu held.
func (s *Sequencer) updateQueueDepth() {
	s.metrics.AnnouncementQueueDepth.Set(float64(len(s.high) + len(s.normal)))
}
