// Package speech runs announcements through an external text-to-speech
// command, degrading to log-only output when none is configured or usable.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
)

// Engine speaks one announcement at a time. Cancelling the Speak context
// interrupts that utterance and only that utterance, even if it has not
// started yet; an interrupted Speak returns nil. Stop kills whatever is
// speaking right now.
type Engine interface {
	Speak(ctx context.Context, text string) error
	Stop()
	Busy() bool
}

// Select picks the engine for the configured speech command. Anything that
// prevents the command from running — empty config, bad quoting, binary not
// on PATH — degrades to the log-only engine rather than failing startup.
func Select(command string, logger *slog.Logger) Engine {
	if strings.TrimSpace(command) == "" {
		logger.Info("no speech command configured, announcements will be logged only")
		return NewNull(logger)
	}

	words, err := shellquote.Split(command)
	if err != nil || len(words) == 0 {
		logger.Warn("unparseable speech command, falling back to log-only announcements",
			"command", command, "error", err)
		return NewNull(logger)
	}

	path, err := exec.LookPath(words[0])
	if err != nil {
		logger.Warn("speech command not found, falling back to log-only announcements",
			"command", words[0], "error", err)
		return NewNull(logger)
	}

	return NewCommand(path, words[1:], logger)
}

// NullEngine logs announcements instead of speaking them.
type NullEngine struct {
	logger *slog.Logger
}

// NewNull creates the log-only engine.
func NewNull(logger *slog.Logger) *NullEngine {
	return &NullEngine{logger: logger}
}

func (e *NullEngine) Speak(_ context.Context, text string) error {
	e.logger.Info("announcement", "text", text)
	return nil
}

func (e *NullEngine) Stop() {}

// Busy is always false: logging an announcement is instantaneous.
func (e *NullEngine) Busy() bool { return false }

// CommandEngine speaks by running an external command once per utterance,
// with the announcement text appended as the final argument.
type CommandEngine struct {
	path   string
	args   []string
	logger *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
	stopped bool
}

// NewCommand creates an engine around the resolved command path and its
// fixed leading arguments.
func NewCommand(path string, args []string, logger *slog.Logger) *CommandEngine {
	return &CommandEngine{path: path, args: args, logger: logger}
}

// Speak runs the command and waits for it to finish. A run cut short by
// Stop or by context cancellation is a successful interruption, not an
// error; a cancellation that lands before the process starts kills it on
// startup.
func (e *CommandEngine) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, e.path, append(slices.Clone(e.args), text)...)
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			e.logger.Debug("speech interrupted before start", "text", text)
			return nil
		}
		return fmt.Errorf("start speech command %q: %w (%v)", e.path, domain.ErrSpeechUnavailable, err)
	}

	e.mu.Lock()
	e.current = cmd
	e.stopped = false
	e.mu.Unlock()

	err := cmd.Wait()

	e.mu.Lock()
	interrupted := e.stopped
	e.current = nil
	e.mu.Unlock()

	if err != nil {
		if interrupted || ctx.Err() != nil {
			e.logger.Debug("speech interrupted", "text", text)
			return nil
		}
		return fmt.Errorf("speech command %q: %w (%v)", e.path, domain.ErrSpeechUnavailable, err)
	}
	return nil
}

// Stop kills the in-flight command, if any. With nothing running it is a
// no-op: interruptions that have to race the process launch go through the
// Speak context instead, which stays scoped to its own utterance.
func (e *CommandEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Process != nil {
		e.stopped = true
		_ = e.current.Process.Kill()
	}
}

// Busy reports whether an utterance is currently in flight.
func (e *CommandEngine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}
