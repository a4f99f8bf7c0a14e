// Package settings holds the user-editable monitor settings: which locations
// to watch, how often, and how alerts are announced. Unlike the process
// config, this file is expected to change while the daemon runs; the Watcher
// applies edits without a restart.
package settings

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Location is one watched location. Token is whatever the user typed:
// a 5-digit postal code or a station/airport identifier.
type Location struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// Duration wraps time.Duration so the settings file can say "15m" or "90s".
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value %q", node.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Settings is the full contents of the settings file. The first location is
// the primary one: its forecast and radar view are refreshed each cycle.
type Settings struct {
	Locations      []Location `yaml:"locations"`
	CheckInterval  Duration   `yaml:"check_interval"`
	AnnounceAlerts bool       `yaml:"announce_alerts"`
	AutoRefresh    bool       `yaml:"auto_refresh"`
	MuteAudio      bool       `yaml:"mute_audio"`
	RepeaterInfo   string     `yaml:"repeater_info"`
	UrgentKeywords []string   `yaml:"urgent_keywords"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		Locations:      []Location{{Name: "Salem", Token: "62881"}},
		CheckInterval:  Duration(15 * time.Minute),
		AnnounceAlerts: true,
		AutoRefresh:    true,
		RepeaterInfo:   "Repeater, WSDR538 Salem 462.550Mhz",
		UrgentKeywords: []string{"tornado", "severe thunderstorm", "flash flood warning"},
	}
}

// Interval returns the check interval as a plain time.Duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.CheckInterval)
}

// Active reports whether the scheduler should run at all: either announcing
// or auto-refresh keeps it armed, both off pauses it.
func (s Settings) Active() bool {
	return s.AnnounceAlerts || s.AutoRefresh
}

// Primary returns the first configured location.
func (s Settings) Primary() (Location, bool) {
	if len(s.Locations) == 0 {
		return Location{}, false
	}
	return s.Locations[0], true
}

// Validate checks the constraints the scheduler depends on.
func (s Settings) Validate() error {
	if len(s.Locations) == 0 {
		return errors.New("settings: at least one location is required")
	}
	for i, loc := range s.Locations {
		if loc.Token == "" {
			return fmt.Errorf("settings: location %d (%q) has an empty token", i, loc.Name)
		}
	}
	if s.Interval() <= 0 {
		return fmt.Errorf("settings: check_interval must be positive, got %s", s.Interval())
	}
	return nil
}

// Load reads the settings file. A missing file yields the defaults so a
// fresh install starts monitoring without any setup.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the settings file, creating it if needed.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
