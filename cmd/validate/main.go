// validate checks a monitor deployment before it runs: the environment
// config, the settings file, the shape of every location token, and the
// history database. Each phase prints pass/fail with the reasons; the exit
// code is non-zero when any phase failed.
//
//	go run ./cmd/validate
//	go run ./cmd/validate -settings /etc/monitor/settings.yaml -skip-db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/weather-alert-monitor/internal/config"
	"github.com/couchcryptid/weather-alert-monitor/internal/history"
	"github.com/couchcryptid/weather-alert-monitor/internal/settings"
)

type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	settingsPath := flag.String("settings", "", "settings file to validate (default: SETTINGS_PATH)")
	historyPath := flag.String("history", "", "history database to check (default: HISTORY_DB_PATH)")
	skipDB := flag.Bool("skip-db", false, "skip the history database phase")
	flag.Parse()

	os.Exit(run(*settingsPath, *historyPath, *skipDB))
}

func run(settingsPath, historyPath string, skipDB bool) int {
	var phases []*phase

	cfgPhase, cfg := validateConfig()
	phases = append(phases, cfgPhase)

	if cfg != nil {
		if settingsPath == "" {
			settingsPath = cfg.SettingsPath
		}
		if historyPath == "" {
			historyPath = cfg.HistoryPath
		}
	}

	stPhase, st := validateSettings(settingsPath)
	phases = append(phases, stPhase)

	if st != nil {
		phases = append(phases, validateTokens(st))
	}

	if !skipDB && historyPath != "" {
		phases = append(phases, validateHistory(historyPath))
	}

	failed := 0
	for _, p := range phases {
		report(p)
		if !p.passed() {
			failed++
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d phases failed\n", failed, len(phases))
		return 1
	}
	fmt.Printf("\nall %d phases passed\n", len(phases))
	return 0
}

func validateConfig() (*phase, *config.Config) {
	p := &phase{name: "environment config"}
	cfg, err := config.Load()
	if err != nil {
		p.errorf("%v", err)
		return p, nil
	}
	p.notef("http %s, nws %s, geocode %s", cfg.HTTPAddr, cfg.NWSBaseURL, cfg.GeocodeBaseURL)
	if cfg.SpeechCommand == "" {
		p.notef("no speech command configured: announcements will be log-only")
	}
	return p, cfg
}

func validateSettings(path string) (*phase, *settings.Settings) {
	p := &phase{name: "settings file"}
	if path == "" {
		p.errorf("no settings path given and SETTINGS_PATH is unset")
		return p, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		p.notef("%s does not exist: the monitor will start with defaults", path)
	}

	st, err := settings.Load(path)
	if err != nil {
		p.errorf("%v", err)
		return p, nil
	}
	if err := st.Validate(); err != nil {
		p.errorf("%v", err)
		return p, nil
	}

	p.notef("%d location(s), interval %s, announce=%t auto_refresh=%t",
		len(st.Locations), st.Interval(), st.AnnounceAlerts, st.AutoRefresh)
	if !st.Active() {
		p.notef("both announce_alerts and auto_refresh are off: the scheduler will start paused")
	}
	if len(st.UrgentKeywords) == 0 {
		p.notef("no urgent keywords: every alert will be announced at normal priority")
	}
	return p, &st
}

var (
	zipPattern         = regexp.MustCompile(`^\d{5}$`)
	threeAlphaPattern  = regexp.MustCompile(`^[A-Za-z]{3}$`)
	fourAlnumPattern   = regexp.MustCompile(`^[A-Za-z0-9]{4}$`)
	duplicateTokenNote = "duplicate of location %d"
)

// validateTokens classifies each token the way the resolver will interpret
// it, catching strings that cannot match any resolution strategy before the
// daemon burns a cycle on them.
func validateTokens(st *settings.Settings) *phase {
	p := &phase{name: "location tokens"}
	seen := make(map[string]int)

	for i, loc := range st.Locations {
		token := strings.TrimSpace(loc.Token)
		label := fmt.Sprintf("location %d (%q)", i, loc.Name)

		if prev, ok := seen[strings.ToUpper(token)]; ok {
			p.notef(label+": "+duplicateTokenNote, prev)
		}
		seen[strings.ToUpper(token)] = i

		switch {
		case zipPattern.MatchString(token):
			p.notef("%s: postal code %s", label, token)
		case threeAlphaPattern.MatchString(token):
			p.notef("%s: airport code %s, station lookup will try K%s then %s",
				label, token, strings.ToUpper(token), strings.ToUpper(token))
		case fourAlnumPattern.MatchString(token):
			p.notef("%s: station id %s", label, strings.ToUpper(token))
		default:
			p.errorf("%s: token %q is neither a 5-digit postal code, a 3-letter airport code, nor a 4-character station id",
				label, loc.Token)
		}
	}
	return p
}

func validateHistory(path string) *phase {
	p := &phase{name: "history database"}

	store, err := history.Open(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := store.Load(ctx)
	if err != nil {
		p.errorf("load: %v", err)
		return p
	}
	p.notef("%d seen id(s), %d history record(s)", len(snap.SeenIDs), len(snap.History))

	ids := make(map[string]struct{}, len(snap.SeenIDs))
	for _, id := range snap.SeenIDs {
		ids[id] = struct{}{}
	}
	for _, rec := range snap.History {
		if _, ok := ids[rec.ID]; !ok {
			p.errorf("history record %q is missing from the seen set", rec.ID)
		}
	}
	return p
}

func report(p *phase) {
	status := "PASS"
	if !p.passed() {
		status = "FAIL"
	}
	fmt.Printf("[%s] %s\n", status, p.name)
	for _, n := range p.notes {
		fmt.Printf("       %s\n", n)
	}
	for _, e := range p.errors {
		fmt.Printf("    !! %s\n", e)
	}
}
