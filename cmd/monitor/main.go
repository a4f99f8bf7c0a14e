package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-alert-monitor/internal/adapter/httpapi"
	"github.com/couchcryptid/weather-alert-monitor/internal/adapter/nws"
	"github.com/couchcryptid/weather-alert-monitor/internal/adapter/postal"
	"github.com/couchcryptid/weather-alert-monitor/internal/announcer"
	"github.com/couchcryptid/weather-alert-monitor/internal/config"
	"github.com/couchcryptid/weather-alert-monitor/internal/dedup"
	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/couchcryptid/weather-alert-monitor/internal/history"
	"github.com/couchcryptid/weather-alert-monitor/internal/monitor"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
	"github.com/couchcryptid/weather-alert-monitor/internal/resolver"
	"github.com/couchcryptid/weather-alert-monitor/internal/settings"
	"github.com/couchcryptid/weather-alert-monitor/internal/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		logger.Error("failed to load settings", "path", cfg.SettingsPath, "error", err)
		os.Exit(1)
	}
	logger.Info("settings loaded",
		"path", cfg.SettingsPath,
		"locations", len(st.Locations),
		"interval", st.Interval(),
		"announce", st.AnnounceAlerts,
		"auto_refresh", st.AutoRefresh,
	)

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logger.Error("failed to open history store", "path", cfg.HistoryPath, "error", err)
		os.Exit(1)
	}

	deduplicator := dedup.New(cfg.HistoryLimit)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	snap, err := store.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Warn("failed to load alert history, starting empty", "error", err)
	} else {
		deduplicator.Restore(snap)
		logger.Info("alert history restored", "seen", len(snap.SeenIDs), "history", len(snap.History))
	}

	bus := events.NewBus()

	engine := speech.Select(cfg.SpeechCommand, logger)
	sequencer := announcer.New(engine, logger, metrics, bus)
	sequencer.SetMuted(st.MuteAudio)
	sequencer.Start()

	nwsClient := nws.NewClient(cfg.NWSBaseURL, cfg.UserAgent, cfg.FetchTimeout, logger, metrics)
	postalClient := postal.NewClient(cfg.GeocodeBaseURL, cfg.UserAgent, cfg.FetchTimeout, logger, metrics)
	coords := resolver.NewCached(resolver.New(postalClient, nwsClient, logger), metrics)

	scheduler := monitor.New(monitor.Config{
		FirstCheckDelay: cfg.FirstCheckDelay,
		FetchTimeout:    cfg.FetchTimeout,
		Announce:        st.AnnounceAlerts,
		AutoRefresh:     st.AutoRefresh,
		Locations:       st.Locations,
		UrgentKeywords:  st.UrgentKeywords,
		RepeaterInfo:    st.RepeaterInfo,
	}, monitor.Deps{
		Resolver:  coords,
		Alerts:    nwsClient,
		Forecasts: nwsClient,
		Dedup:     deduplicator,
		Announcer: sequencer,
		Bus:       bus,
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
		Metrics:   metrics,
	})

	srv := httpapi.NewServer(cfg.HTTPAddr, scheduler, deduplicator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// No cycle can produce alerts until the primary location resolves, so a
	// bad initial token is surfaced loudly at startup. The settings watcher
	// picks up the corrected file without a restart.
	preflightResolve(ctx, cfg, st, coords, logger)

	watcher := settings.NewWatcher(cfg.SettingsPath, func(s settings.Settings) {
		scheduler.Apply(s)
		sequencer.SetMuted(s.MuteAudio)
	}, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("settings watcher unavailable, edits require a restart", "error", err)
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := scheduler.Start(st.Interval()); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// The in-flight cycle completes and its announcements drain before the
	// dedup state is persisted, so everything spoken is on disk as seen.
	scheduler.Stop()
	sequencer.Stop()

	if err := store.Save(shutdownCtx, deduplicator.Snapshot()); err != nil {
		logger.Error("failed to save alert history", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("history store close error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	bus.Close()

	logger.Info("shutdown complete")
}

// preflightResolve checks the primary location once before the first cycle.
// An unresolvable token is escalated to an error log (and a resolution
// event) rather than a crash: transient upstream failures self-heal on the
// next cycle, and a typo is fixable through the settings file.
func preflightResolve(ctx context.Context, cfg *config.Config, st settings.Settings, coords monitor.CoordinateResolver, logger *slog.Logger) {
	primary, ok := st.Primary()
	if !ok {
		return
	}

	resolveCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	if _, err := coords.Resolve(resolveCtx, primary.Token); err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			logger.Error("primary location cannot be resolved; no alerts until the settings file is corrected",
				"location", primary.Name, "token", primary.Token, "error", err)
		} else {
			logger.Warn("primary location pre-check failed, retrying on the first cycle",
				"location", primary.Name, "token", primary.Token, "error", err)
		}
	}
}
