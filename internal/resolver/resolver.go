// Package resolver turns user-entered location tokens (postal codes,
// three-letter airport codes, four-character ICAO station ids) into
// coordinates by trying each interpretation in order.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
)

// GeocodeService resolves a postal code to coordinates.
type GeocodeService interface {
	Lookup(ctx context.Context, postalCode string) (domain.Coordinates, error)
}

// StationMetadataService resolves a station identifier to coordinates.
type StationMetadataService interface {
	Station(ctx context.Context, id string) (domain.Coordinates, error)
}

// Service is the resolution contract the scheduler consumes; Cached wraps
// any implementation of it.
type Service interface {
	Resolve(ctx context.Context, token string) (domain.Coordinates, error)
}

var (
	postalCodePattern = regexp.MustCompile(`^\d{5}$`)
	threeAlphaPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Resolver applies the ordered token interpretations: postal code first,
// then station id with a K-prefix attempt for bare three-letter codes.
type Resolver struct {
	geocoder GeocodeService
	stations StationMetadataService
	logger   *slog.Logger
}

// New creates a resolver over the two lookup services.
func New(geocoder GeocodeService, stations StationMetadataService, logger *slog.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		stations: stations,
		logger:   logger,
	}
}

// Resolve tries every interpretation of token and returns the first set of
// coordinates that works. Once every strategy has failed the token is
// reported as not found regardless of why the individual lookups failed.
func (r *Resolver) Resolve(ctx context.Context, token string) (domain.Coordinates, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return domain.Coordinates{}, fmt.Errorf("empty location token: %w", domain.ErrLocationNotFound)
	}

	if postalCodePattern.MatchString(trimmed) {
		coords, err := r.geocoder.Lookup(ctx, trimmed)
		if err == nil && coords.Valid() {
			return coords, nil
		}
		if err == nil {
			err = fmt.Errorf("coordinates %s out of range", coords)
		}
		r.logger.Debug("postal lookup failed, trying station lookup", "token", trimmed, "error", err)
	}

	upper := strings.ToUpper(trimmed)
	candidates := []string{upper}
	if threeAlphaPattern.MatchString(upper) {
		// Bare airport codes usually exist as K-prefixed ICAO stations;
		// fall back to the raw code for the exceptions.
		candidates = []string{"K" + upper, upper}
	}

	var lastErr error
	for _, id := range candidates {
		coords, err := r.stations.Station(ctx, id)
		if err == nil {
			return coords, nil
		}
		lastErr = err
		r.logger.Debug("station lookup failed", "station", id, "error", err)
	}

	return domain.Coordinates{}, fmt.Errorf("location token %q: %w (last error: %v)", token, domain.ErrLocationNotFound, lastErr)
}
