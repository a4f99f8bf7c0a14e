// Package postal resolves US postal codes to coordinates through a
// Zippopotam-style lookup service.
package postal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
)

// Client looks up postal codes against the geocoding service.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a postal-code lookup client with a bounded request timeout.
func NewClient(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Lookup resolves a US postal code to the coordinates of its first place.
// Unknown codes come back as ErrLocationNotFound.
func (c *Client) Lookup(ctx context.Context, code string) (domain.Coordinates, error) {
	u := fmt.Sprintf("%s/us/%s", c.baseURL, url.PathEscape(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("create geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues("geocode").Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			c.metrics.FetchRequests.WithLabelValues("geocode", "timeout").Inc()
			return domain.Coordinates{}, fmt.Errorf("geocode request: %w", domain.ErrNetworkTimeout)
		}
		c.metrics.FetchRequests.WithLabelValues("geocode", "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode request: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		c.metrics.FetchRequests.WithLabelValues("geocode", "success").Inc()
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.FetchRequests.WithLabelValues("geocode", "not_found").Inc()
		return domain.Coordinates{}, fmt.Errorf("postal code %s: %w", code, domain.ErrLocationNotFound)
	case resp.StatusCode >= 500:
		c.metrics.FetchRequests.WithLabelValues("geocode", "unavailable").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode: status %d: %w", resp.StatusCode, domain.ErrServiceUnavailable)
	default:
		c.metrics.FetchRequests.WithLabelValues("geocode", "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(body.Places) == 0 {
		return domain.Coordinates{}, fmt.Errorf("postal code %s has no places: %w", code, domain.ErrLocationNotFound)
	}

	place := body.Places[0]
	lat, err := strconv.ParseFloat(place.Latitude, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse latitude %q: %w", place.Latitude, err)
	}
	lon, err := strconv.ParseFloat(place.Longitude, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse longitude %q: %w", place.Longitude, err)
	}

	coords := domain.Coordinates{Lat: lat, Lon: lon}
	if !coords.Valid() {
		return domain.Coordinates{}, fmt.Errorf("postal code %s coordinates out of range: %w", code, domain.ErrLocationNotFound)
	}

	c.logger.Debug("resolved postal code",
		"code", code,
		"place", place.PlaceName,
		"state", place.StateAbbreviation,
		"coords", coords,
	)
	return coords, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Zippopotam response types. The upstream JSON uses space-separated keys.

type lookupResponse struct {
	PostCode string  `json:"post code"`
	Country  string  `json:"country"`
	Places   []place `json:"places"`
}

type place struct {
	PlaceName         string `json:"place name"`
	Latitude          string `json:"latitude"`
	Longitude         string `json:"longitude"`
	State             string `json:"state"`
	StateAbbreviation string `json:"state abbreviation"`
}
