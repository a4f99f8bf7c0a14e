// Package nws is the client for the National Weather Service API: station
// metadata, gridpoint lookups, period forecasts, and the active-alerts ATOM
// feed. Transport failures are mapped onto the domain error taxonomy here so
// nothing above this package inspects HTTP status codes.
package nws

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
)

const (
	acceptGeoJSON = "application/geo+json"
	acceptAtom    = "application/atom+xml"

	hourlyPeriods = 8
	dailyPeriods  = 10
)

// Client talks to the NWS API. The API requires a User-Agent identifying
// the caller and rejects anonymous requests.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an NWS API client with a bounded request timeout.
func NewClient(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Station looks up a station's coordinates by its identifier. The geometry
// is a GeoJSON Point in [lon, lat] order; the swap to (lat, lon) happens
// here and nowhere else.
func (c *Client) Station(ctx context.Context, id string) (domain.Coordinates, error) {
	u := fmt.Sprintf("%s/stations/%s", c.baseURL, url.PathEscape(id))

	resp, err := c.get(ctx, u, acceptGeoJSON, "station")
	if err != nil {
		return domain.Coordinates{}, err
	}
	defer resp.Body.Close()

	var body stationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode station response: %w", err)
	}
	if len(body.Geometry.Coordinates) != 2 {
		return domain.Coordinates{}, fmt.Errorf("station %s has no point geometry: %w", id, domain.ErrLocationNotFound)
	}

	coords := domain.Coordinates{Lat: body.Geometry.Coordinates[1], Lon: body.Geometry.Coordinates[0]}
	if !coords.Valid() {
		return domain.Coordinates{}, fmt.Errorf("station %s coordinates out of range: %w", id, domain.ErrLocationNotFound)
	}
	return coords, nil
}

// Gridpoint resolves a coordinate pair to its per-location forecast URLs.
func (c *Client) Gridpoint(ctx context.Context, coords domain.Coordinates) (domain.Gridpoint, error) {
	u := fmt.Sprintf("%s/points/%s", c.baseURL, coords)

	resp, err := c.get(ctx, u, acceptGeoJSON, "points")
	if err != nil {
		return domain.Gridpoint{}, err
	}
	defer resp.Body.Close()

	var body pointsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Gridpoint{}, fmt.Errorf("decode points response: %w", err)
	}

	gp := domain.Gridpoint{
		HourlyForecastURL: body.Properties.ForecastHourly,
		DailyForecastURL:  body.Properties.Forecast,
	}
	if gp.HourlyForecastURL == "" && gp.DailyForecastURL == "" {
		return domain.Gridpoint{}, fmt.Errorf("points response for %s carries no forecast URLs", coords)
	}
	return gp, nil
}

// Forecast fetches the period list behind one of the gridpoint URLs.
func (c *Client) Forecast(ctx context.Context, forecastURL string) ([]domain.ForecastPeriod, error) {
	resp, err := c.get(ctx, forecastURL, acceptGeoJSON, "forecast")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	periods := make([]domain.ForecastPeriod, 0, len(body.Properties.Periods))
	for _, p := range body.Properties.Periods {
		periods = append(periods, domain.ForecastPeriod{
			Name:             p.Name,
			StartTime:        p.StartTime,
			Temperature:      p.Temperature,
			TemperatureUnit:  p.TemperatureUnit,
			WindSpeed:        p.WindSpeed,
			WindDirection:    p.WindDirection,
			ShortForecast:    p.ShortForecast,
			DetailedForecast: p.DetailedForecast,
			PrecipChance:     p.ProbabilityOfPrecipitation.Value,
		})
	}
	return periods, nil
}

// FetchForecast assembles the full forecast bundle for a location: gridpoint
// lookup, then the hourly and daily period lists. One failed period fetch
// degrades to a partial bundle; the bundle is an error only when nothing
// could be fetched at all.
func (c *Client) FetchForecast(ctx context.Context, coords domain.Coordinates) (domain.ForecastBundle, error) {
	gp, err := c.Gridpoint(ctx, coords)
	if err != nil {
		return domain.ForecastBundle{}, fmt.Errorf("gridpoint lookup: %w", err)
	}

	bundle := domain.ForecastBundle{
		RadarURL:    domain.RadarURL(coords),
		RetrievedAt: domain.Now(),
	}

	var hourlyErr, dailyErr error
	if gp.HourlyForecastURL != "" {
		bundle.Hourly, hourlyErr = c.Forecast(ctx, gp.HourlyForecastURL)
		if hourlyErr != nil {
			c.logger.Warn("hourly forecast fetch failed", "error", hourlyErr)
		}
	}
	if gp.DailyForecastURL != "" {
		bundle.Daily, dailyErr = c.Forecast(ctx, gp.DailyForecastURL)
		if dailyErr != nil {
			c.logger.Warn("daily forecast fetch failed", "error", dailyErr)
		}
	}

	if bundle.Empty() {
		if hourlyErr != nil {
			return domain.ForecastBundle{}, fmt.Errorf("forecast fetch: %w", hourlyErr)
		}
		if dailyErr != nil {
			return domain.ForecastBundle{}, fmt.Errorf("forecast fetch: %w", dailyErr)
		}
		return domain.ForecastBundle{}, errors.New("forecast fetch: no periods returned")
	}

	if len(bundle.Hourly) > hourlyPeriods {
		bundle.Hourly = bundle.Hourly[:hourlyPeriods]
	}
	if len(bundle.Daily) > dailyPeriods {
		bundle.Daily = bundle.Daily[:dailyPeriods]
	}
	return bundle, nil
}

// ActiveAlerts fetches the CAP alerts active at a point. Entries missing an
// id or title are skipped individually; an empty feed is a valid no-alerts
// state, not an error.
func (c *Client) ActiveAlerts(ctx context.Context, coords domain.Coordinates) ([]domain.AlertRecord, error) {
	params := url.Values{"point": {coords.String()}}
	u := fmt.Sprintf("%s/alerts/active.atom?%s", c.baseURL, params.Encode())

	resp, err := c.get(ctx, u, acceptAtom, "alerts")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed alertFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode alert feed: %w", err)
	}

	records := make([]domain.AlertRecord, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.ID == "" || entry.Title == "" {
			c.logger.Warn("skipping malformed alert entry",
				"id", entry.ID,
				"title", entry.Title,
				"error", domain.ErrMalformedEntry,
			)
			c.metrics.MalformedEntries.Inc()
			continue
		}
		records = append(records, domain.AlertRecord{
			ID:         entry.ID,
			Title:      entry.Title,
			Summary:    entry.Summary,
			Event:      entry.Event,
			Severity:   entry.Severity,
			Urgency:    entry.Urgency,
			ObservedAt: parseFeedTime(entry.Updated),
			ExpiresAt:  parseFeedTimeZero(entry.Expires),
		})
	}
	c.metrics.AlertsObserved.Add(float64(len(records)))
	return records, nil
}

func (c *Client) get(ctx context.Context, rawURL, accept, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			c.metrics.FetchRequests.WithLabelValues(endpoint, "timeout").Inc()
			return nil, fmt.Errorf("%s request: %w", endpoint, domain.ErrNetworkTimeout)
		}
		c.metrics.FetchRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s request: %w", endpoint, domain.ErrServiceUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		c.metrics.FetchRequests.WithLabelValues(endpoint, "success").Inc()
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		c.metrics.FetchRequests.WithLabelValues(endpoint, "not_found").Inc()
		return nil, fmt.Errorf("%s: %w", endpoint, domain.ErrLocationNotFound)
	case resp.StatusCode >= 500:
		resp.Body.Close()
		c.metrics.FetchRequests.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%s: status %d: %w", endpoint, resp.StatusCode, domain.ErrServiceUnavailable)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.metrics.FetchRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: unexpected status %d: %s", endpoint, resp.StatusCode, body)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// parseFeedTime falls back to the current clock when the feed omits or
// mangles a timestamp, so every record still orders sensibly in history.
func parseFeedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return domain.Now()
	}
	return t
}

func parseFeedTimeZero(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NWS API response types.

type stationResponse struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat]
	} `json:"geometry"`
}

type pointsResponse struct {
	Properties struct {
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Name                       string    `json:"name"`
			StartTime                  time.Time `json:"startTime"`
			Temperature                int       `json:"temperature"`
			TemperatureUnit            string    `json:"temperatureUnit"`
			WindSpeed                  string    `json:"windSpeed"`
			WindDirection              string    `json:"windDirection"`
			ShortForecast              string    `json:"shortForecast"`
			DetailedForecast           string    `json:"detailedForecast"`
			ProbabilityOfPrecipitation struct {
				Value *int `json:"value"`
			} `json:"probabilityOfPrecipitation"`
		} `json:"periods"`
	} `json:"properties"`
}

// alertFeed matches the ATOM envelope of /alerts/active.atom. The CAP
// extension elements (event, severity, urgency, expires) live in their own
// namespace; matching by local name picks them up.
type alertFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		ID       string `xml:"id"`
		Title    string `xml:"title"`
		Summary  string `xml:"summary"`
		Updated  string `xml:"updated"`
		Event    string `xml:"event"`
		Severity string `xml:"severity"`
		Urgency  string `xml:"urgency"`
		Expires  string `xml:"expires"`
	} `xml:"entry"`
}
