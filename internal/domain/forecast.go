package domain

import (
	"fmt"
	"net/url"
	"time"
)

// ForecastPeriod is one period from an NWS gridpoint forecast, hourly or
// daily depending on which endpoint produced it.
type ForecastPeriod struct {
	Name             string    `json:"name,omitempty"` // daily periods only, e.g. "Tuesday Night"
	StartTime        time.Time `json:"start_time"`
	Temperature      int       `json:"temperature"`
	TemperatureUnit  string    `json:"temperature_unit"`
	WindSpeed        string    `json:"wind_speed,omitempty"`
	WindDirection    string    `json:"wind_direction,omitempty"`
	ShortForecast    string    `json:"short_forecast"`
	DetailedForecast string    `json:"detailed_forecast,omitempty"`

	// PrecipChance is nil when the feed reports null for the period.
	PrecipChance *int `json:"precip_chance,omitempty"`
}

// Gridpoint holds the per-location forecast endpoints returned by the
// points lookup.
type Gridpoint struct {
	HourlyForecastURL string
	DailyForecastURL  string
}

// ForecastBundle is everything the forecast/radar view needs for one
// location: the trimmed hourly and daily period lists plus the radar map
// URL derived from the same coordinates.
type ForecastBundle struct {
	Hourly      []ForecastPeriod `json:"hourly"`
	Daily       []ForecastPeriod `json:"daily"`
	RadarURL    string           `json:"radar_url,omitempty"`
	RetrievedAt time.Time        `json:"retrieved_at"`
}

// Empty reports whether the bundle carries no forecast periods at all.
func (b ForecastBundle) Empty() bool {
	return len(b.Hourly) == 0 && len(b.Daily) == 0
}

// RadarURL builds the embeddable radar map URL centered on c.
func RadarURL(c Coordinates) string {
	lat := fmt.Sprintf("%.4f", c.Lat)
	lon := fmt.Sprintf("%.4f", c.Lon)
	v := url.Values{
		"lat":        {lat},
		"lon":        {lon},
		"detailLat":  {lat},
		"detailLon":  {lon},
		"zoom":       {"8"},
		"level":      {"surface"},
		"overlay":    {"radar"},
		"marker":     {"true"},
		"metricWind": {"mph"},
		"metricTemp": {"°F"},
	}
	return "https://embed.windy.com/embed2.html?" + v.Encode()
}
