// mocknws serves canned NWS and postal-geocode responses so the monitor can
// be exercised offline:
//
//	go run ./cmd/mocknws -addr :9090 -scenario alerts
//	NWS_BASE_URL=http://localhost:9090 GEOCODE_BASE_URL=http://localhost:9090 go run ./cmd/monitor
//
// Scenarios: quiet (no active alerts), alerts (a tornado warning and a fog
// advisory), malformed (one valid entry plus one missing its title).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
)

const (
	stationLat = 38.6402
	stationLon = -88.9653
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	scenario := flag.String("scenario", "alerts", "feed scenario: quiet, alerts, or malformed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	feed, ok := feeds[*scenario]
	if !ok {
		logger.Error("unknown scenario", "scenario", *scenario)
		os.Exit(2)
	}

	s := &server{logger: logger, feed: feed}

	r := mux.NewRouter()
	r.HandleFunc("/stations/{id}", s.handleStation).Methods(http.MethodGet)
	r.HandleFunc("/points/{point}", s.handlePoints).Methods(http.MethodGet)
	r.HandleFunc("/forecast", s.handleDailyForecast).Methods(http.MethodGet)
	r.HandleFunc("/forecast/hourly", s.handleHourlyForecast).Methods(http.MethodGet)
	r.HandleFunc("/alerts/active.atom", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/us/{code}", s.handlePostal).Methods(http.MethodGet)

	logger.Info("mock weather server listening", "addr", *addr, "scenario", *scenario)
	if err := http.ListenAndServe(*addr, logRequests(logger, r)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type server struct {
	logger *slog.Logger
	feed   string
}

// handleStation answers every station id with the same point so any token
// the resolver normalizes (KSLO, SLO, anything four-alphanumeric) works.
func (s *server) handleStation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, map[string]any{
		"id": "https://api.weather.gov/stations/" + id,
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{stationLon, stationLat},
		},
		"properties": map[string]any{
			"stationIdentifier": id,
			"name":              "Salem-Leckrone Airport",
		},
	})
}

func (s *server) handlePoints(w http.ResponseWriter, r *http.Request) {
	base := "http://" + r.Host
	writeJSON(w, map[string]any{
		"properties": map[string]any{
			"forecast":       base + "/forecast",
			"forecastHourly": base + "/forecast/hourly",
		},
	})
}

func (s *server) handleDailyForecast(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, forecastPayload([]map[string]any{
		period("Today", 0, 78, "Chance of thunderstorms", 60),
		period("Tonight", 12*time.Hour, 61, "Mostly cloudy", 30),
		period("Tuesday", 24*time.Hour, 82, "Sunny", 0),
	}))
}

func (s *server) handleHourlyForecast(w http.ResponseWriter, _ *http.Request) {
	periods := make([]map[string]any, 0, 12)
	for i := 0; i < 12; i++ {
		periods = append(periods, period("", time.Duration(i)*time.Hour, 70+i%5, "Partly cloudy", 20))
	}
	writeJSON(w, forecastPayload(periods))
}

func (s *server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/atom+xml")
	fmt.Fprint(w, s.feed)
}

func (s *server) handlePostal(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	writeJSON(w, map[string]any{
		"post code": code,
		"country":   "United States",
		"places": []map[string]any{{
			"place name":         "Salem",
			"state":              "Illinois",
			"state abbreviation": "IL",
			"latitude":           fmt.Sprintf("%.4f", stationLat),
			"longitude":          fmt.Sprintf("%.4f", stationLon),
		}},
	})
}

func period(name string, offset time.Duration, temp int, short string, precip int) map[string]any {
	return map[string]any{
		"name":             name,
		"startTime":        time.Now().Add(offset).Format(time.RFC3339),
		"temperature":      temp,
		"temperatureUnit":  "F",
		"windSpeed":        "10 mph",
		"windDirection":    "SW",
		"shortForecast":    short,
		"detailedForecast": short + ".",
		"probabilityOfPrecipitation": map[string]any{
			"value": precip,
		},
	}
}

func forecastPayload(periods []map[string]any) map[string]any {
	return map[string]any{
		"properties": map[string]any{
			"periods": periods,
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // canned fixture data
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

var feeds = map[string]string{
	"quiet": `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Current watches, warnings, and advisories</title>
  <updated>2026-08-23T15:00:00Z</updated>
</feed>`,

	"alerts": `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:cap="urn:oasis:names:tc:emergency:cap:1.1">
  <title>Current watches, warnings, and advisories</title>
  <updated>2026-08-23T15:00:00Z</updated>
  <entry>
    <id>urn:oid:2.49.0.1.840.0.mock-tornado-warning</id>
    <title>Tornado Warning issued for Marion County</title>
    <updated>2026-08-23T14:55:00Z</updated>
    <summary>A severe thunderstorm capable of producing a tornado was located near Salem, moving northeast at 35 mph. Take cover now.</summary>
    <cap:event>Tornado Warning</cap:event>
    <cap:severity>Extreme</cap:severity>
    <cap:urgency>Immediate</cap:urgency>
    <cap:expires>2026-08-23T15:30:00Z</cap:expires>
  </entry>
  <entry>
    <id>urn:oid:2.49.0.1.840.0.mock-fog-advisory</id>
    <title>Dense Fog Advisory issued for Marion County</title>
    <updated>2026-08-23T10:12:00Z</updated>
    <summary>Visibility of one quarter mile or less in dense fog until 10 AM.</summary>
    <cap:event>Dense Fog Advisory</cap:event>
    <cap:severity>Minor</cap:severity>
    <cap:urgency>Expected</cap:urgency>
    <cap:expires>2026-08-23T16:00:00Z</cap:expires>
  </entry>
</feed>`,

	"malformed": `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:cap="urn:oasis:names:tc:emergency:cap:1.1">
  <title>Current watches, warnings, and advisories</title>
  <updated>2026-08-23T15:00:00Z</updated>
  <entry>
    <id>urn:oid:2.49.0.1.840.0.mock-flood-warning</id>
    <title>Flash Flood Warning issued for Marion County</title>
    <updated>2026-08-23T14:40:00Z</updated>
    <summary>Heavy rainfall will cause flash flooding of creeks and low lying areas.</summary>
    <cap:event>Flash Flood Warning</cap:event>
    <cap:severity>Severe</cap:severity>
    <cap:urgency>Immediate</cap:urgency>
  </entry>
  <entry>
    <id>urn:oid:2.49.0.1.840.0.mock-missing-title</id>
    <updated>2026-08-23T14:41:00Z</updated>
    <summary>This entry carries no title and must be skipped with a warning.</summary>
  </entry>
</feed>`,
}
