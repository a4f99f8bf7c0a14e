// Package domain models the National Weather Service (NWS) data consumed by
// the alert monitor: active alerts, forecast periods, station metadata, and
// the coordinate resolution that ties a user-entered location to all three.
//
// # Data Sources
//
// Everything comes from the public NWS API at https://api.weather.gov, which
// requires a User-Agent header identifying the caller:
//
//	/stations/{id}           station metadata; geometry is a GeoJSON Point
//	/points/{lat},{lon}      gridpoint lookup; yields the two forecast URLs
//	<forecast URL>           hourly or daily period list
//	/alerts/active.atom      CAP alerts as an ATOM feed, filtered by point
//
// Postal codes are geocoded separately (Zippopotam-style API) because the
// NWS API has no postal lookup of its own.
//
// # Location Tokens
//
// A location token is whatever the user typed: a 5-digit US postal code or a
// station/airport identifier. Station identifiers follow ICAO conventions:
//
//	3 alphabetic characters   →  continental-US airport; try with a "K" prefix
//	                             first ("ORD" → "KORD"), then the raw token if
//	                             the prefixed lookup misses (some mesonet and
//	                             buoy identifiers are genuinely 3 letters).
//	4 alphanumeric characters →  already a full identifier, used as-is.
//
// # Coordinate Order
//
// GeoJSON geometries carry [longitude, latitude]; everything in this package
// is (latitude, longitude). The swap happens once, at the adapter boundary.
// Coordinates outside the WGS-84 range are a failed resolution, never a
// usable value — see [Coordinates.Valid].
//
// # Alert Identity
//
// The feed assigns each alert a stable id (a CAP URN). That id alone is the
// alert's identity: title or summary drift between fetches does not make a
// new alert, and an id that has been announced once is never announced again
// while the suppression set survives.
//
// # Forecast Periods
//
// The hourly view keeps the first 8 periods and the daily view the first 10,
// which covers the display windows of every consumer we have. Precipitation
// probability is null in the feed for many periods; it stays a nil pointer
// here rather than collapsing to zero.
package domain
