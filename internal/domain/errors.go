package domain

import "errors"

// Failure taxonomy. Adapters map transport-level failures onto these
// sentinels at the boundary; everything above them branches with errors.Is
// and never inspects HTTP status codes directly.
var (
	// ErrLocationNotFound means no resolution strategy produced usable
	// coordinates, or a location-derived endpoint returned 404.
	// User-correctable: retried only on the next cycle or a location change.
	ErrLocationNotFound = errors.New("location not found")

	// ErrServiceUnavailable covers upstream 5xx responses and connection
	// failures. Transient; the next cycle retries at the normal cadence.
	ErrServiceUnavailable = errors.New("weather service unavailable")

	// ErrNetworkTimeout means a fetch exceeded its deadline.
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrMalformedEntry marks a feed entry missing a required field. Absorbed
	// where the feed is parsed; exported for tests and log classification.
	ErrMalformedEntry = errors.New("malformed feed entry")

	// ErrSpeechUnavailable means the speech backend is absent or failed.
	// Announcements degrade to log-only; cycles never fail on it.
	ErrSpeechUnavailable = errors.New("speech backend unavailable")
)
