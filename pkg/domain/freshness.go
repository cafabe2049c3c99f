package domain

import "time"

// Freshness is the tri-state staleness signal attached to cached
// execution-domain state. It is always exposed to callers, never hidden.
type Freshness string

const (
	FreshnessFresh     Freshness = "fresh"
	FreshnessStale     Freshness = "stale"
	FreshnessVeryStale Freshness = "very_stale"
)

// Freshness thresholds measured against a snapshot's source timestamp.
const (
	FreshWithin     = time.Hour
	VeryStaleBeyond = 6 * time.Hour
)

// FreshnessOf classifies the age of a snapshot: fresh under one hour, stale
// between one and six hours, very stale beyond six hours.
func FreshnessOf(age time.Duration) Freshness {
	switch {
	case age < FreshWithin:
		return FreshnessFresh
	case age <= VeryStaleBeyond:
		return FreshnessStale
	default:
		return FreshnessVeryStale
	}
}
