package models

import (
	"time"

	"github.com/google/uuid"
)

// Aerodrome is an airport identified by its ICAO code, with the latest official reports.
type Aerodrome struct {
	ID             uuid.UUID `json:"id"`
	ICAO           string    `json:"icao"`
	Name           string    `json:"name"`
	City           string    `json:"city"`
	UF             string    `json:"uf"`
	METAR          string    `json:"metar"`
	TAF            string    `json:"taf"`
	FlightCategory string    `json:"flight_category"` // VFR, IFR, LIFR
	UpdatedAt      time.Time `json:"updated_at"`
}

// NOTAM severities.
const (
	NotamCritical = "critical"
	NotamWarning  = "warning"
	NotamInfo     = "info"
)

// Notam is a notice to airmen for an aerodrome.
type Notam struct {
	ID          uuid.UUID  `json:"id"`
	AerodromeID uuid.UUID  `json:"aerodrome_id"`
	Code        string     `json:"code"`
	Severity    string     `json:"severity"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// AerodromeSummary is the aggregated read model for an aerodrome's home screen.
type AerodromeSummary struct {
	Aerodrome         Aerodrome    `json:"aerodrome"`
	Notams            []Notam      `json:"notams"`
	LatestObservation *Observation `json:"latest_observation,omitempty"`
	FetchedAt         time.Time    `json:"fetched_at"`
}
