package models

import (
	"time"

	"github.com/google/uuid"
)

// ObservationType classifies what a visual report is about.
type ObservationType string

const (
	ObservationMeteoVisual    ObservationType = "meteo_visual"
	ObservationRunway         ObservationType = "runway"
	ObservationApronGround    ObservationType = "apron_ground"
	ObservationInfrastructure ObservationType = "infrastructure"
	ObservationGeneral        ObservationType = "general"
)

// Valid reports whether t is a known observation type.
func (t ObservationType) Valid() bool {
	switch t {
	case ObservationMeteoVisual, ObservationRunway, ObservationApronGround, ObservationInfrastructure, ObservationGeneral:
		return true
	}
	return false
}

// Privacy controls who can read an observation.
type Privacy string

const (
	PrivacyPublic        Privacy = "public"
	PrivacyCollaborators Privacy = "collaborators"
)

// Valid reports whether p is a known privacy level.
func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyCollaborators
}

// Observation status values.
const (
	ObservationPublished = "published"
	ObservationHidden    = "hidden"
)

// Observation is a community visual report tied to an aerodrome.
type Observation struct {
	ID          uuid.UUID          `json:"id"`
	AerodromeID uuid.UUID          `json:"aerodrome_id"`
	ICAO        string             `json:"icao"`
	CreatedBy   uuid.UUID          `json:"created_by"`
	AuthorName  string             `json:"author_name,omitempty"`
	AuthorRole  Role               `json:"author_role,omitempty"`
	Type        ObservationType    `json:"type"`
	Caption     string             `json:"caption,omitempty"`
	Privacy     Privacy            `json:"privacy"`
	Status      string             `json:"status"`
	EventTime   *time.Time         `json:"event_time,omitempty"`
	Latitude    *float64           `json:"latitude,omitempty"`
	Longitude   *float64           `json:"longitude,omitempty"`
	Media       []ObservationMedia `json:"media,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Media status values.
const (
	MediaPending = "pending"
	MediaReady   = "ready"
	MediaFailed  = "failed"
)

// ObservationMedia is an object-storage blob attached to an observation.
type ObservationMedia struct {
	ID            uuid.UUID `json:"id"`
	ObservationID uuid.UUID `json:"observation_id"`
	StorageBucket string    `json:"-"`
	StoragePath   string    `json:"-"`
	MimeType      string    `json:"mime_type"`
	Bytes         int64     `json:"bytes"`
	Status        string    `json:"status"`
	URL           string    `json:"url,omitempty"` // presigned, filled at read time
	CreatedAt     time.Time `json:"created_at"`
}
