package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgent an incident is.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityModerate
	SeverityHigh
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityModerate:
		return "Moderate"
	case SeverityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Rank returns the numeric rank used when comparing incidents for a reroute:
// Low=1, Moderate=2, High=3 and 0 for anything unrecognized.
func (s Severity) Rank() int {
	if s < SeverityLow || s > SeverityHigh {
		return 0
	}
	return int(s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// ParseSeverity converts a case-insensitive severity name.
func ParseSeverity(v string) Severity {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return SeverityLow
	case "moderate":
		return SeverityModerate
	case "high":
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

// DefaultResource returns the payload an incident of the given severity
// requires when the reporter did not specify one.
func DefaultResource(s Severity) int {
	switch s {
	case SeverityLow:
		return 10
	case SeverityModerate:
		return 20
	case SeverityHigh:
		return 30
	default:
		return 0
	}
}

// IncidentID is the stable identity of an incident. It is minted once and
// never derived from the incident's other fields.
type IncidentID string

// NewIncidentID returns a fresh random identity.
func NewIncidentID() IncidentID { return IncidentID(uuid.NewString()) }

// Incident is a reported event requiring an agent dispatch.
type Incident struct {
	ID             IncidentID `json:"id"`
	Zone           int        `json:"zone"`
	EventType      string     `json:"event_type"`
	Severity       Severity   `json:"severity"`
	ResourceNeeded int        `json:"resource_needed"`
	ReportedAt     time.Time  `json:"reported_at"`
	CompletedAt    time.Time  `json:"completed_at,omitempty"`
}

// NewIncident creates an incident with a new identity. A zero resource need
// is replaced with the severity default.
func NewIncident(zone int, eventType string, sev Severity, need int, reportedAt time.Time) Incident {
	if need <= 0 {
		need = DefaultResource(sev)
	}
	return Incident{
		ID:             NewIncidentID(),
		Zone:           zone,
		EventType:      eventType,
		Severity:       sev,
		ResourceNeeded: need,
		ReportedAt:     reportedAt,
	}
}

// Completed reports whether a completion time has been recorded.
func (i Incident) Completed() bool { return !i.CompletedAt.IsZero() }

// ResponseTime is the duration between report and completion, or zero when
// the incident is still open.
func (i Incident) ResponseTime() time.Duration {
	if !i.Completed() || i.ReportedAt.IsZero() {
		return 0
	}
	return i.CompletedAt.Sub(i.ReportedAt)
}
