// Package eventlog defines the append-only audit trail of dispatch activity.
// The log is written for operators and is never read back into coordinator
// state.
package eventlog

import (
	"context"
	"fmt"
	"time"
)

// Category labels a record the way operators grep for it.
type Category string

const (
	CategoryPending    Category = "PENDING INCIDENT"
	CategoryAssignment Category = "ASSIGNMENT"
	CategoryCompleted  Category = "COMPLETED INCIDENT"
	CategoryFault      Category = "FAULT REPORT"
	CategoryOffline    Category = "AGENT OFFLINE"
)

// Record is one audit log entry.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Category   Category  `json:"category"`
	AgentID    int       `json:"agent_id,omitempty"`
	IncidentID string    `json:"incident_id,omitempty"`
	Zone       int       `json:"zone,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Message    string    `json:"message"`
}

// Line renders the record as a single human readable line.
func (r Record) Line() string {
	return fmt.Sprintf("[%s] %s: %s", r.Timestamp.Format(time.TimeOnly), r.Category, r.Message)
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start      time.Time
	End        time.Time
	AgentID    int
	IncidentID string
	Category   Category
}

// Match reports whether r passes every filter in q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.AgentID != 0 && r.AgentID != q.AgentID {
		return false
	}
	if q.IncidentID != "" && r.IncidentID != q.IncidentID {
		return false
	}
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error { return nil }

func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }

func (NopStore) Close() error { return nil }
