package model

import (
	"strings"
	"time"
)

// AgentState is the lifecycle state of an agent.
type AgentState int

const (
	StateIdle AgentState = iota
	StateEnRoute
	StateDropping
	StateReturning
	StateFault
	StateOffline
)

var stateNames = map[AgentState]string{
	StateIdle:      "IDLE",
	StateEnRoute:   "EN_ROUTE",
	StateDropping:  "DROPPING",
	StateReturning: "RETURNING",
	StateFault:     "FAULT",
	StateOffline:   "OFFLINE",
}

func (s AgentState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// MarshalText encodes the state by name for JSON views.
func (s AgentState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// InFlight reports whether an agent in this state holds an incident.
func (s AgentState) InFlight() bool {
	return s == StateEnRoute || s == StateDropping || s == StateReturning
}

// ParseAgentState converts a state name. DROPPING_AGENT is accepted as an
// alias of DROPPING.
func ParseAgentState(v string) (AgentState, bool) {
	name := strings.ToUpper(strings.TrimSpace(v))
	if name == "DROPPING_AGENT" {
		return StateDropping, true
	}
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateIdle, false
}

// AgentStatus is the coordinator's view of one agent.
type AgentStatus struct {
	ID       int        `json:"id"`
	Position Point      `json:"position"`
	State    AgentState `json:"state"`
	// ReportedState is the state carried by the last heartbeat.
	ReportedState    AgentState `json:"reported_state"`
	Available        bool       `json:"available"`
	CurrentIncident  *Incident  `json:"current_incident,omitempty"`
	Target           Point      `json:"target"`
	AssignedAt       time.Time  `json:"assigned_at,omitempty"`
	LastHeartbeat    time.Time  `json:"last_heartbeat"`
	FaultText        string     `json:"fault_text,omitempty"`
	RecentlyRerouted bool       `json:"recently_rerouted"`
	// Capacity is the payload last reported by the agent, -1 when unknown.
	Capacity int `json:"capacity"`
	// Acknowledged is set once the agent reports an in-flight state after
	// the current assignment. IdleSince is the first IDLE report received
	// while the incident is still held.
	Acknowledged bool      `json:"acknowledged"`
	IdleSince    time.Time `json:"idle_since,omitempty"`
	// Retargeted marks an incident handed over by a reroute. In-flight
	// reports cannot acknowledge it since the agent was already flying.
	Retargeted bool `json:"retargeted"`
}

// Clone returns a deep copy safe to hand to callers outside the registry.
func (a AgentStatus) Clone() AgentStatus {
	if a.CurrentIncident != nil {
		inc := *a.CurrentIncident
		a.CurrentIncident = &inc
	}
	return a
}

// CanCarry reports whether the agent's known capacity covers need. Unknown
// capacity is treated as sufficient; the agent declines if it is not.
func (a AgentStatus) CanCarry(need int) bool {
	return a.Capacity < 0 || a.Capacity >= need
}

// Consistent checks the assignment invariant: an incident is held exactly
// when the agent is in flight, and a holding agent is never available.
func (a AgentStatus) Consistent() bool {
	if a.CurrentIncident != nil {
		return a.State.InFlight() && !a.Available
	}
	return !a.State.InFlight()
}
