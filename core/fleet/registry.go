// Package fleet tracks the coordinator's view of every agent it has heard
// from.
package fleet

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

var (
	ErrUnknownAgent = errors.New("fleet: unknown agent")
	ErrNotEligible  = errors.New("fleet: agent not eligible for assignment")
)

// Registry is the authoritative table of agent statuses. Entries are created
// on first contact and never removed; silent agents are marked OFFLINE.
type Registry struct {
	mu     sync.RWMutex
	agents map[int]*model.AgentStatus
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[int]*model.AgentStatus)}
}

// Upsert records a heartbeat. Assignment fields are left untouched. A
// negative capacity keeps the previously known value.
func (r *Registry) Upsert(id int, pos model.Point, reported model.AgentState, capacity int, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		a = &model.AgentStatus{ID: id, Capacity: -1}
		r.agents[id] = a
	}
	a.Position = pos
	a.LastHeartbeat = at
	a.ReportedState = reported
	if capacity >= 0 {
		a.Capacity = capacity
	}

	switch {
	case a.CurrentIncident != nil:
		// An agent holding an incident that reports IDLE either finished
		// (Complete is on its way or lost) or never got the Assign. The
		// in-flight state is kept until Complete or Reclaim resolves it.
		if reported.InFlight() {
			a.State = reported
			a.IdleSince = time.Time{}
			if !a.Retargeted && at.After(a.AssignedAt) {
				a.Acknowledged = true
			}
		} else if reported == model.StateIdle && a.IdleSince.IsZero() {
			a.IdleSince = at
		}
	case a.FaultText != "":
		a.State = model.StateFault
		a.Available = false
	case reported == model.StateIdle:
		a.State = model.StateIdle
		a.Available = true
	case reported.InFlight():
		// Busy with work this coordinator no longer tracks. ReportedState
		// shows the real phase.
		a.State = model.StateIdle
		a.Available = false
	default:
		a.State = reported
		a.Available = false
	}
	return !ok
}

// Get returns a copy of the agent's status.
func (r *Registry) Get(id int) (model.AgentStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return model.AgentStatus{}, false
	}
	return a.Clone(), true
}

// Snapshot returns copies of every status sorted by id.
func (r *Registry) Snapshot() []model.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*model.AgentStatus) bool { return true })
}

// Statuses returns copies keyed by agent id.
func (r *Registry) Statuses() map[int]model.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]model.AgentStatus, len(r.agents))
	for id, a := range r.agents {
		out[id] = a.Clone()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountState returns how many agents are in state s.
func (r *Registry) CountState(s model.AgentState) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.State == s {
			n++
		}
	}
	return n
}

// ForEachAvailableIdle calls fn for every available IDLE agent in ascending
// id order. fn receives copies and may call back into the registry.
func (r *Registry) ForEachAvailableIdle(fn func(model.AgentStatus)) {
	r.mu.RLock()
	list := r.sortedLocked(func(a *model.AgentStatus) bool {
		return a.Available && a.State == model.StateIdle && a.CurrentIncident == nil
	})
	r.mu.RUnlock()
	for _, a := range list {
		fn(a)
	}
}

// ForEachEnRouteAssignable calls fn for every EN_ROUTE agent holding an
// incident that is not cooling down from a previous reroute.
func (r *Registry) ForEachEnRouteAssignable(fn func(model.AgentStatus)) {
	r.mu.RLock()
	list := r.sortedLocked(func(a *model.AgentStatus) bool {
		return a.State == model.StateEnRoute && a.CurrentIncident != nil && !a.RecentlyRerouted
	})
	r.mu.RUnlock()
	for _, a := range list {
		fn(a)
	}
}

// Claim assigns inc to the agent after re-checking eligibility. For a reroute
// the previously held incident is returned.
func (r *Registry) Claim(id int, inc model.Incident, target model.Point, now time.Time, reroute bool) (*model.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrUnknownAgent
	}
	var displaced *model.Incident
	if reroute {
		if a.State != model.StateEnRoute || a.CurrentIncident == nil || a.RecentlyRerouted {
			return nil, ErrNotEligible
		}
		displaced = a.CurrentIncident
	} else if !a.Available || a.State != model.StateIdle || a.CurrentIncident != nil || a.FaultText != "" {
		return nil, ErrNotEligible
	}
	a.Available = false
	a.CurrentIncident = &inc
	a.Target = target
	a.State = model.StateEnRoute
	a.AssignedAt = now
	a.Acknowledged = false
	a.IdleSince = time.Time{}
	a.Retargeted = reroute
	return displaced, nil
}

// Rollback restores the assignment fields captured in prev, provided the
// agent still holds incidentID. Heartbeat data received since is kept.
func (r *Registry) Rollback(prev model.AgentStatus, incidentID model.IncidentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[prev.ID]
	if !ok || a.CurrentIncident == nil || a.CurrentIncident.ID != incidentID {
		return false
	}
	prev = prev.Clone()
	a.State = prev.State
	a.Available = prev.Available
	a.CurrentIncident = prev.CurrentIncident
	a.Target = prev.Target
	a.AssignedAt = prev.AssignedAt
	a.RecentlyRerouted = prev.RecentlyRerouted
	a.Acknowledged = prev.Acknowledged
	a.IdleSince = prev.IdleSince
	a.Retargeted = prev.Retargeted
	return true
}

// Complete releases the agent if it holds incidentID.
func (r *Registry) Complete(id int, incidentID model.IncidentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.CurrentIncident == nil || a.CurrentIncident.ID != incidentID {
		return false
	}
	releaseLocked(a)
	a.State = model.StateIdle
	a.Available = a.FaultText == ""
	return true
}

// Detach removes any incident held by the agent and sets its lifecycle
// fields. The removed incident is returned.
func (r *Registry) Detach(id int, state model.AgentState, available bool) *model.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	inc := a.CurrentIncident
	releaseLocked(a)
	a.State = state
	a.Available = available
	return inc
}

// SetFault marks the agent faulted, creating it if this is the first
// contact. The incident it held, if any, is returned.
func (r *Registry) SetFault(id int, text string, now time.Time) *model.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		a = &model.AgentStatus{ID: id, Capacity: -1, LastHeartbeat: now}
		r.agents[id] = a
	}
	inc := a.CurrentIncident
	releaseLocked(a)
	a.FaultText = text
	a.State = model.StateFault
	a.Available = false
	return inc
}

// ClearFault returns a faulted agent to service.
func (r *Registry) ClearFault(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.FaultText = ""
	if a.CurrentIncident == nil {
		a.State = model.StateIdle
		a.Available = true
	}
	return true
}

func (r *Registry) SetRerouted(id int, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.RecentlyRerouted = v
	}
}

// HolderOf returns the agent currently holding incidentID.
func (r *Registry) HolderOf(incidentID model.IncidentID) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, a := range r.agents {
		if a.CurrentIncident != nil && a.CurrentIncident.ID == incidentID {
			return id, true
		}
	}
	return 0, false
}

// Orphan is an incident detached from an agent by a sweep. Finished is set
// when the agent is known to have flown the mission and only its Complete
// went missing.
type Orphan struct {
	AgentID  int
	Incident model.Incident
	Finished bool
}

// MarkStale marks agents silent for longer than timeout OFFLINE. It returns
// the ids newly marked and the incidents they held.
func (r *Registry) MarkStale(now time.Time, timeout time.Duration) ([]int, []Orphan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int
	var orphans []Orphan
	for _, a := range r.sortedPtrsLocked() {
		if a.State == model.StateOffline || now.Sub(a.LastHeartbeat) <= timeout {
			continue
		}
		ids = append(ids, a.ID)
		if a.CurrentIncident != nil {
			orphans = append(orphans, Orphan{AgentID: a.ID, Incident: *a.CurrentIncident})
			releaseLocked(a)
		}
		a.State = model.StateOffline
		a.Available = false
	}
	return ids, orphans
}

// Reclaim resolves assignments whose agent keeps reporting IDLE. An agent
// that never acknowledged the assignment and still reports IDLE in a
// heartbeat received more than grace after it lost the Assign: the incident
// is returned for re-queue. An agent that acknowledged it and has reported
// IDLE for more than grace finished the mission and lost its Complete: the
// incident is returned with Finished set. Either way the agent is released.
func (r *Registry) Reclaim(now time.Time, grace time.Duration) []Orphan {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orphans []Orphan
	for _, a := range r.sortedPtrsLocked() {
		if a.CurrentIncident == nil || !a.State.InFlight() || a.ReportedState != model.StateIdle {
			continue
		}
		deadline := a.AssignedAt.Add(grace)
		if a.Acknowledged {
			deadline = a.IdleSince.Add(grace)
		}
		if !a.LastHeartbeat.After(deadline) || now.Before(deadline) {
			continue
		}
		orphans = append(orphans, Orphan{AgentID: a.ID, Incident: *a.CurrentIncident, Finished: a.Acknowledged})
		releaseLocked(a)
		a.State = model.StateIdle
		a.Available = a.FaultText == ""
	}
	return orphans
}

func releaseLocked(a *model.AgentStatus) {
	a.CurrentIncident = nil
	a.Acknowledged = false
	a.IdleSince = time.Time{}
	a.Retargeted = false
}

func (r *Registry) sortedPtrsLocked() []*model.AgentStatus {
	list := make([]*model.AgentStatus, 0, len(r.agents))
	for _, a := range r.agents {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (r *Registry) sortedLocked(keep func(*model.AgentStatus) bool) []model.AgentStatus {
	out := make([]model.AgentStatus, 0, len(r.agents))
	for _, a := range r.sortedPtrsLocked() {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}
