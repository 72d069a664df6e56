// Package ledger holds pending and completed incidents.
package ledger

import (
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// Ledger is a FIFO queue of pending incidents plus the completed history.
// An incident id is never pending twice and is completed at most once.
type Ledger struct {
	mu           sync.RWMutex
	pending      []model.Incident
	completed    []model.Incident
	pendingIDs   map[model.IncidentID]struct{}
	completedIDs map[model.IncidentID]struct{}
}

func New() *Ledger {
	return &Ledger{
		pendingIDs:   make(map[model.IncidentID]struct{}),
		completedIDs: make(map[model.IncidentID]struct{}),
	}
}

// Enqueue appends inc unless it is already pending or completed.
func (l *Ledger) Enqueue(inc model.Incident) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pendingIDs[inc.ID]; ok {
		return false
	}
	if _, ok := l.completedIDs[inc.ID]; ok {
		return false
	}
	l.pending = append(l.pending, inc)
	l.pendingIDs[inc.ID] = struct{}{}
	return true
}

// Requeue puts an incident back at the tail. It shares Enqueue's duplicate
// rules.
func (l *Ledger) Requeue(inc model.Incident) bool { return l.Enqueue(inc) }

// DequeueOne pops the oldest pending incident.
func (l *Ledger) DequeueOne() (model.Incident, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return model.Incident{}, false
	}
	inc := l.pending[0]
	l.pending = l.pending[1:]
	delete(l.pendingIDs, inc.ID)
	return inc, true
}

// Drain pops every pending incident in FIFO order.
func (l *Ledger) Drain() []model.Incident {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	for _, inc := range out {
		delete(l.pendingIDs, inc.ID)
	}
	return out
}

// Complete records inc as completed at the given time. It returns false if
// the incident was already completed.
func (l *Ledger) Complete(inc model.Incident, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.completedIDs[inc.ID]; ok {
		return false
	}
	if _, ok := l.pendingIDs[inc.ID]; ok {
		delete(l.pendingIDs, inc.ID)
		for i, p := range l.pending {
			if p.ID == inc.ID {
				l.pending = append(l.pending[:i:i], l.pending[i+1:]...)
				break
			}
		}
	}
	inc.CompletedAt = at
	l.completed = append(l.completed, inc)
	l.completedIDs[inc.ID] = struct{}{}
	return true
}

func (l *Ledger) IsPending(id model.IncidentID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.pendingIDs[id]
	return ok
}

func (l *Ledger) IsCompleted(id model.IncidentID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.completedIDs[id]
	return ok
}

// Pending returns a copy of the queue in dispatch order.
func (l *Ledger) Pending() []model.Incident {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Incident(nil), l.pending...)
}

// Completed returns a copy of the history in completion order.
func (l *Ledger) Completed() []model.Incident {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Incident(nil), l.completed...)
}

// Len is the number of pending incidents.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}
