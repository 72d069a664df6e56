// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - IncidentEvent: incident received, re-queued, dropped or completed
//   - AssignmentEvent: agent assignment or reroute, including failed sends
//   - FaultEvent: agent fault reported or recovered
//   - AgentEvent: agent discovered, gone offline or revived
package events
