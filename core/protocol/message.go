// Package protocol encodes and decodes the comma-delimited datagrams
// exchanged between the coordinator, the agents and incident reporters.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// ErrMalformed is returned for datagrams that cannot be decoded.
var ErrMalformed = errors.New("protocol: malformed datagram")

const (
	kindIncident  = "Incident"
	kindHeartbeat = "Drone"
	kindAssign    = "Assign"
	kindReassign  = "Reassign"
	kindComplete  = "Complete"

	ResetPayload = "ResetCountdown"
	StopPayload  = "STOP"

	faultMarker = " Fault: "
	faultError  = "ERROR:"
)

// Message is any datagram kind.
type Message interface {
	Encode() []byte
}

// IncidentReport is an incident submitted to the coordinator. A report
// without an ID gets one from the coordinator.
type IncidentReport struct {
	Incident model.Incident
}

// Heartbeat is an agent's periodic status. Capacity is -1 when not reported.
type Heartbeat struct {
	AgentID  int
	Position model.Point
	State    model.AgentState
	Capacity int
}

// Assign directs an agent to an incident's target point.
type Assign struct {
	Target   model.Point
	Incident model.Incident
}

// Reassign is sent by an agent that declines or aborts an incident.
type Reassign struct {
	AgentID  int
	Incident model.Incident
}

// Complete reports a finished incident.
type Complete struct {
	AgentID  int
	Incident model.Incident
}

// FaultReport is a free-text fault raised by an agent.
type FaultReport struct {
	AgentID     int
	Prefix      string
	Description string
}

// Reset tells an agent to re-arm its watchdog and resume.
type Reset struct{}

// Stop wakes a blocked receiver during shutdown. It never leaves the process.
type Stop struct{}

func (m IncidentReport) Encode() []byte {
	i := m.Incident
	return join(kindIncident, itoa(i.Zone), clean(i.EventType), i.Severity.String(),
		itoa(i.ResourceNeeded), formatTime(i.ReportedAt), string(i.ID))
}

func (m Heartbeat) Encode() []byte {
	fields := []string{kindHeartbeat, itoa(m.AgentID), ftoa(m.Position.X), ftoa(m.Position.Y), m.State.String()}
	if m.Capacity >= 0 {
		fields = append(fields, itoa(m.Capacity))
	}
	return join(fields...)
}

func (m Assign) Encode() []byte {
	i := m.Incident
	return join(kindAssign, itoa(i.Zone), ftoa(m.Target.X), ftoa(m.Target.Y), clean(i.EventType),
		i.Severity.String(), itoa(i.ResourceNeeded), formatTime(i.ReportedAt), string(i.ID))
}

func (m Reassign) Encode() []byte {
	i := m.Incident
	return join(kindReassign, itoa(m.AgentID), itoa(i.Zone), clean(i.EventType), i.Severity.String(),
		itoa(i.ResourceNeeded), formatTime(i.ReportedAt), string(i.ID))
}

func (m Complete) Encode() []byte {
	i := m.Incident
	return join(kindComplete, itoa(m.AgentID), itoa(i.Zone), clean(i.EventType), i.Severity.String(),
		formatTime(i.ReportedAt), string(i.ID))
}

func (m FaultReport) Encode() []byte {
	prefix := m.Prefix
	if prefix == "" {
		prefix = "Drone " + itoa(m.AgentID)
	}
	return []byte(prefix + faultMarker + faultError + " " + m.Description)
}

// Text is the fault as recorded on the agent, e.g. "ERROR: Drone is stuck in flight.".
func (m FaultReport) Text() string { return faultError + " " + m.Description }

func (Reset) Encode() []byte { return []byte(ResetPayload) }

func (Stop) Encode() []byte { return []byte(StopPayload) }

// Decode parses a datagram into one of the message types. Errors wrap
// ErrMalformed.
func Decode(b []byte) (Message, error) {
	s := strings.TrimSpace(string(b))
	switch s {
	case "":
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	case ResetPayload:
		return Reset{}, nil
	case StopPayload:
		return Stop{}, nil
	}
	if strings.Contains(s, faultMarker) {
		return decodeFault(s)
	}
	f := strings.Split(s, ",")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	switch f[0] {
	case kindIncident:
		return decodeIncident(f)
	case kindHeartbeat:
		return decodeHeartbeat(f)
	case kindAssign:
		return decodeAssign(f)
	case kindReassign:
		return decodeReassign(f)
	case kindComplete:
		return decodeComplete(f)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, f[0])
}

func decodeIncident(f []string) (Message, error) {
	if len(f) < 6 {
		return nil, short(f)
	}
	inc, err := incidentFields(f[1], f[2], f[3], f[4], f[5], at(f, 6))
	if err != nil {
		return nil, err
	}
	return IncidentReport{Incident: inc}, nil
}

func decodeHeartbeat(f []string) (Message, error) {
	if len(f) < 5 {
		return nil, short(f)
	}
	id, err := atoi(f[1])
	if err != nil {
		return nil, err
	}
	x, err := atof(f[2])
	if err != nil {
		return nil, err
	}
	y, err := atof(f[3])
	if err != nil {
		return nil, err
	}
	st, ok := model.ParseAgentState(f[4])
	if !ok {
		return nil, fmt.Errorf("%w: state %q", ErrMalformed, f[4])
	}
	hb := Heartbeat{AgentID: id, Position: model.Point{X: x, Y: y}, State: st, Capacity: -1}
	if c := at(f, 5); c != "" {
		if hb.Capacity, err = atoi(c); err != nil {
			return nil, err
		}
	}
	return hb, nil
}

func decodeAssign(f []string) (Message, error) {
	if len(f) < 8 {
		return nil, short(f)
	}
	x, err := atof(f[2])
	if err != nil {
		return nil, err
	}
	y, err := atof(f[3])
	if err != nil {
		return nil, err
	}
	inc, err := incidentFields(f[1], f[4], f[5], f[6], f[7], at(f, 8))
	if err != nil {
		return nil, err
	}
	return Assign{Target: model.Point{X: x, Y: y}, Incident: inc}, nil
}

func decodeReassign(f []string) (Message, error) {
	if len(f) < 7 {
		return nil, short(f)
	}
	id, err := atoi(f[1])
	if err != nil {
		return nil, err
	}
	inc, err := incidentFields(f[2], f[3], f[4], f[5], f[6], at(f, 7))
	if err != nil {
		return nil, err
	}
	return Reassign{AgentID: id, Incident: inc}, nil
}

func decodeComplete(f []string) (Message, error) {
	if len(f) < 6 {
		return nil, short(f)
	}
	id, err := atoi(f[1])
	if err != nil {
		return nil, err
	}
	inc, err := incidentFields(f[2], f[3], f[4], "0", f[5], at(f, 6))
	if err != nil {
		return nil, err
	}
	return Complete{AgentID: id, Incident: inc}, nil
}

var trailingInt = regexp.MustCompile(`(\d+)\D*$`)

func decodeFault(s string) (Message, error) {
	idx := strings.Index(s, faultMarker)
	prefix := strings.TrimSpace(s[:idx])
	m := trailingInt.FindStringSubmatch(prefix)
	if m == nil {
		return nil, fmt.Errorf("%w: no agent id in %q", ErrMalformed, prefix)
	}
	id, err := atoi(m[1])
	if err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(s[idx+len(faultMarker):])
	desc = strings.TrimSpace(strings.TrimPrefix(desc, faultError))
	return FaultReport{AgentID: id, Prefix: prefix, Description: desc}, nil
}

func incidentFields(zone, eventType, severity, need, ts, id string) (model.Incident, error) {
	z, err := atoi(zone)
	if err != nil {
		return model.Incident{}, err
	}
	n := 0
	if need != "" {
		if n, err = atoi(need); err != nil {
			return model.Incident{}, err
		}
	}
	sev := model.ParseSeverity(severity)
	if n <= 0 {
		n = model.DefaultResource(sev)
	}
	return model.Incident{
		ID:             model.IncidentID(id),
		Zone:           z,
		EventType:      eventType,
		Severity:       sev,
		ResourceNeeded: n,
		ReportedAt:     parseTime(ts),
	}, nil
}

// ParseTime accepts RFC3339 or a bare HH:MM:SS clock time (taken as today in
// UTC). Anything else yields the zero time.
func ParseTime(v string) time.Time { return parseTime(v) }

func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.TimeOnly, v); err == nil {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func join(fields ...string) []byte { return []byte(strings.Join(fields, ",")) }

func clean(s string) string { return strings.ReplaceAll(s, ",", " ") }

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func at(f []string, i int) string {
	if i < len(f) {
		return f[i]
	}
	return ""
}

func atoi(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return n, nil
}

func atof(v string) (float64, error) {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return n, nil
}

func short(f []string) error {
	return fmt.Errorf("%w: %s has %d fields", ErrMalformed, f[0], len(f))
}
