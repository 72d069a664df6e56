package fault

import "strings"

// Kind classifies a fault description.
type Kind int

const (
	KindUnknown Kind = iota
	KindStuck
	KindNozzle
	KindPacketLoss
)

func (k Kind) String() string {
	switch k {
	case KindStuck:
		return "stuck"
	case KindNozzle:
		return "nozzle"
	case KindPacketLoss:
		return "packet-loss"
	default:
		return "unknown"
	}
}

// Classify maps a free-text description to a Kind, case-insensitively.
func Classify(desc string) Kind {
	d := strings.ToLower(desc)
	switch {
	case strings.Contains(d, "stuck"):
		return KindStuck
	case strings.Contains(d, "nozzle"):
		return KindNozzle
	case strings.Contains(d, "packet loss"), strings.Contains(d, "connection lost"):
		return KindPacketLoss
	}
	return KindUnknown
}

// Diagnosis is the operator action suggested for a fault kind.
func Diagnosis(k Kind) string {
	switch k {
	case KindNozzle:
		return "Force nozzle reset and return to base."
	case KindStuck:
		return "Initiate return-to-base maneuver."
	case KindPacketLoss:
		return "Re-establish communication."
	}
	return "Manual inspection required."
}

// Description is the canonical fault text an agent reports for a kind.
func Description(k Kind) string {
	switch k {
	case KindNozzle:
		return "Drone Nozzle Malfunction"
	case KindStuck:
		return "Drone is stuck in flight."
	case KindPacketLoss:
		return "Drone Connection Lost Via Packet Loss"
	}
	return "Unknown fault"
}
