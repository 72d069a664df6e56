// Package transport defines the best-effort datagram channel between the
// coordinator, its agents and incident reporters.
package transport

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned by Receive when no datagram arrived in time.
	ErrTimeout = errors.New("transport: receive timeout")
	// ErrClosed is returned by operations on a closed connection or transport.
	ErrClosed = errors.New("transport: closed")
)

// Endpoint names a datagram destination.
type Endpoint string

const (
	IncidentEndpoint Endpoint = "incidents"
	AgentsEndpoint   Endpoint = "agents"

	agentPrefix = "agent/"
)

// AgentEndpoint is the inbox of a single agent.
func AgentEndpoint(id int) Endpoint { return Endpoint(agentPrefix + strconv.Itoa(id)) }

// AgentID extracts the id from an agent endpoint.
func (e Endpoint) AgentID() (int, bool) {
	rest, ok := strings.CutPrefix(string(e), agentPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	return id, err == nil
}

// Transport sends datagrams and opens listening endpoints. Delivery is
// best-effort: a nil Send error does not imply receipt.
type Transport interface {
	Listen(ep Endpoint) (Conn, error)
	Send(ep Endpoint, payload []byte) error
	Close() error
}

// Conn receives datagrams addressed to one endpoint.
type Conn interface {
	// Receive blocks for at most timeout and returns ErrTimeout if nothing
	// arrived.
	Receive(timeout time.Duration) ([]byte, error)
	Endpoint() Endpoint
	Close() error
}
