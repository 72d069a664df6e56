package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

const maxDatagram = 4096

// UDPConfig maps endpoints to ports on a single host.
type UDPConfig struct {
	Host          string `json:"host"`
	IncidentPort  int    `json:"incident_port"`
	AgentsPort    int    `json:"agents_port"`
	AgentBasePort int    `json:"agent_base_port"`
}

func (c *UDPConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.IncidentPort == 0 {
		c.IncidentPort = 4000
	}
	if c.AgentsPort == 0 {
		c.AgentsPort = 6000
	}
	if c.AgentBasePort == 0 {
		c.AgentBasePort = 6000
	}
}

// Addr resolves an endpoint to its UDP address. Agent i listens on
// AgentBasePort+i.
func (c UDPConfig) Addr(ep coretransport.Endpoint) (*net.UDPAddr, error) {
	port := 0
	switch ep {
	case coretransport.IncidentEndpoint:
		port = c.IncidentPort
	case coretransport.AgentsEndpoint:
		port = c.AgentsPort
	default:
		id, ok := ep.AgentID()
		if !ok {
			return nil, fmt.Errorf("no udp mapping for endpoint %q", ep)
		}
		port = c.AgentBasePort + id
	}
	return net.ResolveUDPAddr("udp", net.JoinHostPort(c.Host, strconv.Itoa(port)))
}

// UDP sends and receives datagrams over real sockets.
type UDP struct {
	cfg UDPConfig

	mu     sync.Mutex
	out    *net.UDPConn
	closed bool
}

func NewUDP(cfg UDPConfig) (*UDP, error) {
	cfg.SetDefaults()
	out, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open send socket: %w", err)
	}
	return &UDP{cfg: cfg, out: out}, nil
}

func (u *UDP) Listen(ep coretransport.Endpoint) (coretransport.Conn, error) {
	addr, err := u.cfg.Addr(ep)
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s on %s: %w", ep, addr, err)
	}
	return &udpConn{ep: ep, conn: c}, nil
}

func (u *UDP) Send(ep coretransport.Endpoint, payload []byte) error {
	addr, err := u.cfg.Addr(ep)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return coretransport.ErrClosed
	}
	if _, err := u.out.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("send %s: %w", ep, err)
	}
	return nil
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.out.Close()
}

type udpConn struct {
	ep   coretransport.Endpoint
	conn *net.UDPConn
}

func (c *udpConn) Receive(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, mapNetErr(err)
	}
	buf := make([]byte, maxDatagram)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, mapNetErr(err)
	}
	return buf[:n], nil
}

func (c *udpConn) Endpoint() coretransport.Endpoint { return c.ep }

func (c *udpConn) Close() error { return c.conn.Close() }

func mapNetErr(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return coretransport.ErrTimeout
	case errors.Is(err, net.ErrClosed):
		return coretransport.ErrClosed
	}
	return err
}
