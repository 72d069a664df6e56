package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

// Datagram is a payload recorded by the memory transport.
type Datagram struct {
	To      coretransport.Endpoint
	Payload []byte
}

// Memory is an in-process transport used by tests, QA scenarios and the
// single-process demo. It can drop datagrams at random and fail sends to
// chosen endpoints.
type Memory struct {
	mu        sync.Mutex
	inboxes   map[coretransport.Endpoint]*inbox
	failSends map[coretransport.Endpoint]bool
	sent      []Datagram
	lossRate  float64
	rnd       *rand.Rand
	closed    bool
}

// NewMemory returns a lossless memory transport.
func NewMemory() *Memory {
	return &Memory{
		inboxes:   make(map[coretransport.Endpoint]*inbox),
		failSends: make(map[coretransport.Endpoint]bool),
		rnd:       rand.New(rand.NewSource(1)),
	}
}

// SetLoss makes Send silently drop a fraction of datagrams. The seed keeps
// runs reproducible.
func (m *Memory) SetLoss(rate float64, seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lossRate = rate
	m.rnd = rand.New(rand.NewSource(seed))
}

// FailSends makes every Send to ep return an I/O error.
func (m *Memory) FailSends(ep coretransport.Endpoint, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSends[ep] = fail
}

func (m *Memory) Listen(ep coretransport.Endpoint) (coretransport.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, coretransport.ErrClosed
	}
	if _, ok := m.inboxes[ep]; ok {
		return nil, fmt.Errorf("listen %s: endpoint in use", ep)
	}
	b := newInbox(ep, func() {
		m.mu.Lock()
		delete(m.inboxes, ep)
		m.mu.Unlock()
	})
	m.inboxes[ep] = b
	return b, nil
}

// Send delivers payload to ep if someone listens there. Datagrams to unbound
// endpoints vanish without error.
func (m *Memory) Send(ep coretransport.Endpoint, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return coretransport.ErrClosed
	}
	if m.failSends[ep] {
		m.mu.Unlock()
		return fmt.Errorf("send %s: %w", ep, errSimulated)
	}
	m.sent = append(m.sent, Datagram{To: ep, Payload: append([]byte(nil), payload...)})
	drop := m.lossRate > 0 && m.rnd.Float64() < m.lossRate
	b := m.inboxes[ep]
	m.mu.Unlock()
	if b != nil && !drop {
		b.push(payload)
	}
	return nil
}

// Sent returns every datagram accepted by Send, including dropped ones.
func (m *Memory) Sent() []Datagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Datagram(nil), m.sent...)
}

// SentTo filters Sent by destination.
func (m *Memory) SentTo(ep coretransport.Endpoint) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, d := range m.sent {
		if d.To == ep {
			out = append(out, d.Payload)
		}
	}
	return out
}

// Reset forgets recorded datagrams.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	boxes := make([]*inbox, 0, len(m.inboxes))
	for _, b := range m.inboxes {
		boxes = append(boxes, b)
	}
	m.mu.Unlock()
	for _, b := range boxes {
		b.Close()
	}
	return nil
}

var errSimulated = errors.New("simulated i/o failure")
