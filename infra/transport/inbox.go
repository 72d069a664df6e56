package transport

import (
	"sync"
	"time"

	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

const inboxSize = 256

// inbox is a bounded datagram queue shared by the memory and MQTT
// transports. A full inbox drops new datagrams, like a full socket buffer.
type inbox struct {
	ep     coretransport.Endpoint
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
	onDone func()
}

func newInbox(ep coretransport.Endpoint, onDone func()) *inbox {
	return &inbox{ep: ep, ch: make(chan []byte, inboxSize), done: make(chan struct{}), onDone: onDone}
}

func (b *inbox) push(p []byte) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ch <- append([]byte(nil), p...):
		return true
	default:
		return false
	}
}

func (b *inbox) Receive(timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-b.ch:
		return p, nil
	case <-b.done:
		return nil, coretransport.ErrClosed
	case <-t.C:
		return nil, coretransport.ErrTimeout
	}
}

func (b *inbox) Endpoint() coretransport.Endpoint { return b.ep }

func (b *inbox) Close() error {
	b.once.Do(func() {
		close(b.done)
		if b.onDone != nil {
			b.onDone()
		}
	})
	return nil
}
