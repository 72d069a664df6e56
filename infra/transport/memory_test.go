package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

func TestMemoryDeliversToListener(t *testing.T) {
	m := NewMemory()
	conn, err := m.Listen(coretransport.AgentEndpoint(1))
	require.NoError(t, err)

	require.NoError(t, m.Send(coretransport.AgentEndpoint(1), []byte("ResetCountdown")))
	got, err := conn.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ResetCountdown", string(got))

	_, err = conn.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, coretransport.ErrTimeout)
}

func TestMemoryUnboundEndpointDropsSilently(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Send(coretransport.AgentEndpoint(9), []byte("x")))
	assert.Len(t, m.SentTo(coretransport.AgentEndpoint(9)), 1)
}

func TestMemoryFailSends(t *testing.T) {
	m := NewMemory()
	m.FailSends(coretransport.AgentEndpoint(2), true)
	err := m.Send(coretransport.AgentEndpoint(2), []byte("x"))
	require.Error(t, err)
	assert.Empty(t, m.Sent())

	m.FailSends(coretransport.AgentEndpoint(2), false)
	assert.NoError(t, m.Send(coretransport.AgentEndpoint(2), []byte("x")))
}

func TestMemoryListenTwiceFails(t *testing.T) {
	m := NewMemory()
	c, err := m.Listen(coretransport.AgentsEndpoint)
	require.NoError(t, err)
	_, err = m.Listen(coretransport.AgentsEndpoint)
	assert.Error(t, err)

	require.NoError(t, c.Close())
	_, err = m.Listen(coretransport.AgentsEndpoint)
	assert.NoError(t, err, "closing releases the endpoint")
}

func TestMemoryCloseWakesReceivers(t *testing.T) {
	m := NewMemory()
	conn, err := m.Listen(coretransport.IncidentEndpoint)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := conn.Receive(time.Minute)
		done <- err
	}()
	require.NoError(t, m.Close())
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, coretransport.ErrClosed))
	case <-time.After(time.Second):
		t.Fatalf("receiver not woken")
	}
	assert.ErrorIs(t, m.Send(coretransport.IncidentEndpoint, []byte("x")), coretransport.ErrClosed)
}

func TestMemoryLoss(t *testing.T) {
	m := NewMemory()
	m.SetLoss(1, 7)
	conn, err := m.Listen(coretransport.AgentsEndpoint)
	require.NoError(t, err)
	require.NoError(t, m.Send(coretransport.AgentsEndpoint, []byte("Drone,1,0,0,IDLE")))
	_, err = conn.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, coretransport.ErrTimeout)
}
