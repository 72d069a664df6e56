package transport

import (
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

type mockClient struct {
	mu        sync.Mutex
	opts      *paho.ClientOptions
	handlers  map[string]paho.MessageHandler
	published []string
	pubErr    error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	m.published = append(m.published, topic)
	h := m.handlers[topic]
	err := m.pubErr
	m.mu.Unlock()
	if err != nil {
		return dummyToken{err: err}
	}
	if h != nil {
		h(nil, mockMessage{topic: topic, p: payload.([]byte)})
	}
	return dummyToken{}
}
func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = map[string]paho.MessageHandler{}
	}
	m.handlers[topic] = cb
	return dummyToken{}
}
func (m *mockClient) Unsubscribe(topics ...string) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		delete(m.handlers, t)
	}
	return dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func TestMQTTTopicMapping(t *testing.T) {
	cfg := MQTTConfig{TopicPrefix: "fleet/"}
	if got := cfg.Topic(coretransport.AgentEndpoint(4)); got != "fleet/agent/4" {
		t.Fatalf("unexpected topic %s", got)
	}
}

func TestMQTTSendReceive(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	m, err := NewMQTT(MQTTConfig{Broker: "tcp://localhost:1883", TopicPrefix: "ds"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, err := m.Listen(coretransport.AgentsEndpoint)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := m.Send(coretransport.AgentsEndpoint, []byte("Drone,1,0,0,IDLE")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := conn.Receive(time.Second)
	if err != nil || string(got) != "Drone,1,0,0,IDLE" {
		t.Fatalf("receive: %q %v", got, err)
	}
	if mc.published[0] != "ds/agents" {
		t.Fatalf("wrong topic %s", mc.published[0])
	}

	_ = conn.Close()
	if _, ok := mc.handlers["ds/agents"]; ok {
		t.Fatalf("expected unsubscribe on close")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMQTTPublishError(t *testing.T) {
	mc := &mockClient{pubErr: fmt.Errorf("broker gone")}
	withMock(t, mc)
	m, err := NewMQTT(MQTTConfig{Broker: "tcp://localhost:1883"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Send(coretransport.AgentEndpoint(1), []byte("x")); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestLoadTLSConfigRequiresFiles(t *testing.T) {
	if _, err := (MQTTConfig{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error without cert paths")
	}
}
