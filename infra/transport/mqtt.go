package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/adamsaleh11/DroneSystem/core/logger"
	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
)

// MQTTConfig defines the broker connection used when datagrams are carried
// over MQTT. Every endpoint maps to the topic "<topic_prefix>/<endpoint>".
type MQTTConfig struct {
	Broker           string      `json:"broker"`
	ClientID         string      `json:"client_id"`
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	TopicPrefix      string      `json:"topic_prefix"`
	QoS              byte        `json:"qos"`
	UseTLS           bool        `json:"use_tls"`
	ClientCert       string      `json:"client_cert"`
	ClientKey        string      `json:"client_key"`
	CABundle         string      `json:"ca_bundle"`
	PublishTimeoutMS int         `json:"publish_timeout_ms"`
	TLSConfig        *tls.Config `json:"-"`
}

func (c *MQTTConfig) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "dronesystem"
	}
	if c.ClientID == "" {
		c.ClientID = "dronesystem-" + uuid.NewString()[:8]
	}
	if c.PublishTimeoutMS == 0 {
		c.PublishTimeoutMS = 1000
	}
}

// Topic returns the MQTT topic carrying ep.
func (c MQTTConfig) Topic(ep coretransport.Endpoint) string {
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/" + string(ep)
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c MQTTConfig) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClientOptions builds paho client options from cfg.
func NewClientOptions(cfg MQTTConfig) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.CleanSession = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// MQTT carries datagrams as MQTT messages. QoS 0 keeps the best-effort
// semantics of the UDP transport.
type MQTT struct {
	cfg     MQTTConfig
	cli     pahoClient
	log     logger.Logger
	timeout time.Duration

	mu      sync.Mutex
	inboxes map[coretransport.Endpoint]*inbox
}

// NewMQTT connects to the broker. Subscriptions are restored on reconnect.
func NewMQTT(cfg MQTTConfig, log logger.Logger) (*MQTT, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	m := &MQTT{
		cfg:     cfg,
		log:     log,
		timeout: time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
		inboxes: make(map[coretransport.Endpoint]*inbox),
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		m.resubscribe()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	m.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return m, nil
}

func (m *MQTT) Listen(ep coretransport.Endpoint) (coretransport.Conn, error) {
	m.mu.Lock()
	if _, ok := m.inboxes[ep]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("listen %s: endpoint in use", ep)
	}
	b := newInbox(ep, func() { m.unlisten(ep) })
	m.inboxes[ep] = b
	m.mu.Unlock()

	if err := m.subscribe(ep, b); err != nil {
		m.mu.Lock()
		delete(m.inboxes, ep)
		m.mu.Unlock()
		return nil, err
	}
	return b, nil
}

func (m *MQTT) subscribe(ep coretransport.Endpoint, b *inbox) error {
	topic := m.cfg.Topic(ep)
	token := m.cli.Subscribe(topic, m.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		if !b.push(msg.Payload()) {
			m.log.Warnf("inbox %s full, dropping datagram", ep)
		}
	})
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) resubscribe() {
	m.mu.Lock()
	boxes := make(map[coretransport.Endpoint]*inbox, len(m.inboxes))
	for ep, b := range m.inboxes {
		boxes[ep] = b
	}
	m.mu.Unlock()
	for ep, b := range boxes {
		if err := m.subscribe(ep, b); err != nil {
			m.log.Errorf("resubscribe: %v", err)
		}
	}
}

func (m *MQTT) unlisten(ep coretransport.Endpoint) {
	m.mu.Lock()
	delete(m.inboxes, ep)
	m.mu.Unlock()
	if m.cli.IsConnected() {
		m.cli.Unsubscribe(m.cfg.Topic(ep)).WaitTimeout(m.timeout)
	}
}

// Send publishes once; there are no retries.
func (m *MQTT) Send(ep coretransport.Endpoint, payload []byte) error {
	token := m.cli.Publish(m.cfg.Topic(ep), m.cfg.QoS, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("publish %s: timeout", ep)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", ep, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	boxes := make([]*inbox, 0, len(m.inboxes))
	for _, b := range m.inboxes {
		boxes = append(boxes, b)
	}
	m.mu.Unlock()
	for _, b := range boxes {
		b.Close()
	}
	if m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
	return nil
}
