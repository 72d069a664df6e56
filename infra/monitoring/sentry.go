// Package monitoring reports coordinator errors and panics to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/adamsaleh11/DroneSystem/config"
	coremon "github.com/adamsaleh11/DroneSystem/core/monitoring"
)

// NewSentryMonitor initializes Sentry and returns a Monitor whose events
// carry the component tag. An empty DSN yields a no-op monitor.
func NewSentryMonitor(cfg config.SentryConfig, component string) (coremon.Monitor, error) {
	return newSentryMonitor(cfg, component, nil)
}

func newSentryMonitor(cfg config.SentryConfig, component string,
	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return nil, err
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	if component != "" {
		hub.Scope().SetTag("component", component)
	}
	return &sentryMonitor{hub: hub}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		s.hub.CaptureException(err)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

// Recover reports a panic and re-raises it. It must be deferred directly.
func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
