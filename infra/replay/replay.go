// Package replay reads incident files and submits them to the coordinator.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
)

// DefaultInterval separates consecutive submissions.
const DefaultInterval = 500 * time.Millisecond

// ParseCSV reads a header line and rows of "time,zone,eventType,severity"
// with an optional fifth resource column. Rows with fewer than four fields
// are skipped. Times are "HH:MM:SS" on the day of base.
func ParseCSV(r io.Reader, base time.Time) ([]model.Incident, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("incident header: %w", err)
	}
	var out []model.Incident
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 4 {
			continue
		}
		line, _ := cr.FieldPos(0)
		zone, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("incident line %d: zone: %w", line, err)
		}
		sev := model.ParseSeverity(rec[3])
		if sev == model.SeverityUnknown {
			return nil, fmt.Errorf("incident line %d: unknown severity %q", line, rec[3])
		}
		need := 0
		if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
			if need, err = strconv.Atoi(strings.TrimSpace(rec[4])); err != nil {
				return nil, fmt.Errorf("incident line %d: resource: %w", line, err)
			}
		}
		at := onDay(base, protocol.ParseTime(strings.TrimSpace(rec[0])))
		out = append(out, model.NewIncident(zone, strings.TrimSpace(rec[2]), sev, need, at))
	}
}

// LoadCSV opens path and parses it with ParseCSV.
func LoadCSV(path string, base time.Time) ([]model.Incident, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseCSV(f, base)
}

func onDay(base, tod time.Time) time.Time {
	if tod.IsZero() {
		return base
	}
	y, m, d := base.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, base.Location())
}

// Replayer sends incidents to the coordinator's incident endpoint.
type Replayer struct {
	tr       transport.Transport
	clk      clock.Clock
	interval time.Duration
	log      logger.Logger
}

func New(tr transport.Transport, clk clock.Clock, interval time.Duration, log logger.Logger) *Replayer {
	if clk == nil {
		clk = clock.Real()
	}
	return &Replayer{tr: tr, clk: clk, interval: interval, log: logger.OrNop(log)}
}

// Send submits a single incident.
func (r *Replayer) Send(inc model.Incident) error {
	return r.tr.Send(transport.IncidentEndpoint, protocol.IncidentReport{Incident: inc}.Encode())
}

// Replay submits incidents in order, pausing between them. It returns the
// number sent. A failed send is logged and skipped.
func (r *Replayer) Replay(ctx context.Context, incidents []model.Incident) (int, error) {
	sent := 0
	for i, inc := range incidents {
		if i > 0 && r.interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-r.clk.After(r.interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.Send(inc); err != nil {
			r.log.Warnf("replay: send incident zone %d: %v", inc.Zone, err)
			continue
		}
		sent++
		r.log.Infof("replay: sent %s incident in zone %d (%s)", inc.EventType, inc.Zone, inc.Severity)
	}
	return sent, nil
}
