// Package export renders audit log records for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/eventlog"
)

// Header is the CSV column order written by WriteCSV.
var Header = []string{"timestamp", "category", "agent_id", "incident_id", "zone", "severity", "message"}

// WriteJSON writes recs to w as a single JSON array.
func WriteJSON(w io.Writer, recs []eventlog.Record) error {
	if recs == nil {
		recs = []eventlog.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes recs to w with a header row. Zero ids are left blank.
func WriteCSV(w io.Writer, recs []eventlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.Timestamp.Format(time.RFC3339Nano),
			string(r.Category),
			blankZero(r.AgentID),
			r.IncidentID,
			blankZero(r.Zone),
			r.Severity,
			r.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, which is "csv" or "json".
func Write(w io.Writer, format string, recs []eventlog.Record) error {
	switch format {
	case "csv":
		return WriteCSV(w, recs)
	case "json":
		return WriteJSON(w, recs)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func blankZero(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
