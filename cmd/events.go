package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/pkg/export"
)

var (
	exportFormat   string
	exportSince    time.Duration
	exportAgent    int
	exportIncident string
	exportCategory string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the dispatch audit log",
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write audit log records as CSV or JSON",
	RunE:  runEventsExport,
}

func init() {
	f := eventsExportCmd.Flags()
	f.StringVarP(&exportFormat, "format", "f", "csv", "csv or json")
	f.DurationVar(&exportSince, "since", 0, "only records newer than this")
	f.IntVar(&exportAgent, "agent", 0, "filter by agent id")
	f.StringVar(&exportIncident, "incident", "", "filter by incident id")
	f.StringVar(&exportCategory, "category", "", "filter by category")
	eventsCmd.AddCommand(eventsExportCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := coreeventlog.NewStore(cfg.EventLog)
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	defer store.Close()

	q := coreeventlog.Query{
		AgentID:    exportAgent,
		IncidentID: exportIncident,
		Category:   coreeventlog.Category(exportCategory),
	}
	if exportSince > 0 {
		q.Start = time.Now().Add(-exportSince)
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return export.Write(cmd.OutOrStdout(), exportFormat, recs)
}
