package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamsaleh11/DroneSystem/app"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/infra/logger"
	"github.com/adamsaleh11/DroneSystem/infra/replay"
)

var (
	incZone      int
	incType      string
	incSeverity  string
	incResource  int
	replayPeriod time.Duration
)

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Submit incidents to the coordinator",
}

var incidentSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single incident",
	RunE:  runIncidentSend,
}

var incidentReplayCmd = &cobra.Command{
	Use:   "replay <csv>",
	Short: "Replay a time,zone,eventType,severity event file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentReplay,
}

func init() {
	incidentSendCmd.Flags().IntVarP(&incZone, "zone", "z", 1, "zone id")
	incidentSendCmd.Flags().StringVarP(&incType, "type", "t", "FIRE_DETECTED", "event type")
	incidentSendCmd.Flags().StringVarP(&incSeverity, "severity", "s", "Moderate", "Low, Moderate or High")
	incidentSendCmd.Flags().IntVarP(&incResource, "resource", "r", 0, "resource needed (severity default when 0)")
	incidentReplayCmd.Flags().DurationVar(&replayPeriod, "interval", replay.DefaultInterval, "delay between incidents")
	incidentCmd.AddCommand(incidentSendCmd, incidentReplayCmd)
	rootCmd.AddCommand(incidentCmd)
}

func newReplayer(interval time.Duration) (*replay.Replayer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logg := logger.New("incident")
	tr, err := app.NewTransport(cfg.Transport, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: %w", err)
	}
	closeFn := func() {
		if err := tr.Close(); err != nil {
			logg.Errorf("transport close: %v", err)
		}
	}
	return replay.New(tr, nil, interval, logg), closeFn, nil
}

func runIncidentSend(cmd *cobra.Command, args []string) error {
	sev := model.ParseSeverity(incSeverity)
	if sev == model.SeverityUnknown {
		return fmt.Errorf("unknown severity %q", incSeverity)
	}
	r, closeFn, err := newReplayer(0)
	if err != nil {
		return err
	}
	defer closeFn()
	inc := model.NewIncident(incZone, incType, sev, incResource, time.Now())
	if err := r.Send(inc); err != nil {
		return fmt.Errorf("send incident: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", inc.ID)
	return err
}

func runIncidentReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	incs, err := replay.LoadCSV(args[0], time.Now())
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	r, closeFn, err := newReplayer(replayPeriod)
	if err != nil {
		return err
	}
	defer closeFn()
	n, err := r.Replay(ctx, incs)
	if _, ferr := fmt.Fprintf(cmd.OutOrStdout(), "sent %d of %d incidents\n", n, len(incs)); ferr != nil {
		return ferr
	}
	return err
}
