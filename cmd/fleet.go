package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamsaleh11/DroneSystem/app"
	"github.com/adamsaleh11/DroneSystem/infra/logger"
)

var fleetCount int

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Run simulated drones against the coordinator",
	RunE:  runFleet,
}

func init() {
	fleetCmd.Flags().IntVarP(&fleetCount, "count", "n", 0, "number of generated agents (overrides fleet.count)")
	rootCmd.AddCommand(fleetCmd)
}

func runFleet(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fleetCount > 0 {
		cfg.Fleet.Agents = nil
		cfg.Fleet.Count = fleetCount
	}
	logg := logger.New("fleet")
	tr, err := app.NewTransport(cfg.Transport, logg)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logg.Errorf("transport close: %v", err)
		}
	}()
	fleet, err := app.NewFleet(cfg.Fleet.Resolve(), tr, nil, logg)
	if err != nil {
		return err
	}
	return fleet.Run(ctx)
}
