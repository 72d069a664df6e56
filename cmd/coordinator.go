package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamsaleh11/DroneSystem/app"
	"github.com/adamsaleh11/DroneSystem/infra/logger"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the dispatch coordinator",
	RunE:  runCoordinator,
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
