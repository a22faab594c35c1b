package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/fan"
)

var fanCmd = &cobra.Command{
	Use:   "fan",
	Short: "Run the PWM case fan controller",
	Long: `Control the case fan from the DS18B20 sensors in the fan section of
the configuration. Useful standalone on rigs that want cooling without
the full daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if len(cfg.Fan.SensorIDs) == 0 {
			return fmt.Errorf("no fan sensors configured (fan.sensor_ids)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return fan.NewController(cfg.Fan).Run(ctx)
	},
}
