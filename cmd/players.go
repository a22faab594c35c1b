package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/launcher"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Start and supervise the squeezelite instances",
	Long: `Start one squeezelite process per configured player and keep them
running. Crashed instances are restarted; SIGTERM stops them all.

Runs as its own systemd unit alongside the daemon, so a squeezelite
upgrade never takes the power sequencing down with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		l := launcher.New(cfg)
		if err := l.StartAll(); err != nil {
			l.StopAll()
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		l.Run(ctx)
		return nil
	},
}
