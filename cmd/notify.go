package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/server"
)

var notifySocket string

var notifyCmd = &cobra.Command{
	Use:   "notify <player> <0|1>",
	Short: "Send a player state change to the running daemon",
	Long: `Send one play/stop event to the daemon's control socket.

This is the squeezelite -S callback: squeezelite appends the power state
(1 on play, 0 on stop) to the configured command line.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		player := args[0]

		var started bool
		switch args[1] {
		case "0":
			started = false
		case "1":
			started = true
		default:
			return fmt.Errorf("state must be 0 or 1, got %q", args[1])
		}

		if notifySocket == "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			notifySocket = cfg.SocketPath
		}

		return server.Notify(notifySocket, player, started, 5*time.Second)
	},
}

func init() {
	notifyCmd.Flags().StringVar(&notifySocket, "socket", "", "control socket path (default from config)")
}
