package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "ampcontrol",
	Short: "Power sequencing for multi-channel amplifier racks",
	Long: `ampcontrol keeps a rack of USB soundcard amplifiers powered only
while someone is actually listening.

Squeezelite players report play and stop events over a unix socket. The
daemon translates them into GPIO sequences: un-suspending and un-muting
amplifier channels in the order the hardware needs, switching the shared
power supply, and shutting everything down again after the configured
idle timeouts.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verboseLevel)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is /etc/ampcontrol.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(playersCmd)
	rootCmd.AddCommand(fanCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}
