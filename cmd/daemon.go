package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/soellman/pidfile"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/fan"
	"github.com/audiolibrelab/ampcontrol/internal/hw"
	"github.com/audiolibrelab/ampcontrol/internal/sequencer"
	"github.com/audiolibrelab/ampcontrol/internal/server"
	"github.com/audiolibrelab/ampcontrol/internal/status"
	"github.com/audiolibrelab/ampcontrol/internal/therm"
)

var debugTimeouts bool

const statusInterval = 10 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the power sequencing daemon",
	Long: `Run the daemon: open all GPIO lines in their reset state, listen for
player events on the unix socket and sequence amplifier power accordingly.

Intended to run under systemd. On SIGTERM or SIGINT the socket and the
status file are removed and the error LED is lit so a dead controller is
visible on the front panel; amplifier hardware is left as-is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if debugTimeouts {
			cfg.Timing.ChannelIdle = time.Minute
			cfg.Timing.SupplyIdle = 2 * time.Minute
			slog.Info("debug timeouts active",
				"channel_idle", cfg.Timing.ChannelIdle,
				"supply_idle", cfg.Timing.SupplyIdle)
		}

		return runDaemon(cfg)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&debugTimeouts, "debug", false, "shorten idle timeouts to 1m/2m for testing")
}

func runDaemon(cfg *config.Config) error {
	slog.Info("amp control daemon starting",
		"socket", cfg.SocketPath, "soundcards", len(cfg.Soundcards))

	if err := pidfile.Write(cfg.PidFile); err != nil {
		return fmt.Errorf("error writing pid file %s: %w", cfg.PidFile, err)
	}
	defer pidfile.Remove(cfg.PidFile)

	opener, err := hw.NewOpener()
	if err != nil {
		return fmt.Errorf("error initializing GPIO: %w", err)
	}

	coord, err := sequencer.New(cfg, opener)
	if err != nil {
		return fmt.Errorf("error initializing sequencer: %w", err)
	}

	srv := server.New(cfg.SocketPath, coord)
	if err := srv.Start(); err != nil {
		coord.EmergencyShutdown("control socket setup failed")
		return fmt.Errorf("error starting control socket: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	writer := status.NewWriter(cfg.StatusFile, statusInterval, coord,
		therm.New(cfg.Fan.SensorRoot), cardSensors(cfg))
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Run(ctx)
	}()

	if len(cfg.Fan.SensorIDs) > 0 {
		fanCtl := fan.NewController(cfg.Fan)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fanCtl.Run(ctx); err != nil {
				slog.Error("fan control failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")

	srv.Close()
	wg.Wait()
	coord.Close()

	slog.Info("amp control daemon stopped")
	return nil
}


// cardSensors maps soundcard ids to their DS18B20 sensors for the status
// writer. Cards without a sensor are simply absent.
func cardSensors(cfg *config.Config) map[int]string {
	sensors := make(map[int]string)
	for _, sc := range cfg.Soundcards {
		if sc.SensorID != "" {
			sensors[sc.ID] = sc.SensorID
		}
	}
	return sensors
}
