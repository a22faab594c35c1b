// Package launcher supervises one squeezelite process per configured
// player. Crashed instances are restarted; shutdown terminates them
// gracefully with a kill fallback.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/config"
)

const (
	monitorInterval = 5 * time.Second
	stopTimeout     = 5 * time.Second
)

// instance is one running squeezelite process and the channel its monitor
// goroutine closes when the process exits.
type instance struct {
	player config.PlayerConfig
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

// Launcher starts and supervises the squeezelite fleet.
type Launcher struct {
	cfg *config.Config

	mu        sync.Mutex
	processes map[string]*instance
	stopping  bool
}

// New builds a launcher for the players in cfg.
func New(cfg *config.Config) *Launcher {
	return &Launcher{
		cfg:       cfg,
		processes: make(map[string]*instance),
	}
}

// buildArgs assembles the squeezelite command line for one player.
func (l *Launcher) buildArgs(player config.PlayerConfig) []string {
	sq := l.cfg.Squeezelite

	args := []string{
		"-n", player.Description,
		"-o", player.AlsaDevice,
		"-S", fmt.Sprintf("%s %s", sq.CallbackCommand, player.Name),
	}
	if player.MacAddress != "" {
		args = append(args, "-m", player.MacAddress)
	}
	if sq.LMSServer != "" {
		args = append(args, "-s", sq.LMSServer)
	}
	for _, opt := range sq.CommonOptions {
		args = append(args, strings.Fields(opt)...)
	}
	return args
}

// StartAll launches every configured player. It returns an error when any
// instance fails to start; the ones already running keep running so the
// monitor loop can report on them.
func (l *Launcher) StartAll() error {
	var failed []string
	for _, card := range l.cfg.Soundcards {
		slog.Info("starting players", "soundcard", card.Name, "players", len(card.Players))
		for _, player := range card.Players {
			if err := l.start(player); err != nil {
				slog.Error("error starting player", "player", player.Name, "error", err)
				failed = append(failed, player.Name)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("error starting players: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (l *Launcher) start(player config.PlayerConfig) error {
	args := l.buildArgs(player)
	cmd := exec.Command(l.cfg.Squeezelite.Binary, args...)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error launching %s: %w", l.cfg.Squeezelite.Binary, err)
	}

	inst := &instance{
		player: player,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	go func() {
		inst.err = cmd.Wait()
		close(inst.done)
	}()

	l.mu.Lock()
	l.processes[player.Name] = inst
	l.mu.Unlock()

	slog.Info("player started",
		"player", player.Name, "pid", cmd.Process.Pid,
		"command", l.cfg.Squeezelite.Binary+" "+strings.Join(args, " "))
	return nil
}

// Run monitors the fleet until the context is cancelled, restarting any
// instance that exits on its own. All instances are stopped before Run
// returns.
func (l *Launcher) Run(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	slog.Info("monitoring squeezelite instances")
	for {
		select {
		case <-ctx.Done():
			l.StopAll()
			return
		case <-ticker.C:
			l.restartCrashed()
		}
	}
}

func (l *Launcher) restartCrashed() {
	l.mu.Lock()
	var crashed []*instance
	for name, inst := range l.processes {
		select {
		case <-inst.done:
			delete(l.processes, name)
			crashed = append(crashed, inst)
		default:
		}
	}
	stopping := l.stopping
	l.mu.Unlock()

	if stopping {
		return
	}
	for _, inst := range crashed {
		slog.Error("player terminated", "player", inst.player.Name, "error", inst.err)
		slog.Info("restarting player", "player", inst.player.Name)
		if err := l.start(inst.player); err != nil {
			slog.Error("error restarting player", "player", inst.player.Name, "error", err)
		}
	}
}

// StopAll terminates every running instance. SIGTERM first, SIGKILL for
// anything still alive after the stop timeout.
func (l *Launcher) StopAll() {
	l.mu.Lock()
	l.stopping = true
	instances := make([]*instance, 0, len(l.processes))
	for name, inst := range l.processes {
		delete(l.processes, name)
		instances = append(instances, inst)
	}
	l.mu.Unlock()

	for _, inst := range instances {
		l.stop(inst)
	}
	slog.Info("all players stopped")
}

func (l *Launcher) stop(inst *instance) {
	select {
	case <-inst.done:
		return
	default:
	}

	if err := inst.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Warn("error signaling player", "player", inst.player.Name, "error", err)
	}
	select {
	case <-inst.done:
	case <-time.After(stopTimeout):
		slog.Warn("player did not exit, killing", "player", inst.player.Name)
		inst.cmd.Process.Kill()
		<-inst.done
	}
	slog.Info("player stopped", "player", inst.player.Name)
}
