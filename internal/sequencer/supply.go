package sequencer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/hw"
)

// SupplyController owns the shared power supply line. Same shape as a
// channel controller but without a player set: just an on/off flag and a
// debounce timer.
type SupplyController struct {
	out hw.Output

	mu    sync.Mutex
	timer *time.Timer

	active atomic.Bool
}

// NewSupplyController wires the controller to the supply relay line, which
// is expected to start deasserted (supply off).
func NewSupplyController(out hw.Output) *SupplyController {
	return &SupplyController{out: out}
}

// IsActive reports the supply state without taking the lock; same rationale
// as ChannelController.IsActive.
func (s *SupplyController) IsActive() bool {
	return s.active.Load()
}

// Activate switches the supply on. A pending shutdown countdown is always
// cancelled first, even when the supply is already on: a fresh play event
// must never leave a stale countdown running.
func (s *SupplyController) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		slog.Info("cancelling pending supply shutdown")
		s.timer.Stop()
		s.timer = nil
	}

	if s.active.Load() {
		slog.Debug("supply already on")
		return nil
	}

	if err := s.out.Set(true); err != nil {
		slog.Error("supply activation failed", "error", err)
		return err
	}
	s.active.Store(true)
	slog.Info("power supply on")
	return nil
}

// ScheduleDeactivation arms (or re-arms) the shutdown countdown. There is
// no re-check against channel activity when it fires: the coordinator does
// that check before scheduling, because the supply has no visibility into
// channel state.
func (s *SupplyController) ScheduleDeactivation(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	slog.Info("scheduling supply shutdown", "after", timeout)
	s.timer = time.AfterFunc(timeout, func() {
		if err := s.Deactivate(); err != nil {
			slog.Error("scheduled supply shutdown failed", "error", err)
		}
	})
}

// Deactivate switches the supply off. No-op when already off.
func (s *SupplyController) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivateLocked()
}

func (s *SupplyController) deactivateLocked() error {
	if !s.active.Load() {
		return nil
	}
	if err := s.out.Set(false); err != nil {
		slog.Error("supply deactivation failed", "error", err)
		return err
	}
	s.active.Store(false)
	slog.Info("power supply off")
	return nil
}

// ForceOff cancels any countdown and switches the supply off immediately.
// Only the coordinator's emergency path uses it.
func (s *SupplyController) ForceOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.deactivateLocked()
}
