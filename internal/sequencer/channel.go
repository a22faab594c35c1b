// Package sequencer contains the power sequencing state machine for the
// amplifier rig: one controller per sound card channel, one controller for
// the shared supply, and a coordinator that routes player events between
// them and decides when the supply may be released.
//
// Every controller serializes its own hardware sequence behind a private
// mutex. The settle sleeps inside a sequence run with that lock held, which
// is deliberate: no interleaved activate/deactivate may reorder pin writes
// for the same channel, and channels never wait on each other's locks.
package sequencer

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/hw"
)

// Timing holds the debounce timeouts and settle delays. It is built from
// the configuration once and shared read-only by all controllers.
type Timing struct {
	// ChannelIdle is how long a channel stays up with no active players
	// before it suspends.
	ChannelIdle time.Duration
	// SupplyIdle is how long the supply stays on after the last channel
	// suspended.
	SupplyIdle time.Duration
	// Settle is the pause between ordered pin writes within one sequence.
	Settle time.Duration
	// MuteToSuspend is the pause between muting and suspending on the way
	// down. A play event arriving inside this window reverses the mute.
	MuteToSuspend time.Duration
}

// ChannelController owns one sound card channel: its suspend, mute and LED
// lines, the set of currently playing players and the debounce timer.
//
// All mutation goes through the controller's own lock. The power state flag
// is additionally kept in an atomic so the coordinator can poll it without
// taking the lock (taking it could block for a full settle delay).
type ChannelController struct {
	id   int
	name string

	suspend hw.Output
	mute    hw.Output
	led     hw.Output

	timing Timing

	// notify is called after the channel has successfully suspended, so
	// the coordinator can evaluate whether the supply may be released.
	notify func()

	mu         sync.Mutex
	players    map[string]struct{}
	lastActive time.Time
	timer      *time.Timer

	active atomic.Bool
}

// NewChannelController wires a controller to its three output lines. The
// lines are expected to be in their reset state (suspend asserted, mute
// asserted, LED off), which is how the Opener configures them.
func NewChannelController(id int, name string, suspend, mute, led hw.Output, timing Timing, notify func()) *ChannelController {
	return &ChannelController{
		id:      id,
		name:    name,
		suspend: suspend,
		mute:    mute,
		led:     led,
		timing:  timing,
		notify:  notify,
		players: make(map[string]struct{}),
	}
}

// ID returns the channel's configured identifier.
func (c *ChannelController) ID() int { return c.id }

// Name returns the channel's configured name.
func (c *ChannelController) Name() string { return c.name }

// IsActive reports the power state without taking the lock. The read may be
// a beat stale, which is fine: it only ever gates a coarse timeout decision
// in the coordinator, never a hardware write.
func (c *ChannelController) IsActive() bool {
	return c.active.Load()
}

// MarkPlayerActive records a playing player and powers the channel up if it
// is not already up. Calling it again for the same player is a no-op. Any
// pending deactivation is cancelled; a deactivation already in flight will
// notice the player on its own re-check and back out.
func (c *ChannelController) MarkPlayerActive(player string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasEmpty := len(c.players) == 0
	c.players[player] = struct{}{}
	c.lastActive = time.Now()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if wasEmpty || !c.active.Load() {
		c.activateLocked()
	}
}

// MarkPlayerInactive removes a player from the active set. When the set
// becomes empty the idle countdown starts; the channel stays up until it
// fires.
func (c *ChannelController) MarkPlayerInactive(player string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.players, player)

	if len(c.players) == 0 {
		c.scheduleDeactivationLocked()
	}
}

// activateLocked runs the power-up sequence: release suspend, settle,
// unmute, LED on. A failed write aborts the sequence at that step; the
// state flag tracks the suspend line, which is the one that decides whether
// the card draws current.
func (c *ChannelController) activateLocked() {
	if c.active.Load() {
		return
	}

	slog.Info("activating channel", "channel", c.name)

	if err := c.suspend.Set(false); err != nil {
		slog.Error("channel activation failed", "channel", c.name, "step", "suspend", "error", err)
		return
	}
	c.active.Store(true)

	time.Sleep(c.timing.Settle)

	if err := c.mute.Set(false); err != nil {
		slog.Error("channel activation failed", "channel", c.name, "step", "mute", "error", err)
		return
	}
	if err := c.led.Set(true); err != nil {
		slog.Error("channel activation failed", "channel", c.name, "step", "led", "error", err)
		return
	}

	slog.Info("channel active", "channel", c.name)
}

func (c *ChannelController) scheduleDeactivationLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	slog.Info("scheduling channel suspend", "channel", c.name, "after", c.timing.ChannelIdle)
	c.timer = time.AfterFunc(c.timing.ChannelIdle, c.deactivate)
}

// deactivate is the idle timer's callback. Cancelling the timer is
// cooperative: once the callback runs, this re-check logic is the authority
// on whether to proceed, not the cancellation.
//
// The sequence is mute, wait, suspend. The lock is released during the
// wait so a play event arriving in that window can register; the re-check
// afterwards then reverses the mute instead of completing the suspend. A
// play event must always win over a deactivation in flight.
func (c *ChannelController) deactivate() {
	c.mu.Lock()

	if len(c.players) > 0 {
		c.mu.Unlock()
		slog.Info("channel suspend aborted, players active", "channel", c.name)
		return
	}
	if !c.active.Load() {
		c.mu.Unlock()
		return
	}

	slog.Info("deactivating channel", "channel", c.name)

	if err := c.mute.Set(true); err != nil {
		c.mu.Unlock()
		slog.Error("channel deactivation failed", "channel", c.name, "step", "mute", "error", err)
		return
	}
	c.mu.Unlock()

	time.Sleep(c.timing.MuteToSuspend)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active.Load() {
		// ForceOff got there first.
		return
	}
	if len(c.players) > 0 {
		// A player came back during the wait: unmute and stay up.
		if err := c.mute.Set(false); err != nil {
			slog.Error("channel unmute after aborted suspend failed", "channel", c.name, "error", err)
			return
		}
		slog.Info("channel suspend aborted mid-flight, unmuted again", "channel", c.name)
		return
	}

	if err := c.suspend.Set(true); err != nil {
		slog.Error("channel deactivation failed", "channel", c.name, "step", "suspend", "error", err)
		return
	}
	c.active.Store(false)

	if err := c.led.Set(false); err != nil {
		slog.Error("channel deactivation failed", "channel", c.name, "step", "led", "error", err)
	}

	slog.Info("channel suspended", "channel", c.name)

	if c.notify != nil {
		c.notify()
	}
}

// ForceOff collapses the channel to suspended without the debounce
// re-checks. Only the coordinator's emergency path uses it. Failures do not
// stop the remaining steps; the first one is returned.
func (c *ChannelController) ForceOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.active.Load() {
		return nil
	}

	var firstErr error
	if err := c.mute.Set(true); err != nil {
		firstErr = err
	}
	time.Sleep(c.timing.Settle)
	if err := c.suspend.Set(true); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		c.active.Store(false)
	}
	if err := c.led.Set(false); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// status returns the snapshot view of the channel under its lock.
func (c *ChannelController) status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	players := make([]string, 0, len(c.players))
	for p := range c.players {
		players = append(players, p)
	}
	sort.Strings(players)

	active := c.active.Load()
	state := StateSuspended
	switch {
	case active && len(players) > 0:
		state = StateActivePlayers
	case active:
		state = StateActiveMuted
	}

	st := ChannelStatus{
		ID:            c.id,
		Name:          c.name,
		State:         state,
		Active:        active,
		PlayerCount:   len(players),
		ActivePlayers: players,
	}
	if !c.lastActive.IsZero() {
		t := c.lastActive
		st.LastActive = &t
	}
	return st
}
