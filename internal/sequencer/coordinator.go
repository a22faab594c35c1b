package sequencer

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/hw"
)

// Coordinator translates player events into controller calls and owns the
// cross-channel decisions: when the supply may be released, and the
// emergency all-off cascade.
type Coordinator struct {
	channels map[int]*ChannelController
	routes   map[string]int // player name -> channel id, read-only
	supply   *SupplyController
	errorLED hw.Output // nil when not configured
	timing   Timing

	fault atomic.Bool
}

// New opens every configured output line and builds the controller tree.
//
// The lines are opened in their reset state: suspend and mute asserted,
// LEDs off, supply off. A failure here means the hardware topology cannot
// be trusted; whatever was already initialized is forced off via the
// emergency cascade and the error is returned, so the caller exits without
// entering the run loop.
func New(cfg *config.Config, opener hw.Opener) (*Coordinator, error) {
	c := &Coordinator{
		channels: make(map[int]*ChannelController),
		routes:   cfg.PlayerRoutes(),
		timing: Timing{
			ChannelIdle:   cfg.Timing.ChannelIdle,
			SupplyIdle:    cfg.Timing.SupplyIdle,
			Settle:        cfg.Timing.Settle,
			MuteToSuspend: cfg.Timing.MuteToSuspend,
		},
	}

	// Error LED first, so it can signal failures of the remaining setup.
	if cfg.GPIO.ErrorLedPin != 0 {
		led, err := opener.Open(cfg.GPIO.ErrorLedPin, false, false)
		if err != nil {
			return nil, fmt.Errorf("error LED setup: %w", err)
		}
		c.errorLED = led
		slog.Info("error LED initialized", "pin", cfg.GPIO.ErrorLedPin)
	}

	// Supply relay is active-low on this board: driving the pin low turns
	// the rail on.
	supplyOut, err := opener.Open(cfg.GPIO.PowerSupplyPin, true, false)
	if err != nil {
		c.EmergencyShutdown("power supply pin setup failed")
		return nil, fmt.Errorf("power supply setup: %w", err)
	}
	c.supply = NewSupplyController(supplyOut)
	slog.Info("power supply pin initialized", "pin", cfg.GPIO.PowerSupplyPin)

	for _, sc := range cfg.Soundcards {
		ch, err := c.openChannel(opener, sc)
		if err != nil {
			c.EmergencyShutdown(fmt.Sprintf("soundcard %s setup failed", sc.Name))
			return nil, fmt.Errorf("soundcard %s setup: %w", sc.Name, err)
		}
		c.channels[sc.ID] = ch
	}

	slog.Info("sequencer initialized", "soundcards", len(c.channels), "players", len(c.routes))
	return c, nil
}

func (c *Coordinator) openChannel(opener hw.Opener, sc config.SoundcardConfig) (*ChannelController, error) {
	// Suspend and mute are asserted-high on the KAB9 boards and must both
	// start asserted; that matches the GPIO reset defaults.
	suspend, err := opener.Open(sc.SuspendPin, false, true)
	if err != nil {
		return nil, fmt.Errorf("suspend pin: %w", err)
	}
	mute, err := opener.Open(sc.MutePin, false, true)
	if err != nil {
		return nil, fmt.Errorf("mute pin: %w", err)
	}
	led, err := opener.Open(sc.LedPin, false, false)
	if err != nil {
		return nil, fmt.Errorf("led pin: %w", err)
	}

	slog.Info("soundcard initialized", "soundcard", sc.Name,
		"suspend", sc.SuspendPin, "mute", sc.MutePin, "led", sc.LedPin)

	return NewChannelController(sc.ID, sc.Name, suspend, mute, led, c.timing, c.CheckSupplyRelease), nil
}

// OnPlayerEvent routes one play/stop event to the owning channel. Unknown
// players are logged and dropped: a renamed or misconfigured player is
// expected noise, not a fault. Errors from the controllers never propagate
// past this boundary.
func (c *Coordinator) OnPlayerEvent(player string, started bool) {
	id, ok := c.routes[player]
	if !ok {
		slog.Warn("unknown player", "player", player)
		return
	}
	ch := c.channels[id]

	if started {
		slog.Info("player starting playback", "player", player, "channel", ch.Name())
		// Supply first: even when the channel is already up, the event
		// must clear a stale supply shutdown countdown.
		if err := c.supply.Activate(); err != nil {
			slog.Error("supply activation for player event failed", "player", player, "error", err)
		}
		ch.MarkPlayerActive(player)
		return
	}

	slog.Info("player stopping playback", "player", player, "channel", ch.Name())
	ch.MarkPlayerInactive(player)
	c.CheckSupplyRelease()
}

// CheckSupplyRelease arms the supply shutdown countdown once no channel is
// active anymore. Channels call it after suspending; stop events call it
// too, cheaply, since it only inspects flags.
func (c *Coordinator) CheckSupplyRelease() {
	for _, ch := range c.channels {
		if ch.IsActive() {
			return
		}
	}
	if !c.supply.IsActive() {
		return
	}
	slog.Info("all channels suspended, supply release pending")
	c.supply.ScheduleDeactivation(c.timing.SupplyIdle)
}

// EmergencyShutdown is the best-effort all-off cascade: fault indicator
// first so it is visible even if the rest fails, then every channel, then
// the supply. Failures are logged and the cascade continues; a partial
// hardware-off beats none. Safe to call more than once.
func (c *Coordinator) EmergencyShutdown(reason string) {
	c.fault.Store(true)
	slog.Error("emergency shutdown", "reason", reason)

	if c.errorLED != nil {
		if err := c.errorLED.Set(true); err != nil {
			slog.Error("error LED activation failed", "error", err)
		}
	}

	for _, ch := range c.channels {
		if err := ch.ForceOff(); err != nil {
			slog.Error("emergency channel shutdown failed", "channel", ch.Name(), "error", err)
		} else {
			slog.Info("emergency shutdown: channel off", "channel", ch.Name())
		}
	}

	if c.supply != nil {
		if err := c.supply.ForceOff(); err != nil {
			slog.Error("emergency supply shutdown failed", "error", err)
		} else {
			slog.Info("emergency shutdown: supply off")
		}
	}
}

// Fault reports whether the emergency path has run. The flag is never
// cleared while the daemon lives.
func (c *Coordinator) Fault() bool {
	return c.fault.Load()
}

// Close marks the controller as gone by lighting the error LED. Hardware is
// otherwise left as-is on a clean shutdown, matching the rig's expectation
// that a dead controller is visible on the front panel.
func (c *Coordinator) Close() {
	if c.errorLED != nil {
		if err := c.errorLED.Set(true); err != nil {
			slog.Error("error LED activation on shutdown failed", "error", err)
		}
	}
}
