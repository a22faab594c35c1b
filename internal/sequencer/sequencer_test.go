package sequencer

import (
	"errors"
	"testing"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/hw"
)

const (
	pinSupply   = 13
	pinErrLED   = 26
	pinSuspend1 = 12
	pinMute1    = 16
	pinLed1     = 17
	pinSuspend2 = 6
	pinMute2    = 25
	pinLed2     = 27
)

func testConfig(timing config.TimingConfig) *config.Config {
	return &config.Config{
		GPIO:   config.GPIOConfig{PowerSupplyPin: pinSupply, ErrorLedPin: pinErrLED},
		Timing: timing,
		Soundcards: []config.SoundcardConfig{
			{
				ID: 1, Name: "card1",
				SuspendPin: pinSuspend1, MutePin: pinMute1, LedPin: pinLed1,
				Players: []config.PlayerConfig{{Name: "a"}, {Name: "b"}},
			},
			{
				ID: 2, Name: "card2",
				SuspendPin: pinSuspend2, MutePin: pinMute2, LedPin: pinLed2,
				Players: []config.PlayerConfig{{Name: "c"}},
			},
		},
	}
}

func fastTiming() config.TimingConfig {
	return config.TimingConfig{
		ChannelIdle:   25 * time.Millisecond,
		SupplyIdle:    25 * time.Millisecond,
		Settle:        time.Millisecond,
		MuteToSuspend: 5 * time.Millisecond,
	}
}

func newTestCoordinator(t *testing.T, timing config.TimingConfig) (*Coordinator, *hw.MemoryOpener) {
	t.Helper()
	opener := hw.NewMemoryOpener()
	coord, err := New(testConfig(timing), opener)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return coord, opener
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

func TestStartupResetState(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	if !opener.Pin(pinSuspend1).Asserted() || !opener.Pin(pinMute1).Asserted() {
		t.Error("channel 1 should start suspended and muted")
	}
	if opener.Pin(pinLed1).Asserted() || opener.Pin(pinErrLED).Asserted() {
		t.Error("LEDs should start off")
	}
	if opener.Pin(pinSupply).Asserted() {
		t.Error("supply should start off")
	}
	if coord.Fault() {
		t.Error("fault flag should start clear")
	}
}

func TestPlayerStartActivatesSupplyAndChannel(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)

	if !opener.Pin(pinSupply).Asserted() {
		t.Error("supply should be on")
	}
	if opener.Pin(pinSuspend1).Asserted() {
		t.Error("suspend should be released")
	}
	if opener.Pin(pinMute1).Asserted() {
		t.Error("mute should be released")
	}
	if !opener.Pin(pinLed1).Asserted() {
		t.Error("status LED should be on")
	}
	if !coord.channels[1].IsActive() {
		t.Error("channel should report active")
	}
	// The second channel must be untouched: only the initial configuration
	// write on each of its pins.
	for _, pin := range []int{pinSuspend2, pinMute2, pinLed2} {
		if got := opener.Pin(pin).Writes(); got != 1 {
			t.Errorf("pin %d: expected 1 write, got %d", pin, got)
		}
	}
}

func TestRepeatedPlayerStartIsIdempotent(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)
	suspendWrites := opener.Pin(pinSuspend1).Writes()
	muteWrites := opener.Pin(pinMute1).Writes()
	supplyWrites := opener.Pin(pinSupply).Writes()

	coord.OnPlayerEvent("a", true)
	coord.OnPlayerEvent("b", true)

	if got := opener.Pin(pinSuspend1).Writes(); got != suspendWrites {
		t.Errorf("suspend pin written again: %d -> %d", suspendWrites, got)
	}
	if got := opener.Pin(pinMute1).Writes(); got != muteWrites {
		t.Errorf("mute pin written again: %d -> %d", muteWrites, got)
	}
	if got := opener.Pin(pinSupply).Writes(); got != supplyWrites {
		t.Errorf("supply pin written again: %d -> %d", supplyWrites, got)
	}

	snap := coord.Snapshot()
	card := snap.Soundcards["1"]
	if card.PlayerCount != 2 {
		t.Errorf("expected 2 active players, got %d", card.PlayerCount)
	}
}

func TestChannelStaysActiveWhileAnyPlayerPlays(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)
	coord.OnPlayerEvent("b", true)
	coord.OnPlayerEvent("a", false)

	// Longer than idle timeout plus the full suspend sequence: "b" must
	// keep the channel up.
	time.Sleep(60 * time.Millisecond)
	if !coord.channels[1].IsActive() {
		t.Fatal("channel suspended although a player is still active")
	}
	if opener.Pin(pinMute1).Asserted() {
		t.Error("mute must stay released while a player is active")
	}

	coord.OnPlayerEvent("b", false)
	waitFor(t, func() bool { return !coord.channels[1].IsActive() }, "channel suspend after last stop")
	waitFor(t, func() bool { return !opener.Pin(pinSupply).Asserted() }, "supply release after idle timeout")

	if !opener.Pin(pinSuspend1).Asserted() || !opener.Pin(pinMute1).Asserted() {
		t.Error("channel should end suspended and muted")
	}
	if opener.Pin(pinLed1).Asserted() {
		t.Error("status LED should end off")
	}
}

func TestSupplyCountdownStartsWhenLastChannelSuspends(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)
	coord.OnPlayerEvent("a", false)

	// The supply must survive the channel's own debounce window.
	time.Sleep(10 * time.Millisecond)
	if !opener.Pin(pinSupply).Asserted() {
		t.Fatal("supply released before channel idle timeout")
	}

	waitFor(t, func() bool { return !coord.channels[1].IsActive() }, "channel 1 suspend")
	// Channel 2 was never active, so its pins stay at one configuration
	// write each and the supply countdown starts right away.
	if got := opener.Pin(pinSuspend2).Writes(); got != 1 {
		t.Errorf("channel 2 suspend pin written %d times", got)
	}
	waitFor(t, func() bool { return !opener.Pin(pinSupply).Asserted() }, "supply off")
}

func TestNewPlayerCancelsPendingSuspend(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)
	muteWrites := opener.Pin(pinMute1).Writes()

	coord.OnPlayerEvent("a", false)
	time.Sleep(5 * time.Millisecond) // well inside the idle window
	coord.OnPlayerEvent("a", true)

	time.Sleep(80 * time.Millisecond)
	if !coord.channels[1].IsActive() {
		t.Fatal("channel suspended although the player came back")
	}
	if got := opener.Pin(pinMute1).Writes(); got != muteWrites {
		t.Errorf("mute pin touched during cancelled suspend: %d -> %d", muteWrites, got)
	}
}

func TestPlayEventDuringMuteWindowReversesSuspend(t *testing.T) {
	timing := fastTiming()
	timing.ChannelIdle = 10 * time.Millisecond
	timing.MuteToSuspend = 60 * time.Millisecond
	coord, opener := newTestCoordinator(t, timing)

	coord.OnPlayerEvent("a", true)
	coord.OnPlayerEvent("a", false)

	// Wait until the deactivation has muted the channel, then race it.
	waitFor(t, func() bool { return opener.Pin(pinMute1).Asserted() }, "mute step of suspend sequence")
	coord.OnPlayerEvent("a", true)

	waitFor(t, func() bool { return !opener.Pin(pinMute1).Asserted() }, "mute reversal")
	time.Sleep(20 * time.Millisecond)

	if !coord.channels[1].IsActive() {
		t.Error("channel must end active")
	}
	if opener.Pin(pinSuspend1).Asserted() {
		t.Error("suspend must never be asserted when the race is lost")
	}
	if !opener.Pin(pinSupply).Asserted() {
		t.Error("supply must stay on")
	}
	card := coord.Snapshot().Soundcards["1"]
	if card.PlayerCount != 1 || card.ActivePlayers[0] != "a" {
		t.Errorf("player set wrong after reversal: %+v", card.ActivePlayers)
	}
}

func TestSupplyActivateClearsPendingCountdown(t *testing.T) {
	out := hw.NewMemory(pinSupply)
	supply := NewSupplyController(out)

	if err := supply.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	supply.ScheduleDeactivation(20 * time.Millisecond)

	// A fresh play event re-activates even though the supply is already
	// on; the countdown must die with it.
	if err := supply.Activate(); err != nil {
		t.Fatalf("re-activate: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if !supply.IsActive() {
		t.Error("stale countdown fired although the supply was re-activated")
	}
}

func TestSupplyDeactivateWhenOffIsNoop(t *testing.T) {
	out := hw.NewMemory(pinSupply)
	supply := NewSupplyController(out)

	if err := supply.Deactivate(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := out.Writes(); got != 0 {
		t.Errorf("expected no writes, got %d", got)
	}
}

func TestUnknownPlayerEventIsDropped(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("unknown_x", true)

	if opener.Pin(pinSupply).Asserted() {
		t.Error("supply must not react to unknown players")
	}
	for _, pin := range []int{pinSuspend1, pinMute1, pinLed1, pinSuspend2, pinMute2, pinLed2} {
		if got := opener.Pin(pin).Writes(); got != 1 {
			t.Errorf("pin %d written for unknown player", pin)
		}
	}
}

func TestEmergencyShutdownCascade(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	coord.OnPlayerEvent("a", true)
	// One failing pin must not stop the cascade.
	opener.Pin(pinLed1).FailWith(errors.New("io error"))

	coord.EmergencyShutdown("test")

	if !coord.Fault() {
		t.Error("fault flag must be set")
	}
	if !opener.Pin(pinErrLED).Asserted() {
		t.Error("error LED must be on")
	}
	if !opener.Pin(pinSuspend1).Asserted() || !opener.Pin(pinMute1).Asserted() {
		t.Error("channel 1 must be suspended and muted")
	}
	if opener.Pin(pinSupply).Asserted() {
		t.Error("supply must be off")
	}
	if coord.channels[1].IsActive() {
		t.Error("channel 1 must report suspended")
	}

	// Idempotent: a second call must not panic or flip anything back.
	coord.EmergencyShutdown("again")
	if opener.Pin(pinSupply).Asserted() {
		t.Error("supply came back during repeated shutdown")
	}
}

func TestStartupPinFailureForcesEverythingOff(t *testing.T) {
	opener := hw.NewMemoryOpener()
	opener.FailPins = map[int]error{pinSuspend2: errors.New("io error")}

	_, err := New(testConfig(fastTiming()), opener)
	if err == nil {
		t.Fatal("expected startup error")
	}
	if !opener.Pin(pinErrLED).Asserted() {
		t.Error("error LED must be on after failed startup")
	}
	if opener.Pin(pinSupply).Asserted() {
		t.Error("supply must be off after failed startup")
	}
	if !opener.Pin(pinSuspend1).Asserted() {
		t.Error("already initialized channel must be back in reset state")
	}
}

func TestFailedMuteWriteLeavesChannelPowered(t *testing.T) {
	coord, opener := newTestCoordinator(t, fastTiming())

	// Break the mute line before the first activation: the suspend write
	// succeeds, the sequence aborts at the mute step.
	opener.Pin(pinMute1).FailWith(errors.New("io error"))
	coord.OnPlayerEvent("a", true)

	if !coord.channels[1].IsActive() {
		t.Error("state flag must track the suspend line, which was released")
	}
	if opener.Pin(pinSuspend1).Asserted() {
		t.Error("suspend line must be released")
	}
	if !opener.Pin(pinMute1).Asserted() {
		t.Error("mute line must be untouched after the failed write")
	}
	if got := opener.Pin(pinLed1).Writes(); got != 1 {
		t.Error("LED must not be written after an aborted sequence")
	}
}

func TestSnapshotStates(t *testing.T) {
	coord, _ := newTestCoordinator(t, fastTiming())

	snap := coord.Snapshot()
	if got := snap.Soundcards["1"].State; got != StateSuspended {
		t.Errorf("expected %q, got %q", StateSuspended, got)
	}
	if snap.PowerSupply.Active {
		t.Error("supply must start off")
	}

	coord.OnPlayerEvent("a", true)
	snap = coord.Snapshot()
	card := snap.Soundcards["1"]
	if card.State != StateActivePlayers {
		t.Errorf("expected %q, got %q", StateActivePlayers, card.State)
	}
	if !snap.PowerSupply.Active || snap.PowerSupply.State != "on" {
		t.Error("supply must report on")
	}
	if card.LastActive == nil {
		t.Error("last_active must be set after a play event")
	}

	coord.OnPlayerEvent("a", false)
	// Inside the debounce window the channel is still powered but has no
	// players.
	snap = coord.Snapshot()
	if got := snap.Soundcards["1"].State; got != StateActiveMuted {
		t.Errorf("expected %q, got %q", StateActiveMuted, got)
	}
}
