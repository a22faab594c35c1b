//go:build !linux

package hw

import "log/slog"

// On non-Linux hosts there is no GPIO. NewOpener returns a stub that logs
// writes instead of touching hardware, so the daemon can be exercised on a
// development machine.

type stubOutput struct {
	pin       int
	activeLow bool
}

func (o *stubOutput) Pin() int {
	return o.pin
}

func (o *stubOutput) Set(asserted bool) error {
	slog.Debug("gpio stub write", "pin", o.pin, "asserted", asserted)
	return nil
}

type stubOpener struct{}

// NewOpener returns the stub Opener used off-target.
func NewOpener() (Opener, error) {
	slog.Warn("no GPIO support on this platform, using stub outputs")
	return stubOpener{}, nil
}

func (stubOpener) Open(pin int, activeLow, asserted bool) (Output, error) {
	out := &stubOutput{pin: pin, activeLow: activeLow}
	return out, out.Set(asserted)
}
