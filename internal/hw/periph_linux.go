//go:build linux

package hw

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphOutput drives a GPIO line through periph.io. Pins are addressed by
// their BCM numbers ("GPIO13" etc.), matching the wiring documentation.
type periphOutput struct {
	pin       int
	activeLow bool
	line      gpio.PinIO
}

func (o *periphOutput) Pin() int {
	return o.pin
}

func (o *periphOutput) Set(asserted bool) error {
	level := gpio.Level(asserted != o.activeLow)
	if err := o.line.Out(level); err != nil {
		return &HardwareError{Pin: o.pin, Op: "write", Err: err}
	}
	return nil
}

type periphOpener struct{}

// NewOpener initialises the periph host drivers and returns an Opener backed
// by real GPIO. host.Init is safe to call more than once.
func NewOpener() (Opener, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	return periphOpener{}, nil
}

func (periphOpener) Open(pin int, activeLow, asserted bool) (Output, error) {
	line := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if line == nil {
		return nil, &HardwareError{Pin: pin, Op: "open", Err: errors.New("pin not found")}
	}
	out := &periphOutput{pin: pin, activeLow: activeLow, line: line}
	if err := out.Set(asserted); err != nil {
		return nil, err
	}
	return out, nil
}
