// Package hw abstracts the GPIO output lines the amplifier rig is wired to.
//
// The daemon only ever drives outputs: suspend, mute and LED lines per sound
// card, the shared power supply relay and the error LED. Each line is exposed
// as an Output that speaks in logical terms (asserted / deasserted); the
// active-low mapping to electrical levels happens here, so the sequencing
// code never deals with pin polarity.
package hw

import "fmt"

// Output is a single GPIO output line.
//
// Set drives the line to its asserted or deasserted state. Asserted means
// "the function of this line is engaged": a suspend line asserted suspends
// the card, a supply line asserted powers the rail, an LED line asserted
// lights the LED.
type Output interface {
	Set(asserted bool) error
	Pin() int
}

// Opener configures GPIO pins as outputs at startup.
//
// Open configures the pin, applies the initial state and returns the line.
// activeLow selects the electrical polarity: when true, asserted drives the
// pin low.
type Opener interface {
	Open(pin int, activeLow, asserted bool) (Output, error)
}

// HardwareError reports a failed GPIO operation with the pin identity, so a
// failing line can be located on the board from the log alone.
type HardwareError struct {
	Pin int
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("gpio %d: %s: %v", e.Pin, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
