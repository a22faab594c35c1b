package hw

import "sync"

// Memory is an in-process Output used by tests. It records every write and
// can be told to fail, which stands in for a broken GPIO line.
type Memory struct {
	mu       sync.Mutex
	pin      int
	asserted bool
	writes   int
	fail     error
}

// NewMemory returns a deasserted in-memory output for the given pin.
func NewMemory(pin int) *Memory {
	return &Memory{pin: pin}
}

func (m *Memory) Pin() int {
	return m.pin
}

func (m *Memory) Set(asserted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return &HardwareError{Pin: m.pin, Op: "write", Err: m.fail}
	}
	m.asserted = asserted
	m.writes++
	return nil
}

// Asserted reports the last successfully written state.
func (m *Memory) Asserted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asserted
}

// Writes reports how many writes have succeeded.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailWith makes every subsequent Set return the given error. Pass nil to
// restore normal behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// MemoryOpener hands out Memory outputs and keeps them addressable by pin,
// so tests can inspect what the sequencing code wrote.
type MemoryOpener struct {
	mu      sync.Mutex
	Outputs map[int]*Memory
	// FailPins makes Open fail for the listed pins, simulating a wiring
	// fault at startup.
	FailPins map[int]error
}

func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{Outputs: make(map[int]*Memory)}
}

func (o *MemoryOpener) Open(pin int, activeLow, asserted bool) (Output, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.FailPins[pin]; ok {
		return nil, &HardwareError{Pin: pin, Op: "open", Err: err}
	}
	out := NewMemory(pin)
	if err := out.Set(asserted); err != nil {
		return nil, err
	}
	o.Outputs[pin] = out
	return out, nil
}

// Pin returns the Memory output opened for the given pin, or nil.
func (o *MemoryOpener) Pin(pin int) *Memory {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Outputs[pin]
}
