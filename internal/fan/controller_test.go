package fan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/ampcontrol/internal/config"
)

func testFanConfig() config.FanConfig {
	return config.FanConfig{
		PWMPeriod:     40000,
		PWMMin:        10000,
		PWMMax:        40000,
		PWMShutdown:   20000,
		SensorFailPWM: 20000,
		TempMin:       40.0,
		TempMax:       60.0,
		Hysteresis:    2.0,
	}
}

func TestDutyForCurve(t *testing.T) {
	tests := []struct {
		name    string
		temp    float64
		running bool
		want    int
	}{
		{"cold fan off", 25.0, false, 0},
		{"just below start", 39.9, false, 0},
		{"at start threshold", 40.0, false, 10000},
		{"midpoint", 50.0, false, 25000},
		{"at max", 60.0, false, 40000},
		{"above max", 72.0, false, 40000},
		// With the fan already running the off threshold drops by the
		// hysteresis band.
		{"running inside hysteresis band", 38.5, true, 7750},
		{"running below hysteresis band", 37.9, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(testFanConfig())
			c.fanRunning = tt.running
			if got := c.DutyFor(tt.temp); got != tt.want {
				t.Errorf("DutyFor(%v) = %d, want %d", tt.temp, got, tt.want)
			}
		})
	}
}

func TestDutyForHysteresisSequence(t *testing.T) {
	c := NewController(testFanConfig())

	if got := c.DutyFor(41.0); got == 0 {
		t.Fatal("fan should start above temp_min")
	}
	// A dip just below temp_min must not stop a running fan.
	if got := c.DutyFor(39.0); got == 0 {
		t.Error("fan stopped inside the hysteresis band")
	}
	if got := c.DutyFor(37.0); got != 0 {
		t.Errorf("fan still running below the hysteresis band: duty %d", got)
	}
	// Once stopped, the band no longer applies.
	if got := c.DutyFor(39.0); got != 0 {
		t.Errorf("stopped fan restarted below temp_min: duty %d", got)
	}
}

func readAttr(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestSysfsPWMLifecycle(t *testing.T) {
	chip := t.TempDir()
	// Pre-create the channel directory as the kernel would after export.
	channelDir := filepath.Join(chip, "pwm2")
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		t.Fatal(err)
	}

	p := newSysfsPWM(chip, 2)
	if err := p.setup(40000); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(channelDir, "period")); got != "40000" {
		t.Errorf("period = %q", got)
	}
	if got := readAttr(t, filepath.Join(channelDir, "enable")); got != "1" {
		t.Errorf("enable = %q", got)
	}

	if err := p.setDuty(25000); err != nil {
		t.Fatalf("setDuty failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(channelDir, "duty_cycle")); got != "25000" {
		t.Errorf("duty_cycle = %q", got)
	}

	if err := p.teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(chip, "unexport")); got != "2" {
		t.Errorf("unexport = %q", got)
	}
}
