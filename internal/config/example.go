package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Example returns a complete configuration describing a typical three-card
// rig. `ampcontrol config init` writes it out as a starting point.
func Example() *Config {
	cfg := &Config{
		GPIO: GPIOConfig{
			PowerSupplyPin: 13,
			ErrorLedPin:    26,
		},
		Timing: TimingConfig{
			ChannelIdle:   15 * time.Minute,
			SupplyIdle:    30 * time.Minute,
			Settle:        time.Second,
			MuteToSuspend: time.Second,
		},
		Soundcards: []SoundcardConfig{
			{
				ID: 1, Name: "KAB9_1",
				SuspendPin: 12, MutePin: 16, LedPin: 17,
				AlsaCard: "4", USBDevice: "1-2",
				Players: []PlayerConfig{
					{Name: "wohnzimmer", Description: "Wohnzimmer", AlsaDevice: "hw:CARD=4,DEV=0"},
					{Name: "kueche", Description: "Küche", AlsaDevice: "hw:CARD=4,DEV=1"},
				},
			},
			{
				ID: 2, Name: "KAB9_2",
				SuspendPin: 6, MutePin: 25, LedPin: 27,
				AlsaCard: "3", USBDevice: "3-1",
				Players: []PlayerConfig{
					{Name: "schlafzimmer", Description: "Schlafzimmer", AlsaDevice: "hw:CARD=3,DEV=0"},
					{Name: "terrasse", Description: "Terrasse", AlsaDevice: "hw:CARD=3,DEV=1"},
				},
			},
			{
				ID: 3, Name: "KAB9_3",
				SuspendPin: 23, MutePin: 24, LedPin: 22,
				AlsaCard: "0", USBDevice: "1-1",
				Players: []PlayerConfig{
					{Name: "hobbyraum", Description: "Hobbyraum", AlsaDevice: "hw:CARD=0,DEV=0"},
				},
			},
		},
		Squeezelite: SqueezeliteConfig{
			LMSServer:     "192.168.1.10:3483",
			CommonOptions: []string{"-a 80:4::", "-C 5"},
		},
		Fan: FanConfig{
			SensorIDs:  []string{"28-00000034e4f3", "28-00000050cf0c"},
			PWMChannel: 2,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// MarshalYAML renders the durations as strings ("15m") instead of raw
// nanosecond counts, so a generated file reads the way a hand-written one
// would.
func (t TimingConfig) MarshalYAML() (interface{}, error) {
	return struct {
		ChannelIdle   string `yaml:"channel_idle"`
		SupplyIdle    string `yaml:"supply_idle"`
		Settle        string `yaml:"settle"`
		MuteToSuspend string `yaml:"mute_to_suspend"`
	}{
		t.ChannelIdle.String(),
		t.SupplyIdle.String(),
		t.Settle.String(),
		t.MuteToSuspend.String(),
	}, nil
}

func (f FanConfig) MarshalYAML() (interface{}, error) {
	return struct {
		SensorIDs     []string `yaml:"sensor_ids,omitempty"`
		SensorRoot    string   `yaml:"sensor_root"`
		PWMChip       string   `yaml:"pwm_chip"`
		PWMChannel    int      `yaml:"pwm_channel"`
		PWMPeriod     int      `yaml:"pwm_period"`
		PWMMin        int      `yaml:"pwm_min"`
		PWMMax        int      `yaml:"pwm_max"`
		PWMShutdown   int      `yaml:"pwm_shutdown"`
		SensorFailPWM int      `yaml:"sensor_fail_pwm"`
		TempMin       float64  `yaml:"temp_min"`
		TempMax       float64  `yaml:"temp_max"`
		Hysteresis    float64  `yaml:"hysteresis"`
		Interval      string   `yaml:"interval"`
	}{
		f.SensorIDs, f.SensorRoot, f.PWMChip, f.PWMChannel, f.PWMPeriod,
		f.PWMMin, f.PWMMax, f.PWMShutdown, f.SensorFailPWM,
		f.TempMin, f.TempMax, f.Hysteresis, f.Interval.String(),
	}, nil
}

// WriteExample writes the example configuration to the given path. It
// refuses to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", path)
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("error marshaling example config: %w", err)
	}

	header := []byte("# ampcontrol configuration\n# Pins are BCM numbers.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}
