package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration, loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	StatusFile string `mapstructure:"status_file" yaml:"status_file"`
	PidFile    string `mapstructure:"pid_file" yaml:"pid_file"`

	GPIO        GPIOConfig        `mapstructure:"gpio" yaml:"gpio"`
	Timing      TimingConfig      `mapstructure:"timing" yaml:"timing"`
	Soundcards  []SoundcardConfig `mapstructure:"soundcards" yaml:"soundcards"`
	Squeezelite SqueezeliteConfig `mapstructure:"squeezelite" yaml:"squeezelite"`
	Fan         FanConfig         `mapstructure:"fan" yaml:"fan"`
}

// GPIOConfig holds the pins not owned by any single sound card.
type GPIOConfig struct {
	PowerSupplyPin int `mapstructure:"power_supply_pin" yaml:"power_supply_pin"`
	ErrorLedPin    int `mapstructure:"error_led_pin" yaml:"error_led_pin"`
}

// TimingConfig holds the debounce timeouts and the settle delays required by
// the amplifier's electrical design.
type TimingConfig struct {
	ChannelIdle   time.Duration `mapstructure:"channel_idle" yaml:"channel_idle"`
	SupplyIdle    time.Duration `mapstructure:"supply_idle" yaml:"supply_idle"`
	Settle        time.Duration `mapstructure:"settle" yaml:"settle"`
	MuteToSuspend time.Duration `mapstructure:"mute_to_suspend" yaml:"mute_to_suspend"`
}

// SoundcardConfig describes one amplifier channel: its three control pins
// and the players that feed it.
type SoundcardConfig struct {
	ID         int            `mapstructure:"id" yaml:"id"`
	Name       string         `mapstructure:"name" yaml:"name"`
	SuspendPin int            `mapstructure:"suspend_pin" yaml:"suspend_pin"`
	MutePin    int            `mapstructure:"mute_pin" yaml:"mute_pin"`
	LedPin     int            `mapstructure:"led_pin" yaml:"led_pin"`
	AlsaCard   string         `mapstructure:"alsa_card" yaml:"alsa_card"`
	USBDevice  string         `mapstructure:"usb_device" yaml:"usb_device"`
	SensorID   string         `mapstructure:"sensor_id" yaml:"sensor_id,omitempty"`
	Players    []PlayerConfig `mapstructure:"players" yaml:"players"`
}

// PlayerConfig describes one squeezelite instance.
type PlayerConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
	AlsaDevice  string `mapstructure:"alsa_device" yaml:"alsa_device"`
	MacAddress  string `mapstructure:"mac_address" yaml:"mac_address,omitempty"`
}

// SqueezeliteConfig holds everything needed to launch the player processes.
type SqueezeliteConfig struct {
	Binary          string   `mapstructure:"binary" yaml:"binary"`
	CallbackCommand string   `mapstructure:"callback_command" yaml:"callback_command"`
	LMSServer       string   `mapstructure:"lms_server" yaml:"lms_server,omitempty"`
	CommonOptions   []string `mapstructure:"common_options" yaml:"common_options,omitempty"`
}

// FanConfig drives the case fan controller. An empty SensorIDs list disables
// fan control entirely.
type FanConfig struct {
	SensorIDs     []string      `mapstructure:"sensor_ids" yaml:"sensor_ids,omitempty"`
	SensorRoot    string        `mapstructure:"sensor_root" yaml:"sensor_root"`
	PWMChip       string        `mapstructure:"pwm_chip" yaml:"pwm_chip"`
	PWMChannel    int           `mapstructure:"pwm_channel" yaml:"pwm_channel"`
	PWMPeriod     int           `mapstructure:"pwm_period" yaml:"pwm_period"`
	PWMMin        int           `mapstructure:"pwm_min" yaml:"pwm_min"`
	PWMMax        int           `mapstructure:"pwm_max" yaml:"pwm_max"`
	PWMShutdown   int           `mapstructure:"pwm_shutdown" yaml:"pwm_shutdown"`
	SensorFailPWM int           `mapstructure:"sensor_fail_pwm" yaml:"sensor_fail_pwm"`
	TempMin       float64       `mapstructure:"temp_min" yaml:"temp_min"`
	TempMax       float64       `mapstructure:"temp_max" yaml:"temp_max"`
	Hysteresis    float64       `mapstructure:"hysteresis" yaml:"hysteresis"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DefaultConfigPath is where the daemon looks when --config is not given.
const DefaultConfigPath = "/etc/ampcontrol.yaml"

// Load reads and validates the configuration file. A configuration the
// daemon cannot trust is fatal: the caller must not start the run loop.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("AMPCONTROL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = "/var/run/amp_control.sock"
	}
	if c.StatusFile == "" {
		c.StatusFile = "/var/run/amp_control.status.json"
	}
	if c.PidFile == "" {
		c.PidFile = "/var/run/amp_control.pid"
	}
	if c.Timing.ChannelIdle == 0 {
		c.Timing.ChannelIdle = 15 * time.Minute
	}
	if c.Timing.SupplyIdle == 0 {
		c.Timing.SupplyIdle = 30 * time.Minute
	}
	if c.Timing.Settle == 0 {
		c.Timing.Settle = time.Second
	}
	if c.Timing.MuteToSuspend == 0 {
		c.Timing.MuteToSuspend = time.Second
	}
	if c.Squeezelite.Binary == "" {
		c.Squeezelite.Binary = "/usr/bin/squeezelite"
	}
	if c.Squeezelite.CallbackCommand == "" {
		c.Squeezelite.CallbackCommand = "/usr/local/bin/ampcontrol notify"
	}
	if c.Fan.SensorRoot == "" {
		c.Fan.SensorRoot = "/sys/bus/w1/devices"
	}
	if c.Fan.PWMChip == "" {
		c.Fan.PWMChip = "/sys/class/pwm/pwmchip0"
	}
	if c.Fan.PWMPeriod == 0 {
		c.Fan.PWMPeriod = 40000 // 25 kHz
	}
	if c.Fan.PWMMin == 0 {
		c.Fan.PWMMin = 10000
	}
	if c.Fan.PWMMax == 0 {
		c.Fan.PWMMax = c.Fan.PWMPeriod
	}
	if c.Fan.PWMShutdown == 0 {
		c.Fan.PWMShutdown = c.Fan.PWMPeriod / 2
	}
	if c.Fan.SensorFailPWM == 0 {
		c.Fan.SensorFailPWM = c.Fan.PWMPeriod / 2
	}
	if c.Fan.TempMin == 0 {
		c.Fan.TempMin = 40.0
	}
	if c.Fan.TempMax == 0 {
		c.Fan.TempMax = 60.0
	}
	if c.Fan.Hysteresis == 0 {
		c.Fan.Hysteresis = 2.0
	}
	if c.Fan.Interval == 0 {
		c.Fan.Interval = 20 * time.Second
	}
}

// Validate checks the hardware topology for contradictions. Any error here
// means the daemon cannot trust its pin map and must not touch the GPIOs.
func (c *Config) Validate() error {
	if len(c.Soundcards) == 0 {
		return fmt.Errorf("no soundcards defined")
	}
	if c.GPIO.PowerSupplyPin <= 0 {
		return fmt.Errorf("gpio.power_supply_pin is required")
	}

	usedPins := map[int]string{}
	claimPin := func(pin int, owner string) error {
		if pin <= 0 {
			return fmt.Errorf("%s: pin must be > 0, got %d", owner, pin)
		}
		if prev, ok := usedPins[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", owner, pin, prev)
		}
		usedPins[pin] = owner
		return nil
	}

	if err := claimPin(c.GPIO.PowerSupplyPin, "gpio.power_supply_pin"); err != nil {
		return err
	}
	if c.GPIO.ErrorLedPin != 0 {
		if err := claimPin(c.GPIO.ErrorLedPin, "gpio.error_led_pin"); err != nil {
			return err
		}
	}

	seenIDs := map[int]bool{}
	seenNames := map[string]bool{}
	seenPlayers := map[string]string{}

	for i, sc := range c.Soundcards {
		prefix := fmt.Sprintf("soundcards[%d]", i)

		if sc.ID <= 0 {
			return fmt.Errorf("%s: 'id' must be > 0", prefix)
		}
		if seenIDs[sc.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, sc.ID)
		}
		seenIDs[sc.ID] = true

		if sc.Name == "" {
			return fmt.Errorf("%s: 'name' is required", prefix)
		}
		if seenNames[sc.Name] {
			return fmt.Errorf("%s: duplicate name '%s'", prefix, sc.Name)
		}
		seenNames[sc.Name] = true

		if err := claimPin(sc.SuspendPin, prefix+".suspend_pin"); err != nil {
			return err
		}
		if err := claimPin(sc.MutePin, prefix+".mute_pin"); err != nil {
			return err
		}
		if err := claimPin(sc.LedPin, prefix+".led_pin"); err != nil {
			return err
		}

		if len(sc.Players) == 0 {
			return fmt.Errorf("%s: at least one player is required", prefix)
		}
		for j, p := range sc.Players {
			if p.Name == "" {
				return fmt.Errorf("%s.players[%d]: 'name' is required", prefix, j)
			}
			if owner, ok := seenPlayers[p.Name]; ok {
				return fmt.Errorf("%s.players[%d]: player '%s' already assigned to %s",
					prefix, j, p.Name, owner)
			}
			seenPlayers[p.Name] = sc.Name
		}
	}

	if c.Timing.ChannelIdle < 0 || c.Timing.SupplyIdle < 0 ||
		c.Timing.Settle < 0 || c.Timing.MuteToSuspend < 0 {
		return fmt.Errorf("timing values must not be negative")
	}

	if c.Fan.TempMax <= c.Fan.TempMin {
		return fmt.Errorf("fan: temp_max must be greater than temp_min")
	}

	return nil
}

// PlayerRoutes builds the immutable player-name to soundcard-id routing
// table. It needs no synchronization because it is never written after
// startup.
func (c *Config) PlayerRoutes() map[string]int {
	routes := make(map[string]int)
	for _, sc := range c.Soundcards {
		for _, p := range sc.Players {
			routes[p.Name] = sc.ID
		}
	}
	return routes
}
