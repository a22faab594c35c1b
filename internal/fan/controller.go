// Package fan runs a PWM case fan from DS18B20 temperature readings. The
// PWM channel is driven through the kernel's pwmchip sysfs interface, so no
// extra userspace PWM library is needed on the Pi 5.
package fan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/therm"
)

// maxConsecutiveErrors is how many failed sensor rounds are tolerated
// before the fan falls back to the configured fail-safe duty.
const maxConsecutiveErrors = 3

// Controller maps the hottest sensor reading to a fan duty cycle. The
// duty curve is linear between TempMin and TempMax, with a hysteresis band
// below TempMin so the fan does not oscillate around the start threshold.
type Controller struct {
	cfg     config.FanConfig
	sensors *therm.Reader
	pwm     *sysfsPWM

	fanRunning  bool
	currentDuty int
}

// NewController builds a fan controller from the fan section of the
// configuration.
func NewController(cfg config.FanConfig) *Controller {
	return &Controller{
		cfg:         cfg,
		sensors:     therm.New(cfg.SensorRoot),
		pwm:         newSysfsPWM(cfg.PWMChip, cfg.PWMChannel),
		currentDuty: -1,
	}
}

// DutyFor returns the duty cycle in nanoseconds for a temperature, updating
// the hysteresis state.
func (c *Controller) DutyFor(temp float64) int {
	// A running fan keeps spinning down to temp_min minus the hysteresis
	// band, so a reading hovering at the threshold cannot toggle it.
	effectiveMin := c.cfg.TempMin
	if c.fanRunning {
		effectiveMin -= c.cfg.Hysteresis
	}

	switch {
	case temp < effectiveMin:
		c.fanRunning = false
		return 0
	case temp >= c.cfg.TempMax:
		c.fanRunning = true
		return c.cfg.PWMMax
	default:
		ratio := (temp - c.cfg.TempMin) / (c.cfg.TempMax - c.cfg.TempMin)
		c.fanRunning = true
		return c.cfg.PWMMin + int(float64(c.cfg.PWMMax-c.cfg.PWMMin)*ratio)
	}
}

// Run controls the fan until the context is cancelled. On exit the fan is
// left at the shutdown duty so an uncooled amplifier rack never sits behind
// a stopped fan.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.pwm.setup(c.cfg.PWMPeriod); err != nil {
		return fmt.Errorf("error initializing PWM: %w", err)
	}
	defer c.shutdown()

	slog.Info("fan control started",
		"sensors", c.cfg.SensorIDs,
		"temp_min", c.cfg.TempMin,
		"temp_max", c.cfg.TempMax,
		"interval", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	consecutiveErrors := 0
	c.step(&consecutiveErrors)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.step(&consecutiveErrors)
		}
	}
}

func (c *Controller) step(consecutiveErrors *int) {
	temp, err := c.sensors.Max(c.cfg.SensorIDs)
	if err != nil {
		*consecutiveErrors++
		slog.Warn("error reading fan sensors",
			"attempt", *consecutiveErrors, "max", maxConsecutiveErrors, "error", err)
		if *consecutiveErrors >= maxConsecutiveErrors {
			slog.Error("sensor failure, falling back to fail-safe fan speed",
				"duty", c.cfg.SensorFailPWM)
			c.applyDuty(c.cfg.SensorFailPWM)
		}
		return
	}

	*consecutiveErrors = 0
	duty := c.DutyFor(temp)
	slog.Debug("fan update", "temperature", temp, "duty", duty)
	c.applyDuty(duty)
}

func (c *Controller) applyDuty(duty int) {
	if duty < 0 {
		duty = 0
	}
	if duty > c.cfg.PWMPeriod {
		duty = c.cfg.PWMPeriod
	}
	if duty == c.currentDuty {
		return
	}
	if err := c.pwm.setDuty(duty); err != nil {
		slog.Error("error setting fan duty cycle", "duty", duty, "error", err)
		return
	}
	percent := float64(duty) / float64(c.cfg.PWMPeriod) * 100
	slog.Info("fan speed changed", "percent", fmt.Sprintf("%.1f", percent), "duty", duty)
	c.currentDuty = duty
}

func (c *Controller) shutdown() {
	slog.Info("setting shutdown fan speed", "duty", c.cfg.PWMShutdown)
	c.applyDuty(c.cfg.PWMShutdown)
	time.Sleep(500 * time.Millisecond)
	if err := c.pwm.teardown(); err != nil {
		slog.Warn("error releasing PWM channel", "error", err)
	}
}

// sysfsPWM drives one channel of a pwmchip through sysfs attribute files.
type sysfsPWM struct {
	chip    string
	channel int
}

func newSysfsPWM(chip string, channel int) *sysfsPWM {
	return &sysfsPWM{chip: chip, channel: channel}
}

func (p *sysfsPWM) channelDir() string {
	return filepath.Join(p.chip, fmt.Sprintf("pwm%d", p.channel))
}

func (p *sysfsPWM) writeAttr(dir, name, value string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// setup exports the channel if needed, sets the period and enables output.
func (p *sysfsPWM) setup(period int) error {
	if _, err := os.Stat(p.channelDir()); os.IsNotExist(err) {
		if err := p.writeAttr(p.chip, "export", strconv.Itoa(p.channel)); err != nil {
			return err
		}
		// The kernel needs a moment to create the channel directory.
		time.Sleep(100 * time.Millisecond)
	}
	if err := p.writeAttr(p.channelDir(), "period", strconv.Itoa(period)); err != nil {
		return err
	}
	return p.writeAttr(p.channelDir(), "enable", "1")
}

func (p *sysfsPWM) setDuty(duty int) error {
	return p.writeAttr(p.channelDir(), "duty_cycle", strconv.Itoa(duty))
}

// teardown disables the channel and returns it to the kernel.
func (p *sysfsPWM) teardown() error {
	if err := p.writeAttr(p.channelDir(), "enable", "0"); err != nil {
		return err
	}
	return p.writeAttr(p.chip, "unexport", strconv.Itoa(p.channel))
}
