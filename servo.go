package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrInvalidAngle is returned for angles the driver does not accept.
	ErrInvalidAngle = errors.New("invalid servo angle")
	// ErrInvalidChannel is returned for channels outside the servo bank.
	ErrInvalidChannel = errors.New("invalid servo channel")
)

// presetAngles are the positions the sweep animations use.
var presetAngles = map[int]bool{0: true, 90: true, 180: true}

// Calibration holds the PWM period and the duty cycles measured for 0°, 90°
// and 180°.  All values are in nanoseconds.
type Calibration struct {
	PeriodNs  int64
	Duty0Ns   int64
	Duty90Ns  int64
	Duty180Ns int64
}

// NewCalibration validates the duty bounds of cfg.
func NewCalibration(cfg ServoConfig) (Calibration, error) {
	c := Calibration{
		PeriodNs:  cfg.PeriodNs,
		Duty0Ns:   cfg.Duty0Ns,
		Duty90Ns:  cfg.Duty90Ns,
		Duty180Ns: cfg.Duty180Ns,
	}
	if c.PeriodNs <= 0 {
		return Calibration{}, fmt.Errorf("period_ns must be > 0, got %d", c.PeriodNs)
	}
	if c.Duty0Ns <= 0 || c.Duty0Ns >= c.Duty90Ns || c.Duty90Ns >= c.Duty180Ns || c.Duty180Ns > c.PeriodNs {
		return Calibration{}, fmt.Errorf("duty bounds must satisfy 0 < duty_0 < duty_90 < duty_180 <= period (%d, %d, %d, %d)",
			c.Duty0Ns, c.Duty90Ns, c.Duty180Ns, c.PeriodNs)
	}
	return c, nil
}

// Duty maps an angle to a duty cycle, interpolating linearly between the
// calibrated points on each side of 90°.
func (c Calibration) Duty(angle int) (int64, error) {
	if angle < 0 || angle > 180 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAngle, angle)
	}
	if angle <= 90 {
		return c.Duty0Ns + int64(angle)*(c.Duty90Ns-c.Duty0Ns)/90, nil
	}
	return c.Duty90Ns + int64(angle-90)*(c.Duty180Ns-c.Duty90Ns)/90, nil
}

// PWMSink accepts one period/duty/enable record per channel.
type PWMSink interface {
	Channels() int
	Write(channel int, periodNs, dutyNs int64, enable bool) error
}

// pwmDeviceSink drives the multi-channel software PWM driver: one character
// device per channel, each accepting "<channel> <period> <duty> <enable>".
type pwmDeviceSink struct {
	paths []string
}

func (s *pwmDeviceSink) Channels() int { return len(s.paths) }

func (s *pwmDeviceSink) Write(channel int, periodNs, dutyNs int64, enable bool) error {
	en := 0
	if enable {
		en = 1
	}
	record := fmt.Sprintf("%d %d %d %d", channel, periodNs, dutyNs, en)
	f, err := os.OpenFile(s.paths[channel], os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", s.paths[channel], err)
	}
	return f.Close()
}

// gpioPWMSink drives servos from hardware PWM capable pins through periph.
type gpioPWMSink struct {
	pins []gpio.PinIO
}

func newGPIOPWMSink(names []string) (*gpioPWMSink, error) {
	s := &gpioPWMSink{}
	for _, name := range names {
		p, err := lookupPin(name)
		if err != nil {
			return nil, err
		}
		s.pins = append(s.pins, p)
	}
	return s, nil
}

func (s *gpioPWMSink) Channels() int { return len(s.pins) }

func (s *gpioPWMSink) Write(channel int, periodNs, dutyNs int64, enable bool) error {
	p := s.pins[channel]
	if !enable || periodNs <= 0 {
		return p.Out(gpio.Low)
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * dutyNs / periodNs)
	return p.PWM(duty, physic.PeriodToFrequency(time.Duration(periodNs)))
}

// logSink stands in for servo hardware on development machines.
type logSink struct {
	channels int
	logger   *slog.Logger
}

func (s *logSink) Channels() int { return s.channels }

func (s *logSink) Write(channel int, periodNs, dutyNs int64, enable bool) error {
	s.logger.Debug("pwm", "channel", channel, "period_ns", periodNs, "duty_ns", dutyNs, "enable", enable)
	return nil
}

// ServoBank addresses every servo channel of the kiosk.
type ServoBank struct {
	sink PWMSink
	cal  Calibration
}

// NewServoBank builds the bank for the configured backend.
func NewServoBank(cfg ServoConfig, logger *slog.Logger) (*ServoBank, error) {
	cal, err := NewCalibration(cfg)
	if err != nil {
		return nil, err
	}
	var sink PWMSink
	switch cfg.Backend {
	case "gpio":
		sink, err = newGPIOPWMSink(cfg.Pins)
		if err != nil {
			return nil, err
		}
	case "none":
		sink = &logSink{channels: maxServoChannels, logger: logger.With("component", "servos")}
	default:
		sink = &pwmDeviceSink{paths: cfg.Devices}
	}
	return &ServoBank{sink: sink, cal: cal}, nil
}

// Channels returns the number of servo channels.
func (b *ServoBank) Channels() int { return b.sink.Channels() }

// Setup enables every channel at the 0° duty.  A failure here means an
// actuator is unreachable and should abort startup.
func (b *ServoBank) Setup() error {
	for ch := 0; ch < b.sink.Channels(); ch++ {
		if err := b.sink.Write(ch, b.cal.PeriodNs, b.cal.Duty0Ns, true); err != nil {
			return fmt.Errorf("servo %d setup: %w", ch, err)
		}
	}
	return nil
}

// SetServo moves one channel to any angle in [0,180].
func (b *ServoBank) SetServo(channel, angle int) error {
	if channel < 0 || channel >= b.sink.Channels() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	duty, err := b.cal.Duty(angle)
	if err != nil {
		return err
	}
	return b.sink.Write(channel, b.cal.PeriodNs, duty, true)
}

// MoveAll moves every channel to one of the preset angles 0, 90 or 180.
func (b *ServoBank) MoveAll(angle int) error {
	if !presetAngles[angle] {
		return fmt.Errorf("%w: %d is not a preset angle", ErrInvalidAngle, angle)
	}
	duty, err := b.cal.Duty(angle)
	if err != nil {
		return err
	}
	var errs []error
	for ch := 0; ch < b.sink.Channels(); ch++ {
		if err := b.sink.Write(ch, b.cal.PeriodNs, duty, true); err != nil {
			errs = append(errs, fmt.Errorf("servo %d: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// DisableAll drops every channel to a zero-duty, disabled state.
func (b *ServoBank) DisableAll() error {
	var errs []error
	for ch := 0; ch < b.sink.Channels(); ch++ {
		if err := b.sink.Write(ch, 0, 0, false); err != nil {
			errs = append(errs, fmt.Errorf("servo %d: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
