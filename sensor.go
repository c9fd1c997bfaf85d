package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"periph.io/x/conn/v3/gpio"
)

// IRSensor samples one infrared detector.  Read performs a single best-effort
// sample; on failure it returns ReadError together with the cause.
type IRSensor interface {
	Read() (Reading, error)
}

// devfsSensor reads the single-character state exposed by the IR character
// device driver.  The driver reports the raw line level, so the sentinel is
// the "detected" level of the sensor ('0' for the active-low modules).
type devfsSensor struct {
	path     string
	sentinel byte
}

func (s *devfsSensor) Read() (Reading, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return ReadError, err
	}
	defer f.Close()

	var buf [1]byte
	n, err := f.Read(buf[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = fmt.Errorf("%s: empty read", s.path)
		}
		return ReadError, err
	}
	if buf[0] == s.sentinel {
		return Detected, nil
	}
	return NotDetected, nil
}

// gpioSensor reads a detector wired straight to a GPIO line.
type gpioSensor struct {
	pin       gpio.PinIO
	activeLow bool
}

func newGPIOSensor(name string, activeLow bool) (*gpioSensor, error) {
	p, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &gpioSensor{pin: p, activeLow: activeLow}, nil
}

func (s *gpioSensor) Read() (Reading, error) {
	level := s.pin.Read()
	if (level == gpio.Low) == s.activeLow {
		return Detected, nil
	}
	return NotDetected, nil
}

// SensorReader fuses the near and far detectors into one snapshot.
type SensorReader struct {
	near   IRSensor
	far    IRSensor
	logger *slog.Logger
}

// NewSensorReader builds the reader for the configured backend.
func NewSensorReader(cfg SensorConfig, logger *slog.Logger) (*SensorReader, error) {
	r := &SensorReader{logger: logger.With("component", "sensors")}
	switch cfg.Backend {
	case "gpio":
		near, err := newGPIOSensor(cfg.NearPin, cfg.ActiveLow)
		if err != nil {
			return nil, err
		}
		far, err := newGPIOSensor(cfg.FarPin, cfg.ActiveLow)
		if err != nil {
			return nil, err
		}
		r.near, r.far = near, far
	default:
		r.near = &devfsSensor{path: cfg.NearPath, sentinel: cfg.Sentinel[0]}
		r.far = &devfsSensor{path: cfg.FarPath, sentinel: cfg.Sentinel[0]}
	}
	return r, nil
}

// Sense samples far then near once each.  Read errors are logged and carried
// as ReadError; they never escape.
func (r *SensorReader) Sense() SensorSnapshot {
	return SensorSnapshot{
		Far:  r.sample("far", r.far),
		Near: r.sample("near", r.near),
	}
}

func (r *SensorReader) sample(name string, s IRSensor) Reading {
	reading, err := s.Read()
	if err != nil {
		r.logger.Debug("ir read failed", "sensor", name, "err", err)
		return ReadError
	}
	return reading
}
