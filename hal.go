package main

// This file is the hardware abstraction layer shared by the sensor, servo and
// eye backends.  Device-file backends only need the filesystem; GPIO, hardware
// PWM and I2C go through periph.io, which is initialised once here.

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// initHardware initialises periph host drivers.  Subsequent calls return the
// first result.
func initHardware() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// lookupPin resolves a periph pin name such as "GPIO17".
func lookupPin(name string) (gpio.PinIO, error) {
	if err := initHardware(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", name)
	}
	return p, nil
}

// openI2C opens the named I2C bus ("1" for /dev/i2c-1, "" for the first bus).
func openI2C(name string) (i2c.BusCloser, error) {
	if err := initHardware(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// addressedBus pins every transaction on a shared bus to one device address,
// so that drivers with a fixed address can reach a controller strapped to a
// different one.
type addressedBus struct {
	i2c.Bus
	addr uint16
}

func (b *addressedBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

func (b *addressedBus) String() string {
	return fmt.Sprintf("%s@0x%02X", b.Bus.String(), b.addr)
}
