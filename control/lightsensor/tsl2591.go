// Package lightsensor switches the watch face into ambient mode when the room goes dark, using a
// TSL2591 light sensor on I2C.
package lightsensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Addr is the TSL2591's fixed I2C address.
const Addr = 0x29

type Register uint8

const (
	RegisterEnable   Register = 0x00
	RegisterControl  Register = 0x01
	RegisterDeviceID Register = 0x12
	RegisterChan0Low Register = 0x14
	RegisterChan1Low Register = 0x16
)

type Gain uint8

const (
	LowGain    Gain = 0x00
	MediumGain Gain = 0x10
	HighGain   Gain = 0x20
	MaxGain    Gain = 0x30
)

const (
	deviceID = 0x50

	commandBit            = 0xA0
	CommandEnablePowerOn  = 0x01
	CommandEnableAEN      = 0x02
	CommandEnableAIEN     = 0x10
	CommandEnableNPIEN    = 0x80
	IntegrationTime100ms  = 0x00
	IntegrationTime200ms  = 0x01
	IntegrationTime300ms  = 0x02
	IntegrationTime400ms  = 0x03
	IntegrationTime500ms  = 0x04
	IntegrationTime600ms  = 0x05
	integrationTimeFactor = 100 * time.Millisecond
)

// TSL2591 is a light sensor.
type TSL2591 struct {
	dev  i2c.Dev
	gain Gain
	it   time.Duration
}

// Open checks that a TSL2591 is on the bus, powers it on, and sets its gain and integration time.
func Open(bus i2c.Bus, gain Gain, integrationTime uint8) (*TSL2591, error) {
	t := &TSL2591{dev: i2c.Dev{Bus: bus, Addr: Addr}}
	id, err := t.DeviceID()
	if err != nil {
		return nil, fmt.Errorf("get device id: %w", err)
	}
	if id != deviceID {
		return nil, fmt.Errorf("device at %#x is not a TSL2591 (got id %#x, want %#x)", Addr, id, deviceID)
	}
	if err := t.Enable(); err != nil {
		return nil, fmt.Errorf("enable tsl2591: %w", err)
	}
	if err := t.SetGain(gain); err != nil {
		return nil, fmt.Errorf("adjust tsl2591 gain: %w", err)
	}
	if err := t.SetIntegrationTime(integrationTime); err != nil {
		return nil, fmt.Errorf("adjust tsl2591 integration time: %w", err)
	}
	return t, nil
}

func (t *TSL2591) ReadRegister(r Register, out interface{}) error {
	var buf [2]byte
	if err := t.dev.Tx([]byte{byte(commandBit | r)}, buf[:]); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, out); err != nil {
		return fmt.Errorf("binary.Read: %w", err)
	}
	return nil
}

func (t *TSL2591) WriteRegister(r Register, data ...byte) error {
	w := make([]byte, 1, len(data)+1)
	w[0] = byte(commandBit | r)
	w = append(w, data...)
	if err := t.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

func (t *TSL2591) DeviceID() (uint8, error) {
	var result uint8
	if err := t.ReadRegister(RegisterDeviceID, &result); err != nil {
		return 0, fmt.Errorf("read register: %w", err)
	}
	return result, nil
}

func (t *TSL2591) Enable() error {
	if err := t.WriteRegister(RegisterEnable, CommandEnablePowerOn|CommandEnableAEN|CommandEnableAIEN|CommandEnableNPIEN); err != nil {
		return fmt.Errorf("write enable register: %w", err)
	}
	return nil
}

// updateControl replaces the bits of the control register outside keep with value.
func (t *TSL2591) updateControl(keep, value uint8) error {
	var control uint8
	if err := t.ReadRegister(RegisterControl, &control); err != nil {
		return fmt.Errorf("read control register: %w", err)
	}
	control &= keep
	control |= value
	if err := t.WriteRegister(RegisterControl, control); err != nil {
		return fmt.Errorf("write control register: %w", err)
	}
	return nil
}

func (t *TSL2591) SetGain(gain Gain) error {
	if err := t.updateControl(0b11001111, uint8(gain)); err != nil {
		return err
	}
	t.gain = gain
	return nil
}

func (t *TSL2591) SetIntegrationTime(it uint8) error {
	if it > IntegrationTime600ms {
		return fmt.Errorf("invalid integration time %#x", it)
	}
	if err := t.updateControl(0b11111000, it); err != nil {
		return err
	}
	t.it = time.Duration(it+1) * integrationTimeFactor
	return nil
}

// IntegrationTime is how long one reading takes.
func (t *TSL2591) IntegrationTime() time.Duration { return t.it }

// Luminosity returns the combined (visible + infrared) and infrared-only counts.
func (t *TSL2591) Luminosity() (uint16, uint16, error) {
	var chan0, chan1 uint16
	if err := t.ReadRegister(RegisterChan0Low, &chan0); err != nil {
		return 0, 0, fmt.Errorf("read chan0: %w", err)
	}
	if err := t.ReadRegister(RegisterChan1Low, &chan1); err != nil {
		return 0, 0, fmt.Errorf("read chan1: %w", err)
	}
	return chan0, chan1, nil
}
