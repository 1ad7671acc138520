// Package max7219 draws the watch face on an 8x8 LED matrix driven by a MAX7219 over spidev.
//
// The matrix has no room for text, so the date is not shown.  The layout is:
//
//	row 0  AA BB CC DD   bit 3 of each digit
//	row 1
//	row 2  AA BB CC DD   bit 2
//	row 3
//	row 4  AA BB CC DD   bit 1
//	row 5
//	row 6  AA BB CC DD   bit 0
//	row 7  battery bar, one LED per 12.5%
package max7219

import (
	"fmt"

	"github.com/fulr/spidev"
	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
)

// Registers.
const (
	regNoop        = 0x00
	regDigit0      = 0x01
	regDecodeMode  = 0x09
	regIntensity   = 0x0A
	regScanLimit   = 0x0B
	regShutdown    = 0x0C
	regDisplayTest = 0x0F
)

const size = 8

// Bus sends one 16-bit command to the chip.  *spidev.SPIDevice implements it.
type Bus interface {
	Xfer(tx []byte) ([]byte, error)
}

// Display is a MAX7219 8x8 matrix.
type Display struct {
	bus Bus

	grid    matrix.BitMatrix
	percent int
	tier    battery.Tier

	rows    [size]byte
	written bool // false until the first flush writes every row
	blink   bool
}

// Open opens the spidev device at path, such as /dev/spidev0.0, and initializes the chip.
func Open(path string) (*Display, error) {
	dev, err := spidev.NewSPIDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open spidev %s: %w", path, err)
	}
	return New(dev, 0x01)
}

// New initializes a chip on bus with the given brightness (0x0 to 0xF).
func New(bus Bus, intensity byte) (*Display, error) {
	d := &Display{bus: bus}
	for _, cmd := range [][]byte{
		{regScanLimit, size - 1},
		{regDecodeMode, 0x00}, // raw segments; no BCD font
		{regDisplayTest, 0x00},
		{regShutdown, 0x01},
		{regIntensity, intensity & 0x0F},
	} {
		if err := d.write(cmd[0], cmd[1]); err != nil {
			return nil, fmt.Errorf("init max7219: %w", err)
		}
	}
	return d, nil
}

func (d *Display) write(reg, value byte) error {
	if _, err := d.bus.Xfer([]byte{reg, value}); err != nil {
		return fmt.Errorf("write register %#x: %w", reg, err)
	}
	return nil
}

func (d *Display) SetCell(col, row int, on bool) { d.grid[col][row] = on }

// SetDate does nothing; there's nowhere to put it.
func (d *Display) SetDate(string) {}

func (d *Display) SetBattery(percent int, tier battery.Tier) {
	d.percent, d.tier = percent, tier
}

// frame computes the eight row bytes.  The leftmost LED of a row is the most significant bit.
func (d *Display) frame() [size]byte {
	var rows [size]byte
	for col := 0; col < matrix.Columns; col++ {
		for bit := 0; bit < matrix.Rows; bit++ {
			if d.grid[col][bit] {
				y := 2 * (matrix.Rows - 1 - bit)
				rows[y] |= 0xC0 >> (2 * col)
			}
		}
	}
	n := (d.percent*size + 99) / 100
	if d.tier == battery.Low && d.blink {
		n = 0
	}
	for x := 0; x < n && x < size; x++ {
		rows[size-1] |= 0x80 >> x
	}
	return rows
}

// Flush writes the rows that changed since the last flush.  A low battery bar blinks, toggling on
// every flush.
func (d *Display) Flush() error {
	if d.tier == battery.Low {
		d.blink = !d.blink
	} else {
		d.blink = false
	}
	rows := d.frame()
	for y, b := range rows {
		if d.written && d.rows[y] == b {
			continue
		}
		if err := d.write(regDigit0+byte(y), b); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		d.rows[y] = b
	}
	d.written = true
	return nil
}

// Blank turns off every LED, so that someone looking at the clock can tell it isn't running.
func (d *Display) Blank() error {
	for y := 0; y < size; y++ {
		if err := d.write(regDigit0+byte(y), 0x00); err != nil {
			return fmt.Errorf("blank: %w", err)
		}
		d.rows[y] = 0
	}
	return nil
}
