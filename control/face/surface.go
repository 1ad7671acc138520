package face

import (
	"fmt"

	"github.com/jrockway/binary-watchface/control/battery"
)

// Surface is something the watch face can be drawn on.  Writes may be buffered until Flush.
type Surface interface {
	// SetCell turns one cell of the 4x4 grid on or off.  Row 0 is the least significant bit.
	SetCell(col, row int, on bool)
	// SetDate replaces the date text.
	SetDate(label string)
	// SetBattery sets the battery bar's width in percent and its color tier.
	SetBattery(percent int, tier battery.Tier)
	// Flush pushes buffered writes to the device.
	Flush() error
}

// Surfaces draws the same face on several surfaces.
type Surfaces []Surface

func (ss Surfaces) SetCell(col, row int, on bool) {
	for _, s := range ss {
		s.SetCell(col, row, on)
	}
}

func (ss Surfaces) SetDate(label string) {
	for _, s := range ss {
		s.SetDate(label)
	}
}

func (ss Surfaces) SetBattery(percent int, tier battery.Tier) {
	for _, s := range ss {
		s.SetBattery(percent, tier)
	}
}

// Flush flushes every surface, even if an earlier one fails, and returns the first error.
func (ss Surfaces) Flush() error {
	var first error
	for i, s := range ss {
		if err := s.Flush(); err != nil && first == nil {
			first = fmt.Errorf("flush surface %d (%T): %w", i, s, err)
		}
	}
	return first
}
