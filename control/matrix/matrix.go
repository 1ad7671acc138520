// Package matrix encodes a wall-clock reading as a 4x4 grid of on/off cells.
//
// Each column holds one decimal digit of HH:MM in binary.  Column 0 is the tens digit of the hour,
// column 3 the ones digit of the minute.  Row 0 is the least significant bit, so a display that
// draws row 0 at the bottom reads like a column of binary-coded decimal.
package matrix

import (
	"strings"
	"time"
)

const (
	Columns = 4
	Rows    = 4
)

// BitMatrix is a 4x4 grid indexed as [column][row].
type BitMatrix [Columns][Rows]bool

// digits splits hours and minutes into the four BCD digits, in column order.
func digits(hours, minutes int) [Columns]int {
	return [Columns]int{hours / 10, hours % 10, minutes / 10, minutes % 10}
}

// Encode returns the matrix for hours (0-23) and minutes (0-59).  Every cell is written, so a
// digit that encodes to 0 clears its whole column.
func Encode(hours, minutes int) BitMatrix {
	var m BitMatrix
	for col, d := range digits(hours, minutes) {
		for i := 0; i < Rows; i++ {
			m[col][i] = d&(1<<i) != 0
		}
	}
	return m
}

// FromTime encodes the hour and minute of t, in t's location.
func FromTime(t time.Time) BitMatrix {
	h, m, _ := t.Clock()
	return Encode(h, m)
}

// Column returns the bit pattern of one column as an unsigned integer.
func (m BitMatrix) Column(col int) uint8 {
	var v uint8
	for i := 0; i < Rows; i++ {
		if m[col][i] {
			v |= 1 << i
		}
	}
	return v
}

// Digits decodes the matrix back into [hours-tens, hours-ones, minutes-tens, minutes-ones].
func (m BitMatrix) Digits() [Columns]int {
	var result [Columns]int
	for col := range result {
		result[col] = int(m.Column(col))
	}
	return result
}

// Lit returns the number of cells that are on.
func (m BitMatrix) Lit() int {
	var n int
	for col := 0; col < Columns; col++ {
		for row := 0; row < Rows; row++ {
			if m[col][row] {
				n++
			}
		}
	}
	return n
}

// String draws the matrix with the most significant row on top, '#' for on and '.' for off.
func (m BitMatrix) String() string {
	buf := new(strings.Builder)
	for row := Rows - 1; row >= 0; row-- {
		for col := 0; col < Columns; col++ {
			if m[col][row] {
				buf.WriteByte('#')
			} else {
				buf.WriteByte('.')
			}
		}
		if row > 0 {
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}
