package matrix

import (
	"testing"
	"time"
)

func TestEncodeRoundTrip(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			got := Encode(h, m).Digits()
			want := [Columns]int{h / 10, h % 10, m / 10, m % 10}
			if got != want {
				t.Errorf("decode %02d:%02d:\n  got: %v\n want: %v", h, m, got, want)
			}
		}
	}
}

func TestEncodeColumns(t *testing.T) {
	testData := []struct {
		hours, minutes int
		want           [Columns]uint8
	}{
		{9, 5, [Columns]uint8{0b0000, 0b1001, 0b0000, 0b0101}},
		{23, 59, [Columns]uint8{0b0010, 0b0011, 0b0101, 0b1001}},
		{0, 0, [Columns]uint8{0, 0, 0, 0}},
		{18, 38, [Columns]uint8{0b0001, 0b1000, 0b0011, 0b1000}},
	}
	for _, test := range testData {
		m := Encode(test.hours, test.minutes)
		var got [Columns]uint8
		for col := range got {
			got[col] = m.Column(col)
		}
		if want := test.want; got != want {
			t.Errorf("encode %02d:%02d:\n  got: %04b\n want: %04b", test.hours, test.minutes, got, want)
		}
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	a := Encode(12, 34)
	b := Encode(12, 34)
	if a != b {
		t.Errorf("encoding the same reading twice differs:\n%v\n\n%v", a, b)
	}

	// A reading of all zeroes after a busy one must not leave anything lit.
	Encode(19, 59)
	if got, want := Encode(0, 0).Lit(), 0; got != want {
		t.Errorf("lit cells at 00:00:\n  got: %v\n want: %v", got, want)
	}
}

func TestFromTime(t *testing.T) {
	ts := time.Date(2021, 10, 3, 21, 47, 59, 999, time.UTC)
	if got, want := FromTime(ts), Encode(21, 47); got != want {
		t.Errorf("from time:\n  got:\n%v\n want:\n%v", got, want)
	}
}

func TestString(t *testing.T) {
	want := "" +
		".#..\n" +
		"...#\n" +
		"....\n" +
		".#.#"
	if got := Encode(9, 5).String(); got != want {
		t.Errorf("string:\n  got:\n%s\n want:\n%s", got, want)
	}
}
