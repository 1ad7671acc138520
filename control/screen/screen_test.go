package screen

import (
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
)

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func drawGrid(t *testing.T, s *Screen, m matrix.BitMatrix) {
	t.Helper()
	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			s.SetCell(col, row, m[col][row])
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestPreview(t *testing.T) {
	s, err := NewScreen(nil)
	if err != nil {
		t.Fatalf("new screen: %v", err)
	}
	s.SetDate("Sun 03 Oct")
	s.SetBattery(30, battery.Medium)
	m := matrix.Encode(9, 5)
	drawGrid(t, s, m)

	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			want := color.Color(unlit)
			if m[col][row] {
				want = s.On
			}
			p := center(cellRect(col, row))
			if got := s.image.At(p.X, p.Y); !sameColor(got, want) {
				t.Errorf("cell (%d, %d):\n  got: %v\n want: %v", col, row, got, want)
			}
		}
	}

	bar := barRect(30)
	if got, want := s.image.At(bar.Min.X, bar.Min.Y), battery.Medium.Color(); !sameColor(got, want) {
		t.Errorf("battery bar start:\n  got: %v\n want: %v", got, want)
	}
	if got, want := s.image.At(bar.Max.X+1, bar.Min.Y), barTrack; !sameColor(got, want) {
		t.Errorf("battery bar past 30%%:\n  got: %v\n want: %v", got, want)
	}

	// The date should have put some text-colored pixels under the grid.
	var lit int
	o := textOrigin()
	for x := margin; x < width-margin; x++ {
		for y := o.Y.Round() - face.Ascent; y < o.Y.Round()+face.Descent; y++ {
			if !sameColor(s.image.At(x, y), background) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("no date text drawn")
	}

	// Redrawing with an all-off grid must not leave anything on.
	drawGrid(t, s, matrix.Encode(0, 0))
	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			p := center(cellRect(col, row))
			if got := s.image.At(p.X, p.Y); !sameColor(got, unlit) {
				t.Errorf("cell (%d, %d) still lit after clearing: %v", col, row, got)
			}
		}
	}
}

func TestServeHTTP(t *testing.T) {
	s, err := NewScreen(nil)
	if err != nil {
		t.Fatalf("new screen: %v", err)
	}
	drawGrid(t, s, matrix.Encode(12, 34))
	req := httptest.NewRequest("GET", "/display.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Errorf("response code:\n  got: %v\n want: %v", got, want)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if got, want := img.Bounds().Dx(), width; got != want {
		t.Errorf("width:\n  got: %v\n want: %v", got, want)
	}
}

func TestIndexOf(t *testing.T) {
	seen := make(map[int]bool)
	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			i := indexOf(col, row)
			if i < 0 || i >= matrix.Columns*matrix.Rows {
				t.Errorf("index of (%d, %d) out of range: %d", col, row, i)
			}
			if seen[i] {
				t.Errorf("index %d used twice", i)
			}
			seen[i] = true
		}
	}
	testData := []struct {
		col, row, want int
	}{
		{0, 0, 0}, {0, 3, 3}, {1, 3, 4}, {1, 0, 7}, {2, 0, 8}, {3, 3, 12}, {3, 0, 15},
	}
	for _, test := range testData {
		if got := indexOf(test.col, test.row); got != test.want {
			t.Errorf("index of (%d, %d):\n  got: %v\n want: %v", test.col, test.row, got, test.want)
		}
	}
}

func TestToStrip(t *testing.T) {
	s, err := NewScreen(nil)
	if err != nil {
		t.Fatalf("new screen: %v", err)
	}
	s.Brightness = 1
	s.On = color.NRGBA{R: 0xff, A: 0xff}
	// 01:00 lights only the low bit of the hours ones column.
	drawGrid(t, s, matrix.Encode(1, 0))
	strip := s.toStrip()
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			want := color.NRGBA{}
			if col == 1 && row == 0 {
				want = color.NRGBA{R: 0xff, A: 0xff}
			}
			if got := strip[indexOf(col, row)]; got != want {
				t.Errorf("pixel (%d, %d):\n  got: %v\n want: %v", col, row, got, want)
			}
		}
	}
}
