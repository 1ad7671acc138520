// Package screen draws the watch face onto a preview image, and optionally onto a 16-pixel APA102
// strip laid out as a 4x4 grid.  The preview is served over HTTP so the rest of the program can be
// debugged without the LEDs attached.
package screen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/devices/apa102"
)

const (
	cols = matrix.Columns
	rows = matrix.Rows

	cellSize = 40 // Size of one cell in the preview.
	cellGap  = 10 // Space between cells, to simulate LED spacing.
	margin   = 10 // Border around the whole preview.
	textGap  = 12 // Space between the grid and the date.
	barGap   = 8  // Space between the date and the battery bar.
	barSize  = 10 // Height of the battery bar.

	gridSize = cols*cellSize + (cols-1)*cellGap
	width    = gridSize + 2*margin
)

var (
	background = color.NRGBA64{A: 0xffff}
	unlit      = color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	textColor  = color.NRGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	barTrack   = color.NRGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}
)

var face = basicfont.Face7x13

// Screen is a watch face display.  Writes are buffered until Flush, which redraws the preview and
// updates the LEDs.
//
// The LED strip starts at the bottom of column 0 and snakes through the grid, so odd-numbered
// columns run top to bottom:
//
//	3  4 11 12
//	2  5 10 13
//	1  6  9 14
//	0  7  8 15
type Screen struct {
	// On is the color of a lit cell.
	On color.NRGBA
	// Brightness scales the LED output; 0 is off, 1 is full.  The preview is always full.
	Brightness float64

	leds *apa102.Dev

	grid    matrix.BitMatrix
	date    string
	percent int
	tier    battery.Tier

	imageMu sync.Mutex
	image   *image.NRGBA64 // must hold imageMu to read or write.
}

// NewScreen returns an initialized Screen.  With a nil port, only the preview is drawn.
func NewScreen(p spi.Port) (*Screen, error) {
	s := &Screen{
		On:         color.NRGBA{R: 0x20, G: 0xa0, B: 0xff, A: 0xff},
		Brightness: 0.25,
		image:      image.NewNRGBA64(image.Rect(0, 0, width, height())),
	}
	if p == nil {
		return s, nil
	}
	opts := &apa102.Opts{
		NumPixels:        rows * cols,
		Intensity:        255,
		Temperature:      apa102.NeutralTemp,
		DisableGlobalPWM: true,
	}
	leds, err := apa102.New(p, opts)
	if err != nil {
		return nil, fmt.Errorf("init apa102: %w", err)
	}
	s.leds = leds
	return s, nil
}

func height() int {
	return margin + gridSize + textGap + face.Height + barGap + barSize + margin
}

// cellRect returns the preview rectangle of a cell.  Row 0 is drawn at the bottom.
func cellRect(col, row int) image.Rectangle {
	x := margin + col*(cellSize+cellGap)
	y := margin + (rows-1-row)*(cellSize+cellGap)
	return image.Rect(x, y, x+cellSize, y+cellSize)
}

func textOrigin() fixed.Point26_6 {
	return fixed.P(margin, margin+gridSize+textGap+face.Ascent)
}

func barRect(percent int) image.Rectangle {
	y := margin + gridSize + textGap + face.Height + barGap
	return image.Rect(margin, y, margin+gridSize*percent/100, y+barSize)
}

func (s *Screen) SetCell(col, row int, on bool) { s.grid[col][row] = on }

func (s *Screen) SetDate(label string) { s.date = label }

func (s *Screen) SetBattery(percent int, tier battery.Tier) {
	s.percent, s.tier = percent, tier
}

// Flush redraws the preview and writes the grid to the LEDs.
func (s *Screen) Flush() error {
	s.updateCurrentImage()
	if s.leds == nil {
		return nil
	}
	if _, err := s.leds.Write(apa102.ToRGB(s.toStrip())); err != nil {
		return fmt.Errorf("write to apa102 strand: %w", err)
	}
	return nil
}

// Blank turns off every LED.  The preview is left alone.
func (s *Screen) Blank() error {
	if s.leds == nil {
		return nil
	}
	if _, err := s.leds.Write(apa102.ToRGB(make([]color.NRGBA, rows*cols))); err != nil {
		return fmt.Errorf("blank apa102 strand: %w", err)
	}
	return nil
}

// ServeHTTP serves the current preview as a PNG.
func (s *Screen) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	if err := png.Encode(w, s.image); err != nil {
		log.Printf("encoding image: %v", err)
	}
}

// updateCurrentImage redraws the preview from the buffered state.
func (s *Screen) updateCurrentImage() {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	draw.Draw(s.image, s.image.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			c := unlit
			if s.grid[col][row] {
				c = s.On
			}
			draw.Draw(s.image, cellRect(col, row), image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
	(&font.Drawer{
		Dst:  s.image,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  textOrigin(),
	}).DrawString(s.date)
	draw.Draw(s.image, barRect(100), image.NewUniform(barTrack), image.Point{}, draw.Src)
	draw.Draw(s.image, barRect(s.percent), image.NewUniform(s.tier.Color()), image.Point{}, draw.Src)
}

// indexOf maps a cell to its position on the strip.
func indexOf(col, row int) int {
	if col%2 == 0 {
		return col*rows + row
	}
	return col*rows + rows - 1 - row
}

func gamma(c uint8) uint8 {
	u := float64(c) / 0xff
	return uint8(math.Round(255 * math.Pow(u, 2.2)))
}

// toStrip returns the colors to send to the strip, scaled by Brightness and gamma corrected.
func (s *Screen) toStrip() []color.NRGBA {
	result := make([]color.NRGBA, rows*cols)
	scale := math.Max(0, math.Min(1, s.Brightness))
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			if !s.grid[col][row] {
				continue
			}
			result[indexOf(col, row)] = color.NRGBA{
				R: gamma(uint8(scale * float64(s.On.R))),
				G: gamma(uint8(scale * float64(s.On.G))),
				B: gamma(uint8(scale * float64(s.On.B))),
				A: 0xff,
			}
		}
	}
	return result
}
