// Package term draws the watch face in a terminal.
package term

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
)

const barWidth = 20

// Palette
var (
	ColorLit   = lipgloss.Color("#20A0FF")
	ColorUnlit = lipgloss.Color("#303030")
	ColorText  = lipgloss.Color("#E0E0E0")
	ColorTrack = lipgloss.Color("#303030")
)

var (
	StyleLit   = lipgloss.NewStyle().Foreground(ColorLit)
	StyleUnlit = lipgloss.NewStyle().Foreground(ColorUnlit)
	StyleDate  = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleTrack = lipgloss.NewStyle().Foreground(ColorTrack)
	StyleFace  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorUnlit).
			Padding(0, 1)
)

// tierStyle matches the battery bar colors of the other displays.
func tierStyle(t battery.Tier) lipgloss.Style {
	c := t.Color()
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)))
}

// Terminal writes a new frame to W on every flush, drawn over the previous one.
type Terminal struct {
	W io.Writer

	grid    matrix.BitMatrix
	date    string
	percent int
	tier    battery.Tier
}

func New(w io.Writer) *Terminal { return &Terminal{W: w} }

func (t *Terminal) SetCell(col, row int, on bool) { t.grid[col][row] = on }

func (t *Terminal) SetDate(label string) { t.date = label }

func (t *Terminal) SetBattery(percent int, tier battery.Tier) {
	t.percent, t.tier = percent, tier
}

// Render returns the current frame without any cursor movement.
func (t *Terminal) Render() string {
	var lines []string
	for row := matrix.Rows - 1; row >= 0; row-- {
		var cells []string
		for col := 0; col < matrix.Columns; col++ {
			if t.grid[col][row] {
				cells = append(cells, StyleLit.Render("●"))
			} else {
				cells = append(cells, StyleUnlit.Render("○"))
			}
		}
		lines = append(lines, strings.Join(cells, " "))
	}
	grid := lipgloss.JoinVertical(lipgloss.Center, lines...)

	filled := t.percent * barWidth / 100
	bar := tierStyle(t.tier).Render(strings.Repeat("█", filled)) +
		StyleTrack.Render(strings.Repeat("░", barWidth-filled))

	body := lipgloss.JoinVertical(lipgloss.Center, grid, "", StyleDate.Render(t.date), bar)
	return StyleFace.Render(body)
}

// Flush moves the cursor home, clears the screen, and draws the frame.
func (t *Terminal) Flush() error {
	if _, err := io.WriteString(t.W, "\x1b[H\x1b[2J"+t.Render()+"\n"); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
