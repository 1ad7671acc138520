package term

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
)

func TestRender(t *testing.T) {
	buf := new(bytes.Buffer)
	term := New(buf)
	m := matrix.Encode(23, 59)
	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			term.SetCell(col, row, m[col][row])
		}
	}
	term.SetDate("Sun 03 Oct")
	term.SetBattery(50, battery.Normal)
	if err := term.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\x1b[H\x1b[2J") {
		t.Errorf("frame does not start by clearing the screen: %q", out[:10])
	}
	if !strings.Contains(out, "Sun 03 Oct") {
		t.Errorf("frame does not contain the date:\n%s", out)
	}
	if got, want := strings.Count(out, "●"), m.Lit(); got != want {
		t.Errorf("lit cells:\n  got: %v\n want: %v", got, want)
	}
	if got, want := strings.Count(out, "○"), 16-m.Lit(); got != want {
		t.Errorf("unlit cells:\n  got: %v\n want: %v", got, want)
	}
	if got, want := strings.Count(out, "█"), barWidth/2; got != want {
		t.Errorf("battery bar:\n  got: %v\n want: %v", got, want)
	}
}
