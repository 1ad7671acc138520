package lightsensor

import (
	"context"
	"fmt"
	"time"

	"github.com/jrockway/binary-watchface/control/face"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

var luminosityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "luminosity",
	Help: "most recent light sensor reading, in raw counts",
}, []string{"channel"})

// Sensor reads luminosity; *TSL2591 implements it.
type Sensor interface {
	Luminosity() (combined uint16, ir uint16, err error)
}

// Hysteresis decides the display mode from a stream of readings.  The face goes ambient after
// Samples consecutive readings below Dark, and back to active as soon as one reading exceeds
// Bright.  Sync tells it which mode the face is actually in, since something else may have
// switched it.
type Hysteresis struct {
	Dark, Bright uint16
	Samples      int

	darkRun int
	mode    face.Mode
}

// Sync sets the mode the next readings are judged against.  A change discards the current run of
// dark readings.
func (h *Hysteresis) Sync(m face.Mode) {
	if m != h.mode {
		h.mode = m
		h.darkRun = 0
	}
}

// Observe adds a reading and returns the resulting mode and whether it changed.
func (h *Hysteresis) Observe(combined uint16) (face.Mode, bool) {
	switch {
	case combined < h.Dark:
		h.darkRun++
	case combined > h.Bright:
		h.darkRun = 0
		if h.mode == face.Ambient {
			h.mode = face.Active
			return h.mode, true
		}
		return h.mode, false
	default:
		h.darkRun = 0
	}
	if h.mode == face.Active && h.darkRun >= h.Samples {
		h.mode = face.Ambient
		return h.mode, true
	}
	return h.mode, false
}

// Watch polls the sensor every interval and calls setMode when the mode changes, until the
// context is cancelled.  Read errors are logged and the reading skipped.  If current is not nil,
// the hysteresis is synced to its result before each reading is observed.
func Watch(ctx context.Context, s Sensor, h *Hysteresis, interval time.Duration, current func() face.Mode, setMode func(context.Context, face.Mode) error) error {
	l := trace.NewEventLog("sensor", "luminosity")
	defer l.Finish()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("watching light sensor: %w", ctx.Err())
		case <-time.After(interval):
		}
		combined, ir, err := s.Luminosity()
		if err != nil {
			l.Errorf("read luminosity: %v", err)
			continue
		}
		luminosityGauge.WithLabelValues("combined").Set(float64(combined))
		luminosityGauge.WithLabelValues("ir").Set(float64(ir))
		if current != nil {
			h.Sync(current())
		}
		mode, changed := h.Observe(combined)
		if !changed {
			continue
		}
		l.Printf("luminosity %v: switching to %v", combined, mode)
		if err := setMode(ctx, mode); err != nil {
			return fmt.Errorf("set mode: %w", err)
		}
	}
}
