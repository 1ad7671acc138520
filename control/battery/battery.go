// Package battery reads the charge level of the device's battery and maps it to a colored bar.
package battery

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

var percentGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "battery_percent",
	Help: "most recently displayed battery charge, in percent",
})

// Percent converts a fractional charge level (0.0-1.0) to a whole percentage, rounding down.  The
// slop keeps levels that came from whole percentages, like 0.57, from landing a hair below.
func Percent(level float64) int {
	p := int(math.Floor(level*100 + 1e-9))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Tier is the color band a charge level falls in.
type Tier int

const (
	Normal Tier = iota
	Medium
	Low
)

// TierFor returns the tier for a percentage.  20% and below is Low, 40% and below is Medium.
func TierFor(percent int) Tier {
	switch {
	case percent <= 20:
		return Low
	case percent <= 40:
		return Medium
	default:
		return Normal
	}
}

func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	default:
		return "normal"
	}
}

// Color returns the bar color for the tier.
func (t Tier) Color() color.NRGBA {
	switch t {
	case Low:
		return color.NRGBA{R: 0xff, A: 0xff}
	case Medium:
		return color.NRGBA{R: 0xff, G: 0xff, A: 0xff}
	default:
		return color.NRGBA{R: 200, G: 200, B: 200, A: 0xff}
	}
}

// Observe records a displayed level.
func Observe(percent int) {
	percentGauge.Set(float64(percent))
}

// Source is a battery that can be read and that reports when its state changes.
type Source interface {
	// Level returns the current charge between 0 and 1.
	Level() (float64, error)
	// Changes receives a value whenever the level or charging state may have changed.
	Changes() <-chan struct{}
}

// Fixed is a battery that never changes, for running without one.
type Fixed float64

func (f Fixed) Level() (float64, error) { return float64(f), nil }

func (Fixed) Changes() <-chan struct{} { return nil }

// ParseFixed parses a "fixed:<level>" battery specification.
func ParseFixed(spec string) (Fixed, bool, error) {
	v := strings.TrimPrefix(spec, "fixed:")
	if v == spec {
		return 0, false, nil
	}
	level, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, true, fmt.Errorf("parse fixed battery level %q: %w", v, err)
	}
	if level < 0 || level > 1 {
		return 0, true, fmt.Errorf("fixed battery level %v out of range [0, 1]", level)
	}
	return Fixed(level), true, nil
}

// DefaultRoot is where Linux exposes power supplies.
const DefaultRoot = "/sys/class/power_supply"

// Sysfs reads a Linux power supply such as /sys/class/power_supply/BAT0.  It polls the capacity
// and status files and signals Changes when either differs from the previous poll, which covers
// the level changing as well as the charger being plugged in or removed.
type Sysfs struct {
	dir string
	ch  chan struct{}
}

// OpenSysfs checks that the named supply exists under root and reports a capacity.
func OpenSysfs(root, name string) (*Sysfs, error) {
	dir := filepath.Join(root, name)
	if _, err := os.Stat(filepath.Join(dir, "capacity")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no battery at %s: %w", dir, err)
		}
		return nil, fmt.Errorf("stat battery capacity: %w", err)
	}
	return &Sysfs{dir: dir, ch: make(chan struct{}, 1)}, nil
}

func (s *Sysfs) read(file string) (string, error) {
	bytes, err := ioutil.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return strings.TrimSpace(string(bytes)), nil
}

// Level returns the supply's capacity as a fraction.
func (s *Sysfs) Level() (float64, error) {
	str, err := s.read("capacity")
	if err != nil {
		return 0, err
	}
	c, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parse capacity %q: %w", str, err)
	}
	return float64(c) / 100, nil
}

// Status returns the supply's charging status, like "Charging" or "Discharging".  A supply
// without a status file reports "Unknown".
func (s *Sysfs) Status() string {
	str, err := s.read("status")
	if err != nil {
		return "Unknown"
	}
	return str
}

func (s *Sysfs) Changes() <-chan struct{} { return s.ch }

// Watch polls the supply every interval until the context is cancelled.
func (s *Sysfs) Watch(ctx context.Context, interval time.Duration) error {
	l := trace.NewEventLog("battery", s.dir)
	defer l.Finish()
	var lastCapacity, lastStatus string
	for {
		capacity, err := s.read("capacity")
		if err != nil {
			l.Errorf("poll: %v", err)
		}
		status := s.Status()
		if capacity != lastCapacity || status != lastStatus {
			l.Printf("capacity: %q -> %q, status: %q -> %q", lastCapacity, capacity, lastStatus, status)
			lastCapacity, lastStatus = capacity, status
			select {
			case s.ch <- struct{}{}:
			default:
				// A change notification is already queued.
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("watching battery: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
