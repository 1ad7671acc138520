// Package face runs a binary watch face: the time as a 4x4 grid of lit cells, the date as text, and
// the battery charge as a colored bar.
//
// All drawing happens on the goroutine running Controller.Run.  Ticks, wake-ups, time zone
// changes, battery changes, mode changes and the date rollover timer are all delivered to it as
// events, so nothing else ever writes to the surface.
package face

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/matrix"
	"github.com/jrockway/binary-watchface/control/rollover"
	"github.com/jrockway/binary-watchface/control/timesource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

// Mode is the display mode.
type Mode int

const (
	// Active updates the grid every second.
	Active Mode = iota
	// Ambient is the low-power mode; the grid is updated once a minute.
	Ambient
)

func (m Mode) String() string {
	switch m {
	case Active:
		return "active"
	case Ambient:
		return "ambient"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "active" or "ambient".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return Active, nil
	case "ambient":
		return Ambient, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Period is how often the grid is redrawn in this mode.
func (m Mode) Period() time.Duration {
	if m == Ambient {
		return time.Minute
	}
	return time.Second
}

var (
	updateCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchface_time_updates",
		Help: "count of time grid redraws, by what caused them",
	}, []string{"reason"})

	flushErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchface_flush_errors",
		Help: "count of failed writes to the display",
	})

	modeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watchface_mode",
		Help: "current display mode; 0 is active, 1 is ambient",
	})
)

// TickFunc sends the time to ch at the start of every period; timesource.Tick is the real one.
type TickFunc func(ctx context.Context, ch chan<- time.Time, period time.Duration) error

// Controller owns the state of one watch face.
type Controller struct {
	time    timesource.Source
	battery battery.Source
	surface Surface

	// Timers schedules date rollover checks.  Nil uses real timers.
	Timers rollover.Timers
	// Tick drives the grid.  Nil uses timesource.Tick.
	Tick TickFunc
	// Mode is the mode Run starts in.
	Mode Mode

	wakeCh chan struct{}
	modeCh chan modeRequest
	dateCh chan func()

	current int32 // the mode, readable from any goroutine with atomic.LoadInt32.

	mode   Mode
	dates  *rollover.Scheduler
	events trace.EventLog
}

// New returns a controller drawing on s.  The time and battery sources are required; a face that
// can't read them has nothing to show.
func New(ts timesource.Source, b battery.Source, s Surface) (*Controller, error) {
	if ts == nil {
		return nil, errors.New("no time source")
	}
	if b == nil {
		return nil, errors.New("no battery source")
	}
	if s == nil {
		return nil, errors.New("no display surface")
	}
	return &Controller{
		time:    ts,
		battery: b,
		surface: s,
		wakeCh:  make(chan struct{}, 1),
		modeCh:  make(chan modeRequest),
		dateCh:  make(chan func()),
	}, nil
}

// Wake tells the face that the display became visible again.  The time and date are redrawn right
// away instead of waiting for the next tick.  It never blocks; wake-ups that arrive while one is
// already pending are merged.
func (c *Controller) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

type modeRequest struct {
	mode   Mode
	toggle bool
}

func (c *Controller) requestMode(ctx context.Context, req modeRequest) error {
	select {
	case c.modeCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMode switches between active and ambient mode.  It blocks until Run accepts the change or
// the context is done.
func (c *Controller) SetMode(ctx context.Context, m Mode) error {
	if err := c.requestMode(ctx, modeRequest{mode: m}); err != nil {
		return fmt.Errorf("set mode %v: %w", m, err)
	}
	return nil
}

// ToggleMode switches to whichever mode the face isn't in.
func (c *Controller) ToggleMode(ctx context.Context) error {
	if err := c.requestMode(ctx, modeRequest{toggle: true}); err != nil {
		return fmt.Errorf("toggle mode: %w", err)
	}
	return nil
}

// CurrentMode returns the mode the face is in.  It's safe to call from any goroutine.
func (c *Controller) CurrentMode() Mode {
	return Mode(atomic.LoadInt32(&c.current))
}

func (c *Controller) setCurrent(m Mode) {
	c.mode = m
	atomic.StoreInt32(&c.current, int32(m))
	modeGauge.Set(float64(m))
}

type ticker struct {
	ch     chan time.Time
	errCh  chan error
	cancel context.CancelFunc
}

// startTicker runs the tick function for the current mode until ctx is cancelled or the returned
// ticker's cancel is called.
func (c *Controller) startTicker(ctx context.Context) *ticker {
	tctx, cancel := context.WithCancel(ctx)
	t := &ticker{ch: make(chan time.Time), errCh: make(chan error), cancel: cancel}
	tick := c.Tick
	if tick == nil {
		tick = timesource.Tick
	}
	period := c.mode.Period()
	go func() {
		err := tick(tctx, t.ch, period)
		select {
		case t.errCh <- err:
		case <-tctx.Done():
		}
	}()
	return t
}

// Run draws the face until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.events = trace.NewEventLog("face", "controller")
	defer c.events.Finish()

	c.setCurrent(c.Mode)
	c.dates = &rollover.Scheduler{
		Now:    c.time.Now,
		Timers: c.Timers,
		Redraw: c.surface.SetDate,
		Dispatch: func(f func()) {
			select {
			case c.dateCh <- f:
			case <-ctx.Done():
			}
		},
	}
	defer c.dates.Stop()

	c.updateTime("initial")
	c.dates.Update()
	c.updateBattery()
	c.flush()

	t := c.startTicker(ctx)
	defer func() { t.cancel() }()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("watch face: %w", ctx.Err())
		case <-t.ch:
			c.updateTime("tick")
		case err := <-t.errCh:
			return fmt.Errorf("ticker: %w", err)
		case <-c.wakeCh:
			c.events.Printf("wake")
			c.refresh("wake")
		case <-c.time.ZoneChanges():
			c.events.Printf("time zone changed")
			c.refresh("zone")
		case <-c.battery.Changes():
			c.updateBattery()
		case req := <-c.modeCh:
			m := req.mode
			if req.toggle {
				m = Active
				if c.mode == Active {
					m = Ambient
				}
			}
			if m == c.mode {
				continue
			}
			c.events.Printf("mode %v -> %v", c.mode, m)
			c.setCurrent(m)
			t.cancel()
			t = c.startTicker(ctx)
			c.updateTime("mode")
		case f := <-c.dateCh:
			f()
		}
		c.flush()
	}
}

// refresh redraws both the time and the date, treating the date as never having been drawn.
func (c *Controller) refresh(reason string) {
	c.updateTime(reason)
	c.dates.Update()
}

// updateTime reads the clock and rewrites every cell of the grid.
func (c *Controller) updateTime(reason string) {
	now := c.time.Now()
	grid := matrix.FromTime(now)
	for col := 0; col < matrix.Columns; col++ {
		for row := 0; row < matrix.Rows; row++ {
			c.surface.SetCell(col, row, grid[col][row])
		}
	}
	updateCounter.WithLabelValues(reason).Inc()
}

func (c *Controller) updateBattery() {
	level, err := c.battery.Level()
	if err != nil {
		c.events.Errorf("read battery: %v", err)
		return
	}
	p := battery.Percent(level)
	battery.Observe(p)
	c.surface.SetBattery(p, battery.TierFor(p))
}

func (c *Controller) flush() {
	if err := c.surface.Flush(); err != nil {
		flushErrorCounter.Inc()
		c.events.Errorf("flush: %v", err)
	}
}
