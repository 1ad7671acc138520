// Package rollover keeps a date label current by waking up just after local midnight.
package rollover

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RetryDelay is how long to wait before checking again when a rollover callback fires but the
// weekday has not changed yet.
const RetryDelay = time.Second

var (
	redrawCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "date_redraws",
		Help: "count of date label redraws, by what caused them",
	}, []string{"reason"})

	delayGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "date_rollover_delay_seconds",
		Help: "delay of the most recently scheduled date rollover check",
	})
)

// Label formats t as "Mon 02 Jan".  The abbreviations are always English.
func Label(t time.Time) string {
	return t.Format("Mon 02 Jan")
}

// UntilMidnight returns the time remaining until just after the next local midnight, computed from
// the wall clock reading of t.  The extra millisecond ensures that a callback scheduled with this
// delay sees the new day.
func UntilMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	ms := t.Nanosecond() / int(time.Millisecond)
	return time.Duration(23-h)*time.Hour +
		time.Duration(59-m)*time.Minute +
		time.Duration(59-s)*time.Second +
		time.Duration(1000-ms)*time.Millisecond +
		time.Millisecond
}

// NextDelay decides when to check the date again after drawing it at now.  prev is the weekday
// observed by the previous check and is only meaningful if havePrev is true.
func NextDelay(prev time.Weekday, havePrev bool, now time.Time) time.Duration {
	if havePrev && prev == now.Weekday() {
		return RetryDelay
	}
	return UntilMidnight(now)
}

// State is the scheduler's position in its two-state lifecycle.
type State int

const (
	// AwaitingFirstUpdate means nothing has been drawn yet.
	AwaitingFirstUpdate State = iota
	// AwaitingRollover means a weekday has been drawn and a check is scheduled.
	AwaitingRollover
)

func (s State) String() string {
	switch s {
	case AwaitingFirstUpdate:
		return "awaiting first update"
	case AwaitingRollover:
		return "awaiting rollover"
	default:
		return "unknown"
	}
}

// Timer is a pending callback.  *time.Timer implements it.
type Timer interface {
	Stop() bool
}

// Timers creates callbacks that run after a delay.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealTimers schedules callbacks with time.AfterFunc.
type RealTimers struct{}

func (RealTimers) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Scheduler redraws a date label and keeps exactly one rollover check pending.
type Scheduler struct {
	// Now reads the device clock.
	Now func() time.Time
	// Timers schedules rollover checks.  Defaults to RealTimers.
	Timers Timers
	// Redraw receives each new label.  It's called with the scheduler's lock held and must not
	// call back into the scheduler.
	Redraw func(label string)
	// Dispatch runs a fired check.  A controller with its own event loop uses it to move the
	// redraw onto that loop; nil runs the check on the timer's goroutine.
	Dispatch func(f func())

	mu         sync.Mutex
	state      State
	last       time.Weekday
	pending    Timer
	generation uint64
	delay      time.Duration
}

// Update redraws the label immediately and schedules the next check for midnight, as if nothing had
// been drawn before.  This is what startup, wake from sleep, and time zone changes do.
func (s *Scheduler) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := "refresh"
	if s.state == AwaitingFirstUpdate {
		reason = "initial"
	}
	s.update(0, false, reason)
}

// update must be called with mu held.
func (s *Scheduler) update(prev time.Weekday, havePrev bool, reason string) {
	now := s.Now()
	delay := NextDelay(prev, havePrev, now)
	if havePrev && prev == now.Weekday() {
		reason = "retry"
	}
	redrawCounter.WithLabelValues(reason).Inc()
	if s.Redraw != nil {
		s.Redraw(Label(now))
	}
	s.schedule(delay, now.Weekday())
}

// schedule replaces any pending check with a new one.  mu must be held.
func (s *Scheduler) schedule(d time.Duration, day time.Weekday) {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.generation++
	gen := s.generation
	s.state = AwaitingRollover
	s.last = day
	s.delay = d
	delayGauge.Set(d.Seconds())

	timers := s.Timers
	if timers == nil {
		timers = RealTimers{}
	}
	s.pending = timers.AfterFunc(d, func() {
		fire := func() { s.fire(gen, day) }
		if s.Dispatch != nil {
			s.Dispatch(fire)
			return
		}
		fire()
	})
}

// fire runs a rollover check.  A check from a timer that was replaced after it had already fired
// is ignored, so there is never more than one chain of checks.
func (s *Scheduler) fire(gen uint64, day time.Weekday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.pending == nil {
		return
	}
	s.pending = nil
	s.update(day, true, "rollover")
}

// Stop cancels the pending check, if any.  A later Update starts over.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.generation++
	s.state = AwaitingFirstUpdate
}

// Pending returns the number of outstanding checks; 0 or 1.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return 0
	}
	return 1
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Delay returns the delay of the most recently scheduled check.
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}
