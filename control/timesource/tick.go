package timesource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	missedTicksCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missed_ticks",
		Help: "count of ticks that were generated but never received by anything",
	}, []string{"period"})

	tickDelayMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tick_delay",
		Help:    "amount of time between the period boundary and when the tick is sent to the channel, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 10, 10),
	}, []string{"period"})
)

// Tick sends the current time to ch at the instant each period of the wall clock begins; every
// second for a period of time.Second, on the minute for time.Minute.  A listener that isn't ready
// within half a period doesn't receive an outdated time; the tick is skipped and counted.
// Cancelling the context causes this to return immediately.
func Tick(ctx context.Context, ch chan<- time.Time, period time.Duration) error {
	label := period.String()
	for {
		next := time.Now().Add(period).Truncate(period)

		// Wait until the next period starts.
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return fmt.Errorf("waiting for next %s: %w", label, ctx.Err())
		}

		// Send the time to the channel.
		select {
		case <-time.After(period / 2):
			missedTicksCounter.WithLabelValues(label).Inc()
		case <-ctx.Done():
			return fmt.Errorf("waiting to send tick: %w", ctx.Err())
		case ch <- next:
			tickDelayMetric.WithLabelValues(label).Observe(float64(time.Since(next).Nanoseconds()))
		}
	}
}
