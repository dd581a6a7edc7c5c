package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

// Float64Timer records durations in milliseconds into a distribution.
type Float64Timer struct {
	measureMs *stats.Float64Measure
	view      *view.View
}

// NewTimerMs creates a Float64Timer with millisecond buckets.
func NewTimerMs(name, desc string) *Float64Timer {
	log.Debugf("registering timer: %s - %s", name, desc)
	fMeasure := stats.Float64(name, desc, stats.UnitMilliseconds)
	fView := &view.View{
		Name:        name,
		Measure:     fMeasure,
		Description: desc,
		Aggregation: view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000, 50000, 100000),
	}
	if err := view.Register(fView); err != nil {
		panic(err)
	}
	return &Float64Timer{
		measureMs: fMeasure,
		view:      fView,
	}
}

// Start starts a stopwatch for the timer.
func (t *Float64Timer) Start(_ context.Context) *Stopwatch {
	return &Stopwatch{
		start: time.Now(),
		timer: t,
	}
}

// Stopwatch is a running measurement of a Float64Timer.
type Stopwatch struct {
	start time.Time
	timer *Float64Timer
}

// Stop records the elapsed time and returns it.
func (sw *Stopwatch) Stop(ctx context.Context) time.Duration {
	elapsed := time.Since(sw.start)
	stats.Record(ctx, sw.timer.measureMs.M(float64(elapsed)/float64(time.Millisecond)))
	return elapsed
}
