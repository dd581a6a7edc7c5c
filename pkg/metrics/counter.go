package metrics

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

// mustRegister builds a dimensionless int64 measure and registers a view over
// it. Registration only fails on conflicting definitions, which is a
// programming error, so it panics.
func mustRegister(name, desc string, agg *view.Aggregation, tagKeys []tag.Key) (*stats.Int64Measure, *view.View) {
	log.Debugf("registering view %s: %s", name, desc)
	m := stats.Int64(name, desc, stats.UnitDimensionless)
	v := &view.View{
		Name:        name,
		Description: desc,
		Measure:     m,
		TagKeys:     tagKeys,
		Aggregation: agg,
	}
	if err := view.Register(v); err != nil {
		panic(err)
	}
	return m, v
}

// Int64Counter sums every value recorded into it.
type Int64Counter struct {
	measure *stats.Int64Measure
	view    *view.View
}

func NewInt64Counter(name, desc string, tagKeys ...tag.Key) *Int64Counter {
	m, v := mustRegister(name, desc, view.Sum(), tagKeys)
	return &Int64Counter{measure: m, view: v}
}

// Inc adds v to the counter.
func (c *Int64Counter) Inc(ctx context.Context, v int64) {
	stats.Record(ctx, c.measure.M(v))
}

func (c *Int64Counter) Name() string {
	return c.view.Name
}

// Int64Gauge reports the last value it was set to.
type Int64Gauge struct {
	measure *stats.Int64Measure
	view    *view.View
}

func NewInt64Gauge(name, desc string, tagKeys ...tag.Key) *Int64Gauge {
	m, v := mustRegister(name, desc, view.LastValue(), tagKeys)
	return &Int64Gauge{measure: m, view: v}
}

func (g *Int64Gauge) Set(ctx context.Context, v int64) {
	stats.Record(ctx, g.measure.M(v))
}
