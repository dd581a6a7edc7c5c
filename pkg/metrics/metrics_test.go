package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"

	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
)

func sumOf(t *testing.T, name string, tagValue string) int64 {
	rows, err := view.RetrieveData(name)
	require.NoError(t, err)
	for _, row := range rows {
		if tagValue != "" && (len(row.Tags) != 1 || row.Tags[0].Value != tagValue) {
			continue
		}
		if sum, ok := row.Data.(*view.SumData); ok {
			return int64(sum.Value)
		}
	}
	return 0
}

func TestCacheRecorder(t *testing.T) {
	tf.UnitTest(t)

	before := sumOf(t, "chain/cache_hits", "skip")
	var rec CacheRecorder
	rec.CacheHit("skip")
	rec.CacheHit("skip")
	rec.CacheMiss("tipset")

	assert.Equal(t, before+2, sumOf(t, "chain/cache_hits", "skip"))
	assert.True(t, sumOf(t, "chain/cache_misses", "tipset") >= 1)
}

func TestCounterAndGauge(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	c := NewInt64Counter("test/counter", "a test counter")
	c.Inc(ctx, 3)
	c.Inc(ctx, 4)
	assert.Equal(t, int64(7), sumOf(t, "test/counter", ""))
	assert.Equal(t, "test/counter", c.Name())

	g := NewInt64Gauge("test/gauge", "a test gauge")
	g.Set(ctx, 10)
	g.Set(ctx, 5)
	rows, err := view.RetrieveData("test/gauge")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(5), rows[0].Data.(*view.LastValueData).Value)
}

func TestTimer(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	timer := NewTimerMs("test/timer", "a test timer")
	sw := timer.Start(ctx)
	elapsed := sw.Stop(ctx)
	assert.True(t, elapsed >= 0)

	rows, err := view.RetrieveData("test/timer")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Data.(*view.DistributionData).Count)
}

func TestExporterServesViews(t *testing.T) {
	tf.BadUnitTestWithSideEffects(t)

	pe, err := NewExporter("venus_chain_test")
	require.NoError(t, err)
	defer view.UnregisterExporter(pe)

	HeadHeight.Set(context.Background(), 42)

	rec := httptest.NewRecorder()
	pe.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
