package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAndAverage(t *testing.T) {
	tt := NewTracker()
	tt.Record("hist", 10*time.Microsecond)
	tt.Record("hist", 30*time.Microsecond)
	tt.Record("lut", time.Microsecond)

	assert.Equal(t, 20*time.Microsecond, tt.GetAverageTime("hist"))
	assert.Equal(t, []string{"hist", "lut"}, tt.Operations())
	assert.Zero(t, tt.GetAverageTime("missing"))

	timings := tt.GetTimings("hist")
	timings[0] = 0
	assert.Equal(t, 10*time.Microsecond, tt.GetTimings("hist")[0], "returned slice is a copy")
}

func TestStartEndTiming(t *testing.T) {
	tt := NewTracker()
	ctx := tt.StartTiming("load")
	tt.EndTiming(ctx)
	assert.Len(t, tt.GetTimings("load"), 1)

	tt.EndTiming(context.Background())
	assert.Len(t, tt.GetTimings("load"), 1)
}

func TestDisabledAndReset(t *testing.T) {
	tt := NewTracker()
	tt.SetEnabled(false)
	tt.Record("hist", time.Second)
	tt.EndTiming(tt.StartTiming("load"))
	assert.Empty(t, tt.Operations())

	tt.SetEnabled(true)
	tt.Record("hist", time.Second)
	tt.Record("lut", time.Second)
	tt.Reset("hist")
	assert.Equal(t, []string{"lut"}, tt.Operations())
	tt.Reset("")
	assert.Empty(t, tt.Operations())
}
