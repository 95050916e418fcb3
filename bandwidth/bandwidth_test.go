package bandwidth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/fault"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		ts      []Transfer
		link    float64
		bits    float64
		secs    float64
		bps     float64
		utilPct float64
	}{
		{
			ts:      []Transfer{{1000, 0.0001}, {1000, 0.0001}},
			link:    40e9,
			bits:    16000,
			secs:    0.0002,
			bps:     8e7,
			utilPct: 0.2,
		},
		{
			ts:      []Transfer{{125, 1}},
			link:    1000,
			bits:    1000,
			secs:    1,
			bps:     1000,
			utilPct: 100,
		},
		{
			ts:      []Transfer{{0, 0.5}, {0, 0.5}},
			link:    10,
			bits:    0,
			secs:    1,
			bps:     0,
			utilPct: 0,
		},
	}

	for i, test := range tests {
		r, err := Estimate(test.ts, test.link)
		if err != nil {
			t.Errorf("case %d: unexpected error: %v", i, err)
			continue
		}
		assert.InDelta(t, test.bits, r.TotalBits, 1e-9, "case %d", i)
		assert.InDelta(t, test.secs, r.TotalSeconds, 1e-12, "case %d", i)
		assert.InEpsilon(t, test.bps+1, r.ActualBps+1, 1e-9, "case %d", i)
		assert.InDelta(t, test.utilPct, r.Utilization, 1e-9, "case %d", i)
	}
}

func TestEstimateNoTime(t *testing.T) {
	for _, ts := range [][]Transfer{nil, {{1000, 0}, {10, 0}}} {
		_, err := Estimate(ts, 40e9)
		assert.True(t, fault.Is(err, fault.DivideByZero), "got %v", err)
	}
}

func TestEstimateBadInterval(t *testing.T) {
	tests := [][]Transfer{
		{{1000, math.NaN()}},
		{{1000, 0.5}, {1000, -1}},
		{{1000, -0.5}, {1000, 0.5}},
		{{1000, math.Inf(1)}},
		{{1000, math.Inf(-1)}},
	}
	for i, ts := range tests {
		r, err := Estimate(ts, 40e9)
		if err == nil {
			t.Errorf("case %d: got %v, want error", i, r)
			continue
		}
		assert.Equal(t, fault.Other, fault.KindOf(err), "case %d", i)
		assert.Contains(t, err.Error(), "invalid interval", "case %d", i)
	}
}

func TestEstimateBadLink(t *testing.T) {
	for _, link := range []float64{0, -1} {
		_, err := Estimate([]Transfer{{1, 1}}, link)
		require.Error(t, err)
		assert.Equal(t, fault.Other, fault.KindOf(err))
	}
}

func TestFromObservations(t *testing.T) {
	ts := FromObservations([]bench.Observation{
		{Size: 1000, SendTimeNanos: 100000},
		{Size: 1000, SendTimeNanos: 100000},
	})
	assert.Equal(t, []Transfer{{1000, 0.0001}, {1000, 0.0001}}, ts)

	r, err := Estimate(ts, 40e9)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, r.Utilization, 1e-9)
}
