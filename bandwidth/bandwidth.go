// Package bandwidth estimates link utilization from transfer sizes and
// the time each transfer took.
package bandwidth

import (
	"fmt"
	"math"

	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/fault"
	"gonum.org/v1/gonum/floats"
)

// Transfer is one message of Bytes bytes sent over Interval seconds.
type Transfer struct {
	Bytes    uint64
	Interval float64
}

type Report struct {
	TotalBits    float64
	TotalSeconds float64
	ActualBps    float64
	Utilization  float64 // percent of link capacity
}

func (r Report) String() string {
	return fmt.Sprintf("%.0f bits in %gs: %.4g bps (%.4g%% utilization)",
		r.TotalBits, r.TotalSeconds, r.ActualBps, r.Utilization)
}

// FromObservations treats each observation's send time as its interval.
func FromObservations(obs []bench.Observation) []Transfer {
	ts := make([]Transfer, len(obs))
	for i, o := range obs {
		ts[i] = Transfer{Bytes: o.Size, Interval: float64(o.SendTimeNanos) / 1e9}
	}
	return ts
}

// Estimate sums the bits and intervals of ts and compares the resulting
// rate with a link of linkBps bits per second. Intervals must be finite
// and non-negative.
func Estimate(ts []Transfer, linkBps float64) (Report, error) {
	if !(linkBps > 0) {
		return Report{}, fmt.Errorf("link capacity must be positive, got %g bps", linkBps)
	}
	bits := make([]float64, len(ts))
	secs := make([]float64, len(ts))
	for i, t := range ts {
		if !(t.Interval >= 0) || math.IsInf(t.Interval, 1) {
			return Report{}, fmt.Errorf("transfer %d: invalid interval %g", i, t.Interval)
		}
		bits[i] = float64(t.Bytes) * 8
		secs[i] = t.Interval
	}
	r := Report{
		TotalBits:    floats.Sum(bits),
		TotalSeconds: floats.Sum(secs),
	}
	if r.TotalSeconds == 0 {
		return r, fault.Newf(fault.DivideByZero, "intervals", "no time elapsed, cannot compute utilization")
	}
	r.ActualBps = r.TotalBits / r.TotalSeconds
	r.Utilization = 100 * r.ActualBps / linkBps
	return r, nil
}
