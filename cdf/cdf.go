// Package cdf builds empirical size distributions from benchmark logs.
package cdf

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/fault"
)

// Bucket is a run of observations with the same size key.
//
// Keys are kept in bytes so that grouping compares integers; KeyKB is the
// same key in kilobytes.
type Bucket struct {
	Key    uint64
	Count  int
	CumLen uint64  // size of the last observation in the bucket
	Prob   float64 // empirical probability of the last observation
}

func (b Bucket) KeyKB() float64 { return float64(b.Key) / 1000 }

// Aggregate groups the sizes of obs. See AggregateSizes.
func Aggregate(obs []bench.Observation) ([]Bucket, error) {
	sizes := make([]uint64, len(obs))
	for i := range obs {
		sizes[i] = obs[i].Size
	}
	return AggregateSizes(sizes)
}

// AggregateSizes sorts a copy of sizes and groups equal keys into buckets,
// in ascending key order. The i-th sorted value has probability i/(N-1);
// a single value has probability 0.
func AggregateSizes(sizes []uint64) ([]Bucket, error) {
	if len(sizes) == 0 {
		return nil, fault.New(fault.EmptyInput, "sizes", nil)
	}
	sorted := append([]uint64(nil), sizes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	denom := float64(len(sorted) - 1)
	prob := func(i int) float64 {
		if denom == 0 {
			return 0
		}
		return float64(i) / denom
	}

	buckets := make([]Bucket, 0, 16)
	cur := Bucket{Key: sorted[0]}
	for i, v := range sorted {
		if v != cur.Key {
			buckets = append(buckets, cur)
			cur = Bucket{Key: v}
		}
		cur.Count++
		cur.CumLen = v
		cur.Prob = prob(i)
	}
	return append(buckets, cur), nil
}

// Series is the step representation of a distribution: CDF[i] is the
// probability of values up to Time[i].
type Series struct {
	Time []uint64
	CDF  []float64
}

func SeriesOf(buckets []Bucket) Series {
	s := Series{
		Time: make([]uint64, len(buckets)),
		CDF:  make([]float64, len(buckets)),
	}
	for i, b := range buckets {
		s.Time[i] = b.CumLen
		s.CDF[i] = b.Prob
	}
	return s
}

func (s Series) Len() int { return len(s.Time) }

func (s Series) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := range s.Time {
		fmt.Fprintf(bw, "%d,%g\n", s.Time[i], s.CDF[i])
	}
	return bw.Flush()
}

// WriteBuckets prints one "key count len prob" line per bucket.
func WriteBuckets(w io.Writer, buckets []Bucket) error {
	bw := bufio.NewWriter(w)
	for _, b := range buckets {
		fmt.Fprintf(bw, "%g %d %d %g\n", b.KeyKB(), b.Count, b.CumLen, b.Prob)
	}
	return bw.Flush()
}
