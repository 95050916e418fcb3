// Package gaps turns marker sequences into histograms of the spacing
// between consecutive packets.
package gaps

import (
	"fmt"
	"math"
	"sort"

	"github.com/uluyol/fabtrace/fault"
	"github.com/uluyol/fabtrace/internal/ranges"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Diffs sorts a copy of markers and returns the differences between
// neighbors. Fewer than two markers yield no gaps.
func Diffs(markers []uint64) []uint64 {
	if len(markers) < 2 {
		return nil
	}
	sorted := append([]uint64(nil), markers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	d := make([]uint64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		d[i-1] = sorted[i] - sorted[i-1]
	}
	return d
}

// Window selects gaps in [Min, Max).
//
// A zero Max means the window has no upper bound, so Window{Min: m} keeps
// every gap of at least m. It does not select the empty range [m, 0).
type Window struct {
	Min uint64
	Max uint64
}

func (w Window) Contains(g uint64) bool {
	return g >= w.Min && (w.Max == 0 || g < w.Max)
}

// Filter returns the gaps inside w, in their original order.
func (w Window) Filter(gaps []uint64) []uint64 {
	var kept []uint64
	for _, g := range gaps {
		if w.Contains(g) {
			kept = append(kept, g)
		}
	}
	return kept
}

func (w Window) String() string {
	if w.Max == 0 {
		return fmt.Sprintf("[%d, inf)", w.Min)
	}
	return fmt.Sprintf("[%d, %d)", w.Min, w.Max)
}

// Histogram has len(Edges) == len(Values)+1. Values holds counts, or
// densities if Density is set.
type Histogram struct {
	Edges   []float64
	Values  []float64
	N       int
	Density bool
}

func toFloats(gaps []uint64) []float64 {
	x := make([]float64, len(gaps))
	for i, g := range gaps {
		x[i] = float64(g)
	}
	sort.Float64s(x)
	return x
}

func edges(bins int, max float64) []float64 {
	if max <= 0 {
		max = 1
	}
	e := floats.Span(make([]float64, bins+1), 0, max)
	e[bins] = max
	return e
}

// countInto bins sorted x over e. The last bin is closed so that the
// maximum is counted.
func countInto(x, e []float64, density bool) []float64 {
	div := append([]float64(nil), e...)
	div[len(div)-1] = math.Nextafter(div[len(div)-1], math.Inf(1))
	counts := stat.Histogram(nil, div, x, nil)
	if density {
		n := float64(len(x))
		for i := range counts {
			counts[i] /= n * (e[i+1] - e[i])
		}
	}
	return counts
}

// Bin splits [0, max(gaps)] into bins equal-width bins. If every gap is 0
// the range is [0, 1].
func Bin(gaps []uint64, bins int, density bool) (Histogram, error) {
	if bins <= 0 {
		return Histogram{}, fmt.Errorf("need a positive number of bins, got %d", bins)
	}
	if len(gaps) == 0 {
		return Histogram{}, fault.New(fault.EmptyInput, "gaps", nil)
	}
	x := toFloats(gaps)
	e := edges(bins, x[len(x)-1])
	return Histogram{
		Edges:   e,
		Values:  countInto(x, e, density),
		N:       len(x),
		Density: density,
	}, nil
}

// BinShared bins every set over the same edges, spanning the largest gap
// of all sets, so that the histograms can be overlaid.
func BinShared(sets [][]uint64, bins int, density bool) ([]Histogram, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("need a positive number of bins, got %d", bins)
	}
	if len(sets) == 0 {
		return nil, fault.New(fault.EmptyInput, "gap sets", nil)
	}
	xs := make([][]float64, len(sets))
	var max float64
	for i, s := range sets {
		if len(s) == 0 {
			return nil, fault.New(fault.EmptyInput, fmt.Sprintf("gap set %d", i), nil)
		}
		xs[i] = toFloats(s)
		max = math.Max(max, xs[i][len(xs[i])-1])
	}
	e := edges(bins, max)
	hists := make([]Histogram, len(sets))
	for i, x := range xs {
		hists[i] = Histogram{
			Edges:   e,
			Values:  countInto(x, e, density),
			N:       len(x),
			Density: density,
		}
	}
	return hists, nil
}

// Step is a closed outline of a histogram, ready to plot as a line.
type Step struct {
	X []float64
	Y []float64
}

// Step returns X = [0, e0, ..., en, en] and Y = [0, h0, ..., hn-1, hn-1, 0].
func (h Histogram) Step() Step {
	if len(h.Values) == 0 {
		return Step{}
	}
	n := len(h.Values)
	s := Step{
		X: make([]float64, 0, n+3),
		Y: make([]float64, 0, n+3),
	}
	s.X = append(s.X, 0)
	s.X = append(s.X, h.Edges...)
	s.X = append(s.X, h.Edges[n])
	s.Y = append(s.Y, 0)
	s.Y = append(s.Y, h.Values...)
	s.Y = append(s.Y, h.Values[n-1], 0)
	return s
}

type Config struct {
	Window  Window
	Bins    int
	Density bool
}

// Histogram runs the whole pipeline on one marker sequence.
func (c Config) Histogram(markers []uint64) (Histogram, error) {
	return Bin(c.Window.Filter(Diffs(markers)), c.Bins, c.Density)
}

// Build returns the step outline of the gap histogram of markers.
func Build(markers []uint64, c Config) (Step, error) {
	h, err := c.Histogram(markers)
	if err != nil {
		return Step{}, err
	}
	return h.Step(), nil
}

type Summary struct {
	Count  int
	Mean   float64
	Std    float64 // population
	Min    float64
	Max    float64
	Median float64
	Q1     float64
	Q3     float64
	IQR    float64
}

// Summarize describes gaps. Quantiles are empirical: the smallest gap at
// or above the requested fraction of the data.
func Summarize(gaps []uint64) (Summary, error) {
	if len(gaps) == 0 {
		return Summary{}, fault.New(fault.EmptyInput, "gaps", nil)
	}
	x := toFloats(gaps)
	mean, variance := stat.PopMeanVariance(x, nil)
	s := Summary{
		Count:  len(x),
		Mean:   mean,
		Std:    math.Sqrt(variance),
		Min:    floats.Min(x),
		Max:    floats.Max(x),
		Median: stat.Quantile(0.5, stat.Empirical, x, nil),
		Q1:     stat.Quantile(0.25, stat.Empirical, x, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, x, nil),
	}
	s.IQR = s.Q3 - s.Q1
	return s, nil
}

// Sample returns size gaps starting at index start, clamped to the series.
// A non-positive size runs to the end.
func Sample(gaps []uint64, start, size int) []uint64 {
	lo, hi := ranges.Window(len(gaps), start, size)
	return gaps[lo:hi]
}
