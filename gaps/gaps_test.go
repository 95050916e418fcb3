package gaps

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uluyol/fabtrace/fault"
)

func TestDiffs(t *testing.T) {
	tests := []struct {
		markers []uint64
		want    []uint64
	}{
		{nil, nil},
		{[]uint64{5}, nil},
		{[]uint64{1, 2, 4, 8}, []uint64{1, 2, 4}},
		{[]uint64{8, 1, 4, 2}, []uint64{1, 2, 4}},
		{[]uint64{3, 3, 3}, []uint64{0, 0}},
	}

	for i, test := range tests {
		in := append([]uint64(nil), test.markers...)
		got := Diffs(in)
		assert.Equal(t, test.want, got, "case %d", i)
		assert.Equal(t, test.markers, in, "case %d: input modified", i)
	}
}

func TestWindowFilter(t *testing.T) {
	tests := []struct {
		w    Window
		in   []uint64
		want []uint64
	}{
		{Window{0, 150}, []uint64{1, 2, 3, 100, 200}, []uint64{1, 2, 3, 100}},
		{Window{2, 100}, []uint64{1, 2, 3, 100, 200}, []uint64{2, 3}},
		// Zero Max is unbounded, not empty.
		{Window{0, 0}, []uint64{1, 2, 200}, []uint64{1, 2, 200}},
		{Window{2, 0}, []uint64{1, 2, 200, math.MaxUint64}, []uint64{2, 200, math.MaxUint64}},
		{Window{10, 20}, []uint64{1, 2, 3}, nil},
	}

	for i, test := range tests {
		assert.Equal(t, test.want, test.w.Filter(test.in), "case %d", i)
	}
}

func TestBinCounts(t *testing.T) {
	h, err := Bin([]uint64{0, 1, 2, 3, 4}, 4, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, h.Edges)
	// 3 and 4 share the last bin.
	assert.Equal(t, []float64{1, 1, 1, 2}, h.Values)
	assert.Equal(t, 5, h.N)
}

func TestBinMaxInLastBin(t *testing.T) {
	h, err := Bin([]uint64{1, 2, 3, 100}, 20, false)
	require.NoError(t, err)
	require.Len(t, h.Values, 20)
	assert.Equal(t, 100.0, h.Edges[20])
	assert.Equal(t, 1.0, h.Values[19])
	assert.Equal(t, 3.0, h.Values[0])
	assert.Equal(t, 4.0, sum(h.Values))
}

func TestBinAllZero(t *testing.T) {
	h, err := Bin([]uint64{0, 0, 0}, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, h.Edges)
	assert.Equal(t, []float64{3, 0}, h.Values)
}

func TestBinErrors(t *testing.T) {
	_, err := Bin(nil, 10, true)
	assert.True(t, fault.Is(err, fault.EmptyInput), "got %v", err)
	_, err = Bin([]uint64{1}, 0, true)
	assert.Error(t, err)
	_, err = BinShared([][]uint64{{1}, {}}, 4, true)
	assert.True(t, fault.Is(err, fault.EmptyInput), "got %v", err)
	_, err = BinShared([][]uint64{{1}}, -1, true)
	assert.Error(t, err)
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func area(h Histogram) float64 {
	var a float64
	for i, v := range h.Values {
		a += v * (h.Edges[i+1] - h.Edges[i])
	}
	return a
}

func TestDensityIntegratesToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 20; iter++ {
		g := make([]uint64, 1+rng.Intn(1000))
		for i := range g {
			g[i] = uint64(rng.ExpFloat64() * 500)
		}
		bins := 1 + rng.Intn(50)
		h, err := Bin(g, bins, true)
		require.NoError(t, err)
		assert.InDelta(t, 1, area(h), 1e-9, "iter %d", iter)

		c, err := Bin(g, bins, false)
		require.NoError(t, err)
		assert.Equal(t, float64(len(g)), sum(c.Values), "iter %d", iter)
	}
}

func TestBinShared(t *testing.T) {
	hs, err := BinShared([][]uint64{{1, 2, 3}, {10, 20, 40}}, 4, false)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, []float64{0, 10, 20, 30, 40}, hs[0].Edges)
	assert.Equal(t, hs[0].Edges, hs[1].Edges)
	assert.Equal(t, []float64{3, 0, 0, 0}, hs[0].Values)
	assert.Equal(t, []float64{0, 1, 1, 1}, hs[1].Values)
}

func TestStep(t *testing.T) {
	h := Histogram{Edges: []float64{0, 1, 2, 3}, Values: []float64{5, 6, 7}}
	s := h.Step()
	assert.Equal(t, []float64{0, 0, 1, 2, 3, 3}, s.X)
	assert.Equal(t, []float64{0, 5, 6, 7, 7, 0}, s.Y)

	assert.Equal(t, Step{}, Histogram{}.Step())
}

func TestBuild(t *testing.T) {
	// Gaps are 1, 2, 3, 100, 200; the window drops 200.
	markers := []uint64{1000, 1001, 1003, 1006, 1106, 1306}
	cfg := Config{Window: Window{0, 150}, Bins: 20, Density: true}

	h, err := cfg.Histogram(markers)
	require.NoError(t, err)
	assert.Equal(t, 4, h.N)
	assert.Equal(t, 100.0, h.Edges[len(h.Edges)-1])

	s, err := Build(markers, cfg)
	require.NoError(t, err)
	require.Len(t, s.X, 23)
	require.Len(t, s.Y, 23)
	assert.Equal(t, 0.0, s.Y[0])
	assert.Equal(t, 0.0, s.Y[len(s.Y)-1])
	for i := 1; i < len(s.X); i++ {
		if s.X[i] < s.X[i-1] {
			t.Errorf("x not monotonic at %d", i)
		}
	}

	_, err = Build([]uint64{1, 1000}, cfg)
	assert.True(t, fault.Is(err, fault.EmptyInput), "got %v", err)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize([]uint64{5, 1, 4, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 3.0, s.Mean)
	assert.InDelta(t, math.Sqrt(2), s.Std, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 3.0, s.Median)
	assert.Equal(t, 2.0, s.Q1)
	assert.Equal(t, 4.0, s.Q3)
	assert.Equal(t, 2.0, s.IQR)

	_, err = Summarize(nil)
	assert.True(t, fault.Is(err, fault.EmptyInput), "got %v", err)
}

func TestSample(t *testing.T) {
	g := []uint64{10, 20, 30, 40, 50}
	assert.Equal(t, []uint64{20, 30}, Sample(g, 1, 2))
	assert.Equal(t, []uint64{40, 50}, Sample(g, 3, 10))
	assert.Equal(t, g, Sample(g, 0, 0))
	assert.Empty(t, Sample(g, 9, 2))
}
