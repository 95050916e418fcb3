package ranges

import "testing"

func TestWindow(t *testing.T) {
	tests := []struct {
		n, start, size int
		lo, hi         int
	}{
		{10, 0, 0, 0, 10},
		{10, 0, 3, 0, 3},
		{10, 2, 3, 2, 5},
		{10, 8, 5, 8, 10},
		{10, 10, 5, 10, 10},
		{10, 12, 5, 10, 10},
		{10, -3, 4, 0, 4},
		{10, 4, -1, 4, 10},
		{0, 0, 5, 0, 0},
		{-1, 2, 2, 0, 0},
		{5, 0, 5, 0, 5},
	}

	for i, test := range tests {
		lo, hi := Window(test.n, test.start, test.size)
		if lo != test.lo || hi != test.hi {
			t.Errorf("case %d: want [%d, %d) got [%d, %d)", i, test.lo, test.hi, lo, hi)
		}
	}
}
