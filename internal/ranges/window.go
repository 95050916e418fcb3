package ranges

// Window clamps the half-open range [start, start+size) to [0, n).
// A non-positive size extends the window to n.
func Window(n, start, size int) (lo, hi int) {
	if n <= 0 {
		return 0, 0
	}
	lo = start
	if lo < 0 {
		lo = 0
	}
	if lo > n {
		lo = n
	}
	hi = n
	if size > 0 && size < n-lo {
		hi = lo + size
	}
	return lo, hi
}
