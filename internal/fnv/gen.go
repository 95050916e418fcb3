package fnv

const (
	offsetBasis64 = 0xCBF29CE484222325
	prime64       = 1099511628211
)

// Hash64 returns the FNV-1a hash of the little-endian bytes of vs.
func Hash64(vs ...uint64) uint64 {
	var hashVal uint64 = offsetBasis64
	for _, v := range vs {
		for i := 0; i < 8; i++ {
			hashVal ^= v & 0x00ff
			hashVal *= prime64
			v >>= 8
		}
	}
	return hashVal
}
