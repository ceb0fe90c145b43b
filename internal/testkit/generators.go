package testkit

import (
	"math/rand"
	"time"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// ImageBytes generates a highly compressible byte slice shaped like the
// flat regions of a medical scan, with a sprinkle of noise so two calls
// differ.
func ImageBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	pattern := []byte{0x00, 0x00, 0x10, 0x10, 0x20, 0x20, 0x10, 0x10}
	for i := range b {
		b[i] = pattern[i%len(pattern)]
	}
	for i := 0; i < length/1024+1; i++ {
		b[r.Intn(length)] = byte(r.Intn(256))
	}
	return b
}

// FeatureVector generates n features in plausible clinical ranges.
func FeatureVector(r *rand.Rand, n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = float64(r.Intn(200)) + float64(r.Intn(100))/100
	}
	return f
}
