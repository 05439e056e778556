// Package vectorstore holds the vector math and encoding shared by the store backends.
package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Dot returns the inner product of a and b over their common prefix.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 { return math.Sqrt(Dot(v, v)) }

// Cosine returns the cosine similarity of a and b. Vectors of different length
// or with zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return CosineWithMagnitudes(a, Magnitude(a), b, Magnitude(b))
}

// CosineWithMagnitudes is Cosine with precomputed norms.
func CosineWithMagnitudes(a []float32, am float64, b []float32, bm float64) float64 {
	if am == 0 || bm == 0 {
		return 0
	}
	s := Dot(a, b) / (am * bm)
	if math.IsNaN(s) {
		return 0
	}
	// clamp rounding drift so identical vectors never exceed 1
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}

// EncodeVector encodes v as little-endian IEEE 754 float32 values without a
// length prefix.
func EncodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeVector decodes a BLOB produced by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vectorstore: invalid vector blob length %d (not multiple of 4)", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
