package l3embed

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 − cos(a, b) in [0, 2]. Vectors of different
// lengths indicate a collaborator wiring bug, not bad data, and panic.
// A zero-norm vector carries no appearance evidence and yields the maximum
// useful distance of 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("l3embed: embedding length mismatch: %d vs %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left
// untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
