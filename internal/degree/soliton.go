// Package degree implements the seeded, reproducible degree distribution
// used to decide how many source blocks a fountain-encoder output symbol
// XORs together.
//
// The distribution is a Robust Soliton distribution, grounded on
// google-gofountain's util.go (robustSolitonDistribution / pickDegree) from
// the example pack: a cumulative distribution function over [1, K] built
// once per session and sampled per emission. Unlike the teacher package
// (which reseeds one shared *rand.Rand per call), Tightbeam derives a fresh,
// deterministic generator per emission from (seed, emissionIndex) via a
// splitmix64 mixing step, per spec.md's "route all randomness through a
// single explicit PRNG seeded from seed; no ambient random state" design
// note — no *rand.Rand is shared or mutated across goroutines.
package degree

import (
	"math"
	"math/rand"
	"sort"
)

// Params configures the Robust Soliton distribution. C and Delta follow the
// conventional RFC 5053 naming: a smaller Delta lowers the failure-probability
// bound and moves the spike M to a higher degree; C scales the "spike"
// location M.
type Params struct {
	C     float64
	Delta float64
}

// DefaultParams is a reasonable default: a small spike weight and a 50%
// slack parameter, which in practice biases heavily toward low degrees
// (accelerating early peeling) while retaining a long enough tail to cover
// the remaining source blocks.
func DefaultParams() Params {
	return Params{C: 0.1, Delta: 0.5}
}

// Sampler draws reproducible degrees in [1, K] for a fixed K.
type Sampler struct {
	k     int
	seed  int64
	cdf   []float64 // 1-based: cdf[d] is P(degree <= d)
	mMax  int
}

// NewSampler builds a Robust Soliton CDF for k source blocks.
// k must be >= 1.
func NewSampler(seed int64, k int, params Params) *Sampler {
	if k < 1 {
		k = 1
	}
	return &Sampler{
		k:    k,
		seed: seed,
		cdf:  robustSolitonCDF(k, params),
		mMax: k,
	}
}

// Draw returns a degree in [1, K] deterministic in (seed, emissionIndex).
func (s *Sampler) Draw(emissionIndex int64) int {
	r := rand.New(rand.NewSource(mix64(s.seed, emissionIndex)))
	d := pickDegree(r, s.cdf)
	if d < 1 {
		d = 1
	}
	if d > s.k {
		d = s.k
	}
	return d
}

// mix64 combines a session seed and an emission index into a single
// splitmix64-style stream seed, so each emission gets an independent,
// reproducible PRNG without sharing mutable generator state.
func mix64(seed, emissionIndex int64) int64 {
	z := uint64(seed) + uint64(emissionIndex)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z = z ^ (z >> 31)
	// Keep it non-zero and strictly positive so rand.NewSource behaves
	// predictably across platforms.
	v := int64(z & 0x7FFFFFFFFFFFFFFF)
	if v == 0 {
		v = 1
	}
	return v
}

// robustSolitonCDF builds the one-based CDF (index 1..n) for the Robust
// Soliton distribution with spike location m = c * ln(k/delta) * sqrt(k),
// clamped to [1, k].
func robustSolitonCDF(n int, params Params) []float64 {
	c, delta := params.C, params.Delta
	if c <= 0 {
		c = 0.1
	}
	if delta <= 0 || delta >= 1 {
		delta = 0.5
	}

	m := int(c * math.Log(float64(n)/delta) * math.Sqrt(float64(n)))
	if m < 1 {
		m = 1
	}
	if m > n {
		m = n
	}

	pdf := make([]float64, n+1)
	pdf[1] = 1/float64(n) + 1/float64(m)
	total := pdf[1]
	for i := 2; i <= n; i++ {
		pdf[i] = 1 / (float64(i) * float64(i-1))
		if i < m {
			pdf[i] += 1 / (float64(i) * float64(m))
		}
		if i == m {
			pdf[i] += math.Log(float64(n)/(float64(m)*delta)) / float64(m)
		}
		total += pdf[i]
	}

	cdf := make([]float64, n+1)
	for i := 1; i <= n; i++ {
		pdf[i] /= total
		cdf[i] = cdf[i-1] + pdf[i]
	}
	return cdf
}

// pickDegree returns the smallest index i such that cdf[i] > r for a draw
// r uniform in [0, 1). cdf must be ascending and 1-based (cdf[0] == 0).
func pickDegree(r *rand.Rand, cdf []float64) int {
	x := r.Float64()
	i := sort.SearchFloat64s(cdf, x)
	if i < len(cdf) && i > 0 && cdf[i] > x {
		return i
	}
	if i < len(cdf)-1 {
		return i + 1
	}
	return len(cdf) - 1
}
