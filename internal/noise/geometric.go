// Package noise draws the random counts used for cover traffic.
//
// The sampler follows google/differential-privacy's laplace noise code: a
// geometric sample is found by binary search over (0, MaxInt64] driven by a
// uniform source, by default the library's cryptographically secure one.
package noise

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/differential-privacy/go/v2/rand"
)

// ErrInvalidLambda is returned for a non-positive or non-finite parameter.
var ErrInvalidLambda = errors.New("lambda must be a positive finite number")

// Source supplies the randomness a sampler consumes.
type Source interface {
	// Uniform returns a value uniformly distributed in (0, 1].
	Uniform() float64
	// Sign returns -1 or 1 with equal probability.
	Sign() int
}

type dpSource struct{}

func (dpSource) Uniform() float64 { return rand.Uniform() }
func (dpSource) Sign() int        { return int(rand.Sign()) }

// IntSource adapts a generator of bounded integers, such as a seeded
// *rand.Rand from math/rand/v2, into a Source.
type IntSource struct {
	IntN func(n int) int
}

const uniformSteps = 1 << 30

// Uniform returns a multiple of 2^-30 in (0, 1].
func (s IntSource) Uniform() float64 {
	return float64(s.IntN(uniformSteps)+1) / uniformSteps
}

// Sign returns -1 or 1.
func (s IntSource) Sign() int {
	if s.IntN(2) == 0 {
		return -1
	}
	return 1
}

// Option configures a Geometric.
type Option func(*Geometric)

// WithSource draws from src instead of the library's secure source.
func WithSource(src Source) Option {
	return func(g *Geometric) { g.src = src }
}

// Geometric samples from a two-sided geometric distribution with parameter
// p = 1 - e^-λ. Smaller λ gives wider samples.
type Geometric struct {
	lambda float64
	src    Source
}

// NewGeometric returns a sampler for the given λ.
func NewGeometric(lambda float64, opts ...Option) (*Geometric, error) {
	if !(lambda > 0) || math.IsInf(lambda, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLambda, lambda)
	}
	g := &Geometric{lambda: lambda, src: dpSource{}}
	for _, opt := range opts {
		opt(g)
	}
	if g.src == nil {
		g.src = dpSource{}
	}
	return g, nil
}

// Lambda returns the distribution parameter.
func (g *Geometric) Lambda() float64 {
	return g.lambda
}

// oneSided returns the number of Bernoulli trials up to and including the
// first success, truncated to MaxInt64.
func (g *Geometric) oneSided() int64 {
	if g.src.Uniform() > -math.Expm1(-g.lambda*math.MaxInt64) {
		return math.MaxInt64
	}

	var lo int64 = 0             // exclusive
	var hi int64 = math.MaxInt64 // inclusive
	for lo+1 < hi {
		// Split so both halves carry about the same probability mass.
		mid := lo - int64(math.Floor((math.Log(0.5)+math.Log1p(math.Exp(g.lambda*float64(lo-hi))))/g.lambda))
		if mid <= lo {
			mid = lo + 1
		} else if mid >= hi {
			mid = hi - 1
		}

		// Pr[X <= mid | lo < X <= hi]
		q := math.Expm1(g.lambda*float64(lo-mid)) / math.Expm1(g.lambda*float64(lo-hi))
		if g.src.Uniform() <= q {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// TwoSided returns a sample mirrored at zero.
func (g *Geometric) TwoSided() int64 {
	var sample int64
	var sign int64 = -1
	// Zero is only kept with a positive sign, otherwise it would be drawn twice
	// as often as it should.
	for sample == 0 && sign == -1 {
		sample = g.oneSided() - 1
		sign = int64(g.src.Sign())
	}
	return sample * sign
}

// Magnitude returns |TwoSided()| capped at max. A negative max is treated
// as zero.
func (g *Geometric) Magnitude(max int) int {
	if max <= 0 {
		return 0
	}
	s := g.TwoSided()
	if s < 0 {
		s = -s
	}
	if s > int64(max) {
		return max
	}
	return int(s)
}
