// Package rng provides the seeded, splittable random source used by every
// generation step. A Source is a plain value: copying it forks the stream and
// nothing in the module keeps a package-level generator.
package rng

import "math"

const (
	golden   uint64 = 0x9e3779b97f4a7c15
	mixMulA  uint64 = 0xbf58476d1ce4e5b9
	mixMulB  uint64 = 0x94d049bb133111eb
	splitKey uint64 = 0xd1b54a32d192ed03
)

// Source is a SplitMix64 generator.
type Source struct {
	state uint64
}

// New creates a Source from a 32-bit seed.
func New(seed uint32) Source {
	return Source{state: mix(uint64(seed) + golden)}
}

// FromState restores a Source from a previously captured State.
func FromState(state uint64) Source {
	return Source{state: state}
}

// State returns the internal state, suitable for FromState.
func (s Source) State() uint64 {
	return s.state
}

// Uint64 returns the next 64 bits of the stream.
func (s *Source) Uint64() uint64 {
	s.state += golden
	return mix(s.state)
}

// Split derives an independent Source and advances the receiver once.
// Calling Split twice on the same receiver yields two different streams.
func (s *Source) Split() Source {
	return Source{state: mix(s.Uint64() ^ splitKey)}
}

// Intn returns an integer in [lo, hi). It returns lo when hi <= lo.
func (s *Source) Intn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	span := uint64(hi - lo)
	return lo + int(s.Uint64()%span)
}

// Float64 returns a float in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Range returns a float in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Float64()*(hi-lo)
}

// Bool returns true with probability p.
func (s *Source) Bool(p float64) bool {
	return s.Float64() < p
}

// Perm returns a permutation of [0, n) using a Fisher-Yates shuffle.
func (s *Source) Perm(n int) []int {
	if n <= 0 {
		return nil
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := s.Intn(0, i+1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// Weighted picks an index with probability proportional to weights[i].
// The walk follows slice order, so equal weights resolve by position.
// Non-positive weights are never chosen unless every weight is non-positive,
// in which case the first index is returned. Returns -1 for an empty slice.
func (s *Source) Weighted(weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}

	roll := s.Float64() * total
	cumulative := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 || math.IsInf(w, 0) {
			continue
		}
		cumulative += w
		last = i
		if roll < cumulative {
			return i
		}
	}
	return last
}

// mix is the SplitMix64 finalizer.
func mix(x uint64) uint64 {
	x = (x ^ (x >> 30)) * mixMulA
	x = (x ^ (x >> 27)) * mixMulB
	return x ^ (x >> 31)
}
