package biome

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// DefaultScale is the noise frequency used when a sampler is built with scale <= 0.
const DefaultScale = 0.08

// Sampler derives a Field for any grid coordinate from two noise layers:
// one picks the biome band, the other the gradient toward the neighbouring band.
type Sampler struct {
	biomes   []Type
	scale    float64
	falloff  Interpolation
	band     opensimplex.Noise
	gradient opensimplex.Noise
}

// NewSampler creates a sampler over the given biome bands (in order).
func NewSampler(seed int64, biomes []Type, scale float64, falloff Interpolation) *Sampler {
	if scale <= 0 {
		scale = DefaultScale
	}
	if falloff == "" {
		falloff = Linear
	}
	bands := make([]Type, len(biomes))
	copy(bands, biomes)

	return &Sampler{
		biomes:   bands,
		scale:    scale,
		falloff:  falloff,
		band:     opensimplex.NewNormalized(seed),
		gradient: opensimplex.NewNormalized(seed + 1),
	}
}

// Sample returns the field at (x, y).
func (s *Sampler) Sample(x, y int) Field {
	n := len(s.biomes)
	if n == 0 {
		return Field{}
	}

	fx, fy := float64(x)*s.scale, float64(y)*s.scale
	grad := clamp01(octave(s.gradient, fx, fy, 2, 0.5))

	if n == 1 {
		return Field{
			Primary:   s.biomes[0],
			Secondary: s.biomes[0],
			Strength:  s.falloff.Apply(1),
			Gradient:  grad,
		}
	}

	v := clamp01(octave(s.band, fx, fy, 3, 0.5)) * float64(n)
	idx := int(v)
	if idx >= n {
		idx = n - 1
	}
	frac := v - float64(idx)

	// Secondary is the band we are closest to crossing into.
	sec := idx + 1
	if frac < 0.5 {
		sec = idx - 1
	}
	if sec < 0 {
		sec = 1
	}
	if sec >= n {
		sec = n - 2
	}

	edge := frac
	if 1-frac < edge {
		edge = 1 - frac
	}

	return Field{
		Primary:   s.biomes[idx],
		Secondary: s.biomes[sec],
		Strength:  s.falloff.Apply(edge * 2),
		Gradient:  grad,
	}
}

// octave sums several noise octaves and renormalizes to [0,1].
func octave(noise opensimplex.Noise, x, y float64, octaves int, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	frequency := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
