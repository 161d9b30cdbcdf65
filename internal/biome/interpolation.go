package biome

import "fmt"

// Interpolation shapes a normalized value in [0,1].
type Interpolation string

const (
	Linear   Interpolation = "linear"
	EaseIn   Interpolation = "ease_in"
	EaseOut  Interpolation = "ease_out"
	Constant Interpolation = "constant"
)

// ParseInterpolation validates a configured interpolation name.
// An empty name selects Linear.
func ParseInterpolation(name string) (Interpolation, error) {
	switch Interpolation(name) {
	case "":
		return Linear, nil
	case Linear, EaseIn, EaseOut, Constant:
		return Interpolation(name), nil
	default:
		return "", fmt.Errorf("unknown interpolation %q", name)
	}
}

// Apply maps t (clamped to [0,1]) through the curve.
func (i Interpolation) Apply(t float64) float64 {
	t = clamp01(t)
	switch i {
	case EaseIn:
		return t * t
	case EaseOut:
		return 1 - (1-t)*(1-t)
	case Constant:
		return 1
	default:
		return t
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
