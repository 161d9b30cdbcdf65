// Package biome describes the biome field attached to every generated node
// and samples it from seeded noise.
package biome

// Type names a biome. Biomes are configuration driven, so any string is valid.
type Type string

// Any matches every biome when used on a tile prototype.
const Any Type = "any"

// minAffinity keeps every weight positive so a forced collapse can always pick.
const minAffinity = 0.05

// Field is the biome influence at a node. It biases tile weights during
// collapse and is never modified by the solver.
type Field struct {
	Primary   Type    `yaml:"primary" json:"primary"`
	Secondary Type    `yaml:"secondary" json:"secondary"`
	Strength  float64 `yaml:"strength" json:"strength"` // 0-1, how dominant Primary is
	Gradient  float64 `yaml:"gradient" json:"gradient"` // 0-1, blend toward Secondary
}

// Matches reports whether a tile of biome b is admissible in this field.
// An empty field admits everything.
func (f Field) Matches(b Type) bool {
	if b == Any || b == "" || f.Primary == "" {
		return true
	}
	return b == f.Primary || b == f.Secondary
}

// Affinity returns a weight multiplier for a tile of biome b.
func (f Field) Affinity(b Type) float64 {
	var a float64
	switch {
	case b == Any || b == "" || f.Primary == "":
		a = 1
	case b == f.Primary:
		a = 1
	case b == f.Secondary:
		a = f.Gradient
	default:
		a = 1 - f.Strength
	}
	if a < minAffinity {
		return minAffinity
	}
	return a
}
