// Package policy resolves how much of a world's rule set is randomized:
// which polarities each biome admits and which traversal capabilities exist.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/rng"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

var ErrUnknownMode = errors.New("policy: unknown randomization mode")

// Mode selects the randomization level.
type Mode string

const (
	None    Mode = "none"
	Partial Mode = "partial"
	Full    Mode = "full"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case None, Partial, Full:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Traversal is a bit mask of movement capabilities.
type Traversal uint8

const (
	TraversalWalk Traversal = 1 << iota
	TraversalClimb
	TraversalSwim
	TraversalGlide
	TraversalDash
	TraversalPhase
	TraversalGrapple
	TraversalBlink
)

var traversalNames = []string{"walk", "climb", "swim", "glide", "dash", "phase", "grapple", "blink"}

// Has reports whether every bit of c is present.
func (t Traversal) Has(c Traversal) bool {
	return t&c == c
}

// String lists the capabilities joined by '|'.
func (t Traversal) String() string {
	var parts []string
	for i, name := range traversalNames {
		if t&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CuratedTraversal is the hand-picked mask used when traversal is not randomized.
const CuratedTraversal = TraversalWalk | TraversalClimb

// Pool is the full set of polarities a biome can draw from, in draw order.
var Pool = []wfc.Polarity{"sun", "moon", "heat", "cold", "storm", "tide"}

// gateCapability maps a gating polarity to the capability that crosses it.
var gateCapability = map[wfc.Polarity]Traversal{
	"sun":   TraversalGlide,
	"moon":  TraversalPhase,
	"heat":  TraversalDash,
	"cold":  TraversalClimb,
	"storm": TraversalGrapple,
	"tide":  TraversalSwim,
}

// GateCapability returns the capability needed to cross a connection gated
// by p. Ungated and unknown polarities need only walking.
func GateCapability(p wfc.Polarity) Traversal {
	if c, ok := gateCapability[p]; ok {
		return c
	}
	return TraversalWalk
}

// curated is the hand-authored polarity table used by None mode.
var curated = map[biome.Type][]wfc.Polarity{
	"plains":  {"sun", "storm"},
	"forest":  {"moon", "tide"},
	"tundra":  {"moon", "cold"},
	"marsh":   {"storm", "tide"},
	"hazards": {"heat", "storm"},
	"desert":  {"sun", "heat"},
}

var curatedFallback = []wfc.Polarity{"sun", "moon"}

// Rules is a resolved randomization policy. Read-only once resolved.
type Rules struct {
	Mode       Mode                          `json:"mode" yaml:"mode"`
	Polarities map[biome.Type][]wfc.Polarity `json:"polarities" yaml:"polarities"`
	Traversal  Traversal                     `json:"traversal" yaml:"traversal"`
}

// Allows reports whether tiles of polarity p may appear in biome b.
// The wildcard polarity and biomes without an entry allow everything.
func (r *Rules) Allows(b biome.Type, p wfc.Polarity) bool {
	if p.IsNone() {
		return true
	}
	allowed, ok := r.Polarities[b]
	if !ok {
		return true
	}
	for _, a := range allowed {
		if a == p {
			return true
		}
	}
	return false
}

// CanCross reports whether the traversal mask covers a connection gated by p.
func (r *Rules) CanCross(p wfc.Polarity) bool {
	if p.IsNone() {
		return true
	}
	return r.Traversal.Has(GateCapability(p))
}

// Resolve builds the rules for the given biomes. Only src is consulted for
// randomness, so equal inputs give equal rules.
func Resolve(mode Mode, biomes []biome.Type, src *rng.Source) (Rules, error) {
	r := Rules{
		Mode:       mode,
		Polarities: make(map[biome.Type][]wfc.Polarity, len(biomes)),
		Traversal:  CuratedTraversal,
	}

	switch mode {
	case None:
		for _, b := range biomes {
			if p, ok := curated[b]; ok {
				r.Polarities[b] = append([]wfc.Polarity(nil), p...)
			} else {
				r.Polarities[b] = append([]wfc.Polarity(nil), curatedFallback...)
			}
		}
	case Partial:
		for _, b := range biomes {
			r.Polarities[b] = draw(src, 2, 3)
		}
	case Full:
		for _, b := range biomes {
			r.Polarities[b] = draw(src, 2, 5)
		}
		r.Traversal = TraversalWalk
		for bit := 1; bit < len(traversalNames); bit++ {
			if src.Bool(0.6) {
				r.Traversal |= 1 << bit
			}
		}
	default:
		return Rules{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return r, nil
}

// draw picks between lo and hi polarities (inclusive) from the pool without
// replacement and returns them in pool order.
func draw(src *rng.Source, lo, hi int) []wfc.Polarity {
	k := src.Intn(lo, hi+1)
	perm := src.Perm(len(Pool))[:k]
	sort.Ints(perm)

	out := make([]wfc.Polarity, k)
	for i, idx := range perm {
		out[i] = Pool[idx]
	}
	return out
}
