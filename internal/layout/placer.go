// Package layout scatters district positions over a bounded integer grid.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/rng"
)

var ErrInvalidConfig = errors.New("layout: invalid configuration")

const (
	DefaultMaxAttempts   = 30
	DefaultGridThreshold = 16

	// separationFactor derives the minimum separation from the smaller world side.
	separationFactor = 0.2
	jitterFactor     = 0.3
)

// Strategy names the placement algorithm used.
type Strategy string

const (
	StrategyPoissonDisc  Strategy = "poisson_disc"
	StrategyJitteredGrid Strategy = "jittered_grid"
)

// Config contains parameters for district placement
type Config struct {
	Count         int
	Width         int
	Height        int
	MinSeparation float64 // <= 0 derives min(Width, Height) * 0.2
	MaxAttempts   int     // 0 selects DefaultMaxAttempts
	GridThreshold int     // 0 selects DefaultGridThreshold
}

// Placement is the output of Place. Positions are index-aligned with node ids.
type Placement struct {
	Strategy      Strategy
	Positions     []graph.Coord
	Degraded      []int
	MinSeparation float64
}

// IsDegraded reports whether node i was accepted without meeting the
// separation constraint.
func (p *Placement) IsDegraded(i int) bool {
	for _, d := range p.Degraded {
		if d == i {
			return true
		}
	}
	return false
}

func (c Config) withDefaults() (Config, error) {
	if c.Count < 0 {
		return c, fmt.Errorf("%w: negative count %d", ErrInvalidConfig, c.Count)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return c, fmt.Errorf("%w: bounds %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.MaxAttempts < 0 {
		return c, fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.GridThreshold < 0 {
		return c, fmt.Errorf("%w: grid threshold %d", ErrInvalidConfig, c.GridThreshold)
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.GridThreshold == 0 {
		c.GridThreshold = DefaultGridThreshold
	}
	if c.MinSeparation <= 0 {
		c.MinSeparation = float64(min(c.Width, c.Height)) * separationFactor
	}
	return c, nil
}

// Place positions cfg.Count nodes. Counts above the grid threshold use a
// jittered grid, smaller counts use Poisson-disc rejection sampling. The
// source is advanced; identical inputs give identical placements.
func Place(cfg Config, src *rng.Source) (Placement, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return Placement{}, err
	}

	if cfg.Count > cfg.GridThreshold {
		return jitteredGrid(cfg, src), nil
	}
	return poissonDisc(cfg, src), nil
}

// poissonDisc accepts the first candidate that keeps MinSeparation to every
// placed node. After MaxAttempts misses the last candidate is kept and the
// node is flagged as degraded.
func poissonDisc(cfg Config, src *rng.Source) Placement {
	p := Placement{
		Strategy:      StrategyPoissonDisc,
		Positions:     make([]graph.Coord, 0, cfg.Count),
		MinSeparation: cfg.MinSeparation,
	}

	minSq := cfg.MinSeparation * cfg.MinSeparation
	for i := 0; i < cfg.Count; i++ {
		var cand graph.Coord
		accepted := false
		for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
			cand = graph.Coord{X: src.Intn(0, cfg.Width), Y: src.Intn(0, cfg.Height)}
			if farEnough(cand, p.Positions, minSq) {
				accepted = true
				break
			}
		}
		if !accepted {
			p.Degraded = append(p.Degraded, i)
		}
		p.Positions = append(p.Positions, cand)
	}
	return p
}

func farEnough(c graph.Coord, placed []graph.Coord, minSq float64) bool {
	for _, o := range placed {
		if float64(c.Dist2(o)) < minSq {
			return false
		}
	}
	return true
}

// jitteredGrid puts node i in cell (i % dim, i / dim) of a dim x dim grid,
// offset from the cell centre by up to 30% of the cell size on each axis.
func jitteredGrid(cfg Config, src *rng.Source) Placement {
	dim := int(math.Ceil(math.Sqrt(float64(cfg.Count))))
	cellW := float64(cfg.Width) / float64(dim)
	cellH := float64(cfg.Height) / float64(dim)

	p := Placement{
		Strategy:      StrategyJitteredGrid,
		Positions:     make([]graph.Coord, cfg.Count),
		MinSeparation: cfg.MinSeparation,
	}
	for i := 0; i < cfg.Count; i++ {
		cx := (float64(i%dim) + 0.5) * cellW
		cy := (float64(i/dim) + 0.5) * cellH
		cx += src.Range(-jitterFactor*cellW, jitterFactor*cellW)
		cy += src.Range(-jitterFactor*cellH, jitterFactor*cellH)

		p.Positions[i] = graph.Coord{
			X: clamp(int(math.Floor(cx)), 0, cfg.Width-1),
			Y: clamp(int(math.Floor(cy)), 0, cfg.Height-1),
		}
	}
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
