// Package worldgen runs a complete generation: seed, policy, layout, biome
// sampling, tile collapse and connection building.
package worldgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/layout"
	"github.com/lawnchairsociety/levelforge/internal/logger"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/rng"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

// restartSeedStride separates the seeds of successive restarts.
const restartSeedStride = 1000

// Observer receives progress from a Generator. Calls are made synchronously
// from the generating goroutine.
type Observer interface {
	RunStarted(seed uint32, attempt int)
	TickCompleted(seed uint32, report wfc.TickReport)
	RunFinished(summary Summary, err error)
}

// Generator produces level graphs from a world configuration.
type Generator struct {
	cfg       *config.WorldConfig
	lib       *wfc.Library
	mu        sync.RWMutex
	seed      uint32
	observers []Observer
}

// NewGenerator creates a generator. A nil library selects the built-in set.
func NewGenerator(cfg *config.WorldConfig, lib *wfc.Library) *Generator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if lib == nil {
		lib = wfc.DefaultLibrary()
	}
	return &Generator{
		cfg:  cfg,
		lib:  lib,
		seed: cfg.World.Seed,
	}
}

// LoadLibrary returns the tile library named by the config, or the built-in
// library when none is configured.
func LoadLibrary(cfg *config.WorldConfig) (*wfc.Library, error) {
	if cfg.World.TileLibrary == "" {
		return wfc.DefaultLibrary(), nil
	}
	return wfc.LoadLibrary(cfg.World.TileLibrary)
}

// AddObserver registers an observer for subsequent runs.
func (g *Generator) AddObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// CurrentSeed returns the seed the next run will start from.
func (g *Generator) CurrentSeed() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seed
}

// SetSeed changes the seed used by the next run.
func (g *Generator) SetSeed(seed uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = seed
}

// Library returns the tile library in use.
func (g *Generator) Library() *wfc.Library {
	return g.lib
}

func (g *Generator) snapshotObservers() []Observer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Observer(nil), g.observers...)
}

// Generate runs one generation. The configuration is validated before any
// tick executes. When a node ends in contradiction, or two linked nodes
// complete with incompatible tiles, the run is repeated with a perturbed seed
// up to MaxRestarts times; if every attempt fails the last result is returned
// together with an error wrapping wfc.ErrContradiction or wfc.ErrConflict.
// A cancelled context returns no result; observers still see RunFinished.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}

	observers := g.snapshotObservers()
	base := g.CurrentSeed()
	start := time.Now()

	var (
		res     *Result
		err     error
		attempt int
	)
	for attempt = 0; attempt <= g.cfg.Solver.MaxRestarts; attempt++ {
		seed := base + uint32(attempt*restartSeedStride)
		for _, o := range observers {
			o.RunStarted(seed, attempt)
		}

		res, err = g.attempt(ctx, seed, observers)
		if res == nil {
			for _, o := range observers {
				o.RunFinished(Summary{Seed: seed, Restarts: attempt, Elapsed: time.Since(start)}, err)
			}
			return nil, err
		}
		if !restartable(err) {
			break
		}
		if attempt < g.cfg.Solver.MaxRestarts {
			logger.Warning("unsolvable seed, restarting", "seed", seed, "attempt", attempt+1, "error", err)
		}
	}
	if attempt > g.cfg.Solver.MaxRestarts {
		attempt = g.cfg.Solver.MaxRestarts
	}

	res.Summary.Restarts = attempt
	res.Summary.Elapsed = time.Since(start)
	if err != nil {
		err = fmt.Errorf("seed %d: %w", res.Summary.Seed, err)
	}

	for _, o := range observers {
		o.RunFinished(res.Summary, err)
	}
	return res, err
}

func restartable(err error) bool {
	return errors.Is(err, wfc.ErrContradiction) || errors.Is(err, wfc.ErrConflict)
}

// attempt runs a single seed. It returns a nil result only for errors that
// leave nothing to inspect.
func (g *Generator) attempt(ctx context.Context, seed uint32, observers []Observer) (*Result, error) {
	log := logger.With("seed", seed)
	w := g.cfg.World
	s := g.cfg.Solver

	root := rng.New(seed)
	countSrc := root.Split()
	policySrc := root.Split()
	layoutSrc := root.Split()
	nodeSrc := root.Split()

	count := countSrc.Intn(w.NodeCountRange[0], w.NodeCountRange[1]+1)

	rules, err := policy.Resolve(w.RandomizationMode, w.Biomes, &policySrc)
	if err != nil {
		return nil, err
	}

	placement, err := layout.Place(layout.Config{
		Count:         count,
		Width:         w.Size[0],
		Height:        w.Size[1],
		MinSeparation: s.DistrictMinDistance,
		MaxAttempts:   s.PlacementAttempts,
		GridThreshold: s.GridThreshold,
	}, &layoutSrc)
	if err != nil {
		return nil, err
	}
	if len(placement.Degraded) > 0 {
		log.Warn("placement degraded", "nodes", placement.Degraded, "min_separation", placement.MinSeparation)
	}

	falloff, err := biome.ParseInterpolation(w.BiomeFalloff)
	if err != nil {
		return nil, err
	}
	sampler := biome.NewSampler(int64(seed), w.Biomes, w.BiomeScale, falloff)

	gr := graph.New(count)
	for _, pos := range placement.Positions {
		gr.AddNode(graph.Node{
			Level:       graph.LevelDistrict,
			ParentID:    graph.NoParent,
			Pos:         pos,
			LoopDensity: nodeSrc.Range(w.LoopDensityRange[0], w.LoopDensityRange[1]),
			Biome:       sampler.Sample(pos.X, pos.Y),
		})
	}
	adj := gr.Adjacency(s.MaxLinkDistance)

	inputs := make([]wfc.NodeInput, count)
	for i, n := range gr.Nodes {
		inputs[i] = wfc.NodeInput{
			Level:  n.Level,
			Biome:  n.Biome,
			Links:  adj[i],
			Source: nodeSrc.Split(),
		}
	}

	eval := wfc.NewEvaluator(g.lib, g.cfg.Constraints.Exclusions, g.cfg.Constraints.BiomeMismatchPenalty)
	engine, err := wfc.NewEngine(g.lib, eval, inputs, wfc.EngineConfig{
		ForceCollapseAfter: s.ForceCollapseAfter,
		MaxTicks:           s.MaxTicks,
		Workers:            s.Workers,
		Admit: func(node *wfc.NodeInput, tile *wfc.TilePrototype) bool {
			return wfc.DefaultAdmit(node, tile) && rules.Allows(node.Biome.Primary, tile.Polarity)
		},
		OnTick: func(r wfc.TickReport) {
			for _, o := range observers {
				o.TickCompleted(seed, r)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	runErr := engine.Run(ctx)
	if runErr != nil && ctx.Err() != nil {
		return nil, runErr
	}

	states := engine.States()
	built := buildConnections(gr, adj, states, eval, &rules)

	res := &Result{
		Graph:     gr,
		States:    states,
		Placement: placement,
		Rules:     rules,
		Library:   g.lib,
	}
	res.Summary = summarize(seed, res, engine.Ticks(), built)

	log.Debug("attempt finished",
		"nodes", res.Summary.Nodes,
		"ticks", res.Summary.Ticks,
		"completed", res.Summary.Completed,
		"contradictions", res.Summary.Contradictions)
	return res, runErr
}
