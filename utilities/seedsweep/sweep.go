package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lawnchairsociety/levelforge/internal/archive"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/metrics"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

// seedResult is the outcome of generating one seed.
type seedResult struct {
	Seed    uint32
	Outcome string
	Summary worldgen.Summary
	Path    string
	Err     error
}

func (r seedResult) String() string {
	if r.Summary.Nodes == 0 && r.Err != nil {
		return fmt.Sprintf("seed %-10d %-12s %v", r.Seed, r.Outcome, r.Err)
	}
	s := r.Summary
	line := fmt.Sprintf("seed %-10d %-12s nodes:%-3d done:%-3d contra:%-3d forced:%-3d ticks:%-4d restarts:%d",
		r.Seed, r.Outcome, s.Nodes, s.Completed, s.Contradictions, s.Forced, s.Ticks, s.Restarts)
	if r.Path != "" {
		line += "  -> " + r.Path
	}
	return line
}

// sweep generates a range of seeds with a shared config and library.
type sweep struct {
	cfg     *config.WorldConfig
	lib     *wfc.Library
	workers int
	outDir  string
}

// run generates every seed in [first, last]. Per-seed generation failures
// are reported in the results; only cancellation and export failures abort
// the sweep. Results are ordered by seed.
func (sw sweep) run(ctx context.Context, first, last uint32) ([]seedResult, error) {
	results := make([]seedResult, int(last-first)+1)

	g, gctx := errgroup.WithContext(ctx)
	if sw.workers > 0 {
		g.SetLimit(sw.workers)
	}

	for i := range results {
		seed := first + uint32(i)
		g.Go(func() error {
			r, err := sw.one(gctx, seed)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (sw sweep) one(ctx context.Context, seed uint32) (seedResult, error) {
	gen := worldgen.NewGenerator(sw.cfg, sw.lib)
	gen.SetSeed(seed)

	res, err := gen.Generate(ctx)
	r := seedResult{Seed: seed, Outcome: metrics.Outcome(err), Err: err}
	if res == nil {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}
		return r, nil
	}
	r.Summary = res.Summary

	if sw.outDir != "" {
		doc := archive.FromResult(res, sw.cfg.World.Size[0], sw.cfg.World.Size[1])
		path := filepath.Join(sw.outDir, archive.LevelName(&doc))
		if err := archive.WriteYAML(path, doc); err != nil {
			return r, fmt.Errorf("seed %d: %w", seed, err)
		}
		r.Path = path
	}
	return r, nil
}

// report tallies outcomes across a sweep.
func report(results []seedResult) string {
	counts := make(map[string]int)
	var forced, restarts int
	for _, r := range results {
		counts[r.Outcome]++
		forced += r.Summary.Forced
		restarts += r.Summary.Restarts
	}

	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Seeds: %d\n", len(results))
	for _, outcome := range []string{
		metrics.OutcomeOK,
		metrics.OutcomeContradiction,
		metrics.OutcomeConflict,
		metrics.OutcomeTickBudget,
		metrics.OutcomeError,
	} {
		if n := counts[outcome]; n > 0 {
			fmt.Fprintf(&b, "  %-14s %d (%.1f%%)\n", outcome, n, 100*float64(n)/float64(len(results)))
		}
	}
	fmt.Fprintf(&b, "Forced collapses: %d\n", forced)
	fmt.Fprintf(&b, "Restarts: %d\n", restarts)
	return b.String()
}
