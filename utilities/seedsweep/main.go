package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

func main() {
	configPath := flag.String("config", "data/levelforge.yaml", "Path to generator config")
	seeds := flag.String("seeds", "", "Seed range to generate (e.g., 1000-1100 or 42)")
	workers := flag.Int("workers", 4, "Concurrent generations")
	outDir := flag.String("out", "", "Write a YAML export per seed to this directory (empty to skip)")
	flag.Parse()

	if *seeds == "" {
		fmt.Fprintln(os.Stderr, "Error: --seeds is required (e.g., --seeds=1000-1100 or --seeds=42)")
		flag.Usage()
		os.Exit(1)
	}

	first, last, err := parseSeedRange(*seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid seed range: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	lib, err := worldgen.LoadLibrary(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Generating seeds %d-%d (%s mode, %d workers)\n\n", first, last, cfg.World.RandomizationMode, *workers)

	sw := sweep{cfg: cfg, lib: lib, workers: *workers, outDir: *outDir}
	results, err := sw.run(ctx, first, last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Print(report(results))
}

// parseSeedRange parses a seed range string like "1000-1100" or "42".
func parseSeedRange(s string) (first, last uint32, err error) {
	parse := func(v, what string) (uint32, error) {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid %s seed: %w", what, err)
		}
		return uint32(n), nil
	}

	if strings.Contains(s, "-") {
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return 0, 0, fmt.Errorf("invalid range format, expected 'first-last'")
		}
		if first, err = parse(parts[0], "first"); err != nil {
			return 0, 0, err
		}
		if last, err = parse(parts[1], "last"); err != nil {
			return 0, 0, err
		}
	} else {
		if first, err = parse(s, "single"); err != nil {
			return 0, 0, err
		}
		last = first
	}

	if first == 0 {
		return 0, 0, fmt.Errorf("seed 0 selects a random seed and cannot be swept")
	}
	if last < first {
		return 0, 0, fmt.Errorf("last seed must be >= first seed")
	}
	return first, last, nil
}
