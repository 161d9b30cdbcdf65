package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/logger"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

// overrides are command-line values applied on top of the config file.
type overrides struct {
	seed       uint64
	randomSeed bool
	mode       string
	library    string
	outDir     string
	addr       string
}

func main() {
	configFile := flag.String("config", "data/levelforge.yaml", "Path to world config YAML file")
	loggingConfig := flag.String("logging", "", "Path to logging config YAML file (default: the world config file)")
	seed := flag.Uint64("seed", 0, "World seed (default: the config file's seed)")
	randomSeed := flag.Bool("random", false, "Pick a seed from the current time")
	mode := flag.String("mode", "", "Randomization mode: none, partial or full")
	library := flag.String("library", "", "Path to a tile library YAML file")
	outDir := flag.String("out", "", "Directory for exported levels")
	serve := flag.Bool("serve", false, "Serve the live feed, metrics and regenerate endpoint instead of exiting")
	addr := flag.String("addr", "", "Listen address in serve mode")
	flag.Parse()

	// Initialize logger first (before any logging)
	logPath := *loggingConfig
	if logPath == "" {
		logPath = *configFile
	}
	logConfig, err := logger.LoadConfig(logPath)
	if err != nil {
		log.Printf("Logging config ignored: %v", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configFile, err)
	}
	if err := applyOverrides(cfg, overrides{
		seed:       *seed,
		randomSeed: *randomSeed,
		mode:       *mode,
		library:    *library,
		outDir:     *outDir,
		addr:       *addr,
	}); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.Info("World config loaded",
		"path", *configFile,
		"seed", cfg.World.Seed,
		"mode", cfg.World.RandomizationMode,
		"size", cfg.World.Size)

	os.Exit(run(cfg, *serve))
}

// run generates once or serves until interrupted, returning the exit code.
func run(cfg *config.WorldConfig, serve bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return 1
	}
	defer a.Close()

	if serve {
		if err := a.serve(ctx); err != nil {
			logger.Error("Server error", "error", err)
			return 1
		}
		return 0
	}

	res, _, err := a.runOnce(ctx)
	code := exitCode(res, err)
	if code == 1 {
		logger.Error("Generation failed", "error", err)
	}
	return code
}

// exitCode maps a generation outcome to the process exit status. A run that
// produced a partial level exits 3.
func exitCode(res *worldgen.Result, err error) int {
	switch {
	case res == nil && err != nil:
		return 1
	case errors.Is(err, wfc.ErrContradiction), errors.Is(err, wfc.ErrConflict), errors.Is(err, wfc.ErrTickBudget):
		// The partial level was still exported and recorded.
		return 3
	case err != nil:
		return 1
	}
	return 0
}

// applyOverrides writes flag values into cfg.
func applyOverrides(cfg *config.WorldConfig, o overrides) error {
	switch {
	case o.randomSeed:
		cfg.World.Seed = uint32(time.Now().UnixNano())
	case o.seed != 0:
		if o.seed > 1<<32-1 {
			return fmt.Errorf("seed %d does not fit in 32 bits", o.seed)
		}
		cfg.World.Seed = uint32(o.seed)
	}
	if o.mode != "" {
		m, err := policy.ParseMode(o.mode)
		if err != nil {
			return err
		}
		cfg.World.RandomizationMode = m
	}
	if o.library != "" {
		cfg.World.TileLibrary = o.library
	}
	if o.outDir != "" {
		cfg.Archive.Dir = o.outDir
	}
	if o.addr != "" {
		cfg.Serve.Addr = o.addr
	}
	return nil
}
