package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/lawnchairsociety/levelforge/internal/archive"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/feed"
	"github.com/lawnchairsociety/levelforge/internal/logger"
	"github.com/lawnchairsociety/levelforge/internal/metrics"
	"github.com/lawnchairsociety/levelforge/internal/runstore"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

// app wires the generator to its outputs.
type app struct {
	cfg     *config.WorldConfig
	gen     *worldgen.Generator
	store   *runstore.Store // nil when the run store is disabled
	sink    *archive.S3Sink // nil when no bucket is configured
	hub     *feed.Hub
	metrics *metrics.Recorder
	guard   worldgen.Guard
}

func newApp(ctx context.Context, cfg *config.WorldConfig) (*app, error) {
	lib, err := worldgen.LoadLibrary(cfg)
	if err != nil {
		return nil, fmt.Errorf("load tile library: %w", err)
	}
	logger.Info("Tile library loaded", "tiles", lib.Len(), "path", cfg.World.TileLibrary)

	a := &app{
		cfg:     cfg,
		gen:     worldgen.NewGenerator(cfg, lib),
		hub:     feed.NewHub(cfg.Serve),
		metrics: metrics.NewRecorder(),
	}
	a.gen.AddObserver(a.metrics)
	a.gen.AddObserver(a.hub)

	if cfg.Store.Enabled {
		a.store, err = runstore.Open(storeConfig(cfg.Store))
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		logger.Info("Run store opened", "driver", cfg.Store.Driver)
	}

	if s3 := cfg.Archive.S3; s3.Bucket != "" {
		a.sink, err = archive.NewS3Sink(ctx, archive.S3Config{
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			UsePathStyle:    s3.UsePathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create s3 sink: %w", err)
		}
		logger.Info("Snapshot upload enabled", "bucket", s3.Bucket, "prefix", s3.Prefix)
	}
	return a, nil
}

func storeConfig(sc config.StoreConfig) runstore.Config {
	return runstore.Config{
		Driver:     sc.Driver,
		SQLitePath: sc.SQLitePath,
		Postgres: runstore.PostgresConfig{
			Host:            sc.Postgres.Host,
			Port:            sc.Postgres.Port,
			User:            sc.Postgres.User,
			Password:        sc.Postgres.Password,
			Database:        sc.Postgres.Database,
			SSLMode:         sc.Postgres.SSLMode,
			MaxOpenConns:    sc.Postgres.MaxOpenConns,
			MaxIdleConns:    sc.Postgres.MaxIdleConns,
			ConnMaxLifetime: sc.Postgres.ConnMaxLifetime,
		},
	}
}

// runOnce generates a level from the generator's current seed and persists
// it. The returned error is the generation error; persistence failures are
// logged.
func (a *app) runOnce(ctx context.Context) (*worldgen.Result, archive.Saved, error) {
	res, err := a.gen.Generate(ctx)
	if res == nil {
		return nil, archive.Saved{}, err
	}

	s := res.Summary
	logger.Always("Level generated",
		"seed", s.Seed,
		"strategy", s.Strategy,
		"nodes", s.Nodes,
		"completed", s.Completed,
		"contradictions", s.Contradictions,
		"in_progress", s.InProgress,
		"forced", s.Forced,
		"ticks", s.Ticks,
		"connections", s.Connections,
		"restarts", s.Restarts,
		"elapsed", s.Elapsed,
		"digest", s.Digest)

	saved := a.persist(ctx, res, err)
	return res, saved, err
}

func (a *app) persist(ctx context.Context, res *worldgen.Result, genErr error) archive.Saved {
	doc := archive.FromResult(res, a.cfg.World.Size[0], a.cfg.World.Size[1])
	saved, err := archive.Save(ctx, doc, archive.Options{
		Dir:      a.cfg.Archive.Dir,
		YAML:     a.cfg.Archive.YAML,
		Snapshot: a.cfg.Archive.Snapshot,
		Sink:     a.sink,
	})
	if err != nil {
		logger.Error("Failed to archive level", "seed", doc.Seed, "error", err)
	}
	if saved.YAMLPath != "" || saved.SnapshotPath != "" || saved.ObjectKey != "" {
		logger.Info("Level archived",
			"yaml", saved.YAMLPath,
			"snapshot", saved.SnapshotPath,
			"object", saved.ObjectKey)
	}

	if a.store != nil {
		run := runstore.NewRun(res, genErr)
		switch err := a.store.RecordRun(ctx, run); {
		case errors.Is(err, runstore.ErrDuplicateRun):
			logger.Info("Run already recorded", "digest", run.Digest)
		case err != nil:
			logger.Error("Failed to record run", "seed", run.Seed, "error", err)
		default:
			logger.Debug("Run recorded", "id", run.ID)
		}
	}
	return saved
}

// Close releases the store and disconnects feed subscribers.
func (a *app) Close() {
	a.hub.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warning("Failed to close run store", "error", err)
		}
	}
}
