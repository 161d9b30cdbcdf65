package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/archive"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/runstore"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

func testConfig(t *testing.T) *config.WorldConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.World.Seed = 2024
	cfg.World.Size = [2]int{14, 14}
	cfg.World.NodeCountRange = [2]int{6, 6}
	cfg.Solver.MaxTicks = 80
	cfg.Archive.Dir = filepath.Join(dir, "out")
	cfg.Store.Enabled = true
	cfg.Store.SQLitePath = filepath.Join(dir, "runs.db")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.WorldConfig) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name    string
		o       overrides
		check   func(*config.WorldConfig) bool
		wantErr bool
	}{
		{"empty keeps config", overrides{}, func(c *config.WorldConfig) bool { return c.World.Seed == 12345 }, false},
		{"seed", overrides{seed: 7}, func(c *config.WorldConfig) bool { return c.World.Seed == 7 }, false},
		{"seed too large", overrides{seed: 1 << 33}, nil, true},
		{"mode", overrides{mode: "FULL"}, func(c *config.WorldConfig) bool { return c.World.RandomizationMode == policy.Full }, false},
		{"bad mode", overrides{mode: "chaos"}, nil, true},
		{"library", overrides{library: "tiles.yaml"}, func(c *config.WorldConfig) bool { return c.World.TileLibrary == "tiles.yaml" }, false},
		{"out dir", overrides{outDir: "levels"}, func(c *config.WorldConfig) bool { return c.Archive.Dir == "levels" }, false},
		{"addr", overrides{addr: ":9999"}, func(c *config.WorldConfig) bool { return c.Serve.Addr == ":9999" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := applyOverrides(cfg, tt.o)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyOverrides() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("applyOverrides() did not apply %+v", tt.o)
			}
		})
	}
}

func TestRunOncePersists(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	res, saved, _ := a.runOnce(context.Background())
	if res == nil {
		t.Fatal("runOnce() returned no result")
	}

	for _, p := range []string{saved.YAMLPath, saved.SnapshotPath} {
		if p == "" {
			t.Fatalf("Saved = %+v, want YAML and snapshot paths", saved)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("output %s missing: %v", p, err)
		}
	}

	doc, err := archive.ReadYAML(saved.YAMLPath)
	if err != nil {
		t.Fatalf("ReadYAML() error = %v", err)
	}
	if doc.Digest != res.Summary.Digest {
		t.Errorf("exported digest = %q, want %q", doc.Digest, res.Summary.Digest)
	}

	runs, err := a.store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Digest != res.Summary.Digest {
		t.Fatalf("ListRuns() = %+v, want the generated run", runs)
	}

	// Same seed, same digest: the second record is a duplicate and is skipped.
	a.runOnce(context.Background())
	runs, _ = a.store.ListRuns(context.Background(), 0)
	if len(runs) != 1 {
		t.Errorf("len(ListRuns()) = %d after rerun, want 1", len(runs))
	}
}

func TestRegenerateEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	srv := httptest.NewServer(a.routes(context.Background()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/regenerate")
	if err != nil {
		t.Fatalf("GET /regenerate error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /regenerate status = %d, want 405", resp.StatusCode)
	}

	resp, err = srv.Client().Post(srv.URL+"/regenerate?seed=abc", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad seed status = %d, want 400", resp.StatusCode)
	}

	// A held guard means a run is in flight.
	a.guard.TryAcquire()
	resp, err = srv.Client().Post(srv.URL+"/regenerate", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", resp.StatusCode)
	}
	a.guard.Release()

	resp, err = srv.Client().Post(srv.URL+"/regenerate?seed=31337", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	var body regenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || body.Seed != 31337 {
		t.Errorf("POST /regenerate = %d %+v, want 202 seed 31337", resp.StatusCode, body)
	}

	deadline := time.Now().Add(10 * time.Second)
	for a.guard.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("regeneration did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	runs, err := a.store.RunsForSeed(context.Background(), 31337)
	if err != nil {
		t.Fatalf("RunsForSeed() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("RunsForSeed(31337) = %d runs, want 1", len(runs))
	}
}

func TestRegenerateExplicitZeroSeed(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	srv := httptest.NewServer(a.routes(context.Background()))
	defer srv.Close()

	wait := func() {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for a.guard.Busy() {
			if time.Now().After(deadline) {
				t.Fatal("regeneration did not finish")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	resp, err := srv.Client().Post(srv.URL+"/regenerate?seed=", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty seed status = %d, want 400", resp.StatusCode)
	}

	resp, err = srv.Client().Post(srv.URL+"/regenerate?seed=0", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	var body regenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || body.Seed != 0 {
		t.Errorf("POST /regenerate?seed=0 = %d %+v, want 202 seed 0", resp.StatusCode, body)
	}
	wait()
	if got := a.gen.CurrentSeed(); got != 0 {
		t.Errorf("CurrentSeed() = %d after seed=0, want 0", got)
	}

	// No parameter keeps the seed that is already set.
	resp, err = srv.Client().Post(srv.URL+"/regenerate", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	body = regenerateResponse{Seed: 99}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	if body.Seed != 0 {
		t.Errorf("POST /regenerate seed = %d, want the current seed 0", body.Seed)
	}
	wait()
}

func TestRunsEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	if res, _, _ := a.runOnce(context.Background()); res == nil {
		t.Fatal("runOnce() returned no result")
	}
	srv := httptest.NewServer(a.routes(context.Background()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/runs?limit=5")
	if err != nil {
		t.Fatalf("GET /runs error = %v", err)
	}
	var runs []runstore.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	resp.Body.Close()
	if len(runs) != 1 {
		t.Fatalf("GET /runs returned %d runs, want 1", len(runs))
	}

	resp, err = srv.Client().Get(srv.URL + "/runs?id=" + strconv.FormatInt(runs[0].ID, 10))
	if err != nil {
		t.Fatalf("GET /runs?id error = %v", err)
	}
	var run runstore.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	resp.Body.Close()
	if len(run.Assignments) != 6 {
		t.Errorf("run has %d assignments, want 6", len(run.Assignments))
	}

	tests := []struct {
		path string
		want int
	}{
		{"/runs?id=999", http.StatusNotFound},
		{"/runs?id=x", http.StatusBadRequest},
		{"/runs?limit=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := srv.Client().Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s error = %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestRunsEndpointWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false
	a := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	a.handleRuns(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	rec := httptest.NewRecorder()
	a.routes(context.Background()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["seed"] != float64(2024) || body["busy"] != false {
		t.Errorf("healthz = %v", body)
	}
}

func TestExitCode(t *testing.T) {
	partial := &worldgen.Result{}
	tests := []struct {
		name string
		res  *worldgen.Result
		err  error
		want int
	}{
		{"success", partial, nil, 0},
		{"contradiction", partial, fmt.Errorf("seed 1: %w: node 2", wfc.ErrContradiction), 3},
		{"conflict", partial, fmt.Errorf("seed 1: %w: nodes 0 and 1", wfc.ErrConflict), 3},
		{"tick budget", partial, fmt.Errorf("seed 1: %w", wfc.ErrTickBudget), 3},
		{"no result", nil, errors.New("bad config"), 1},
		{"export failure", partial, errors.New("export: disk full"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.res, tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
