package worldgen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

func smallWorld() *config.WorldConfig {
	cfg := config.DefaultConfig()
	cfg.World.Seed = 12345
	cfg.World.Size = [2]int{15, 15}
	cfg.World.NodeCountRange = [2]int{9, 9}
	cfg.World.RandomizationMode = policy.Partial
	cfg.Solver.MaxTicks = 150
	return cfg
}

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	seeds    []uint32
	attempts []int
	ticks    []wfc.TickReport
	finished []Summary
	errs     []error
}

func (r *recorder) RunStarted(seed uint32, attempt int) {
	r.seeds = append(r.seeds, seed)
	r.attempts = append(r.attempts, attempt)
}

func (r *recorder) TickCompleted(_ uint32, report wfc.TickReport) {
	r.ticks = append(r.ticks, report)
}

func (r *recorder) RunFinished(summary Summary, err error) {
	r.finished = append(r.finished, summary)
	r.errs = append(r.errs, err)
}

func TestGenerateEndToEnd(t *testing.T) {
	run := func() (*Result, error) {
		return NewGenerator(smallWorld(), wfc.DefaultLibrary()).Generate(context.Background())
	}

	first, err := run()
	if err != nil && !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v, want nil or ErrContradiction", err)
	}
	if first == nil {
		t.Fatal("Generate() returned no result")
	}

	s := first.Summary
	if s.Nodes != 9 {
		t.Errorf("Nodes = %d, want 9", s.Nodes)
	}
	if s.Ticks > 150 {
		t.Errorf("Ticks = %d, want <= 150", s.Ticks)
	}
	if err == nil && s.Completed != 9 {
		t.Errorf("Completed = %d with no error, want 9", s.Completed)
	}
	if err != nil && s.Contradictions == 0 {
		t.Error("contradiction error reported without a contradicted node")
	}

	for i, st := range first.States {
		if st.Entropy != len(st.Candidates) {
			t.Errorf("node %d: Entropy = %d, len(Candidates) = %d", i, st.Entropy, len(st.Candidates))
		}
		if st.Phase == wfc.Completed && (len(st.Candidates) != 1 || st.Assigned != st.Candidates[0]) {
			t.Errorf("node %d: completed state %+v is inconsistent", i, st)
		}
	}
	for _, n := range first.Graph.Nodes {
		if n.Pos.X < 0 || n.Pos.X >= 15 || n.Pos.Y < 0 || n.Pos.Y >= 15 {
			t.Errorf("node %d at %v is out of bounds", n.ID, n.Pos)
		}
	}

	second, err2 := run()
	if (err == nil) != (err2 == nil) {
		t.Fatalf("errors differ between runs: %v vs %v", err, err2)
	}
	if first.Summary.Digest != second.Summary.Digest {
		t.Errorf("digests differ: %s vs %s", first.Summary.Digest, second.Summary.Digest)
	}
	if !reflect.DeepEqual(first.States, second.States) {
		t.Error("states differ between identical runs")
	}
	if !reflect.DeepEqual(first.Graph.Connections, second.Graph.Connections) {
		t.Error("connections differ between identical runs")
	}
}

func TestGenerateEmptyWorld(t *testing.T) {
	cfg := smallWorld()
	cfg.World.NodeCountRange = [2]int{0, 0}

	res, err := NewGenerator(cfg, nil).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Summary.Nodes != 0 || res.Summary.Ticks != 0 {
		t.Errorf("empty world summary = %+v, want zero nodes and ticks", res.Summary)
	}
	if len(res.Graph.Connections) != 0 {
		t.Errorf("empty world has %d connections", len(res.Graph.Connections))
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	cfg := smallWorld()
	cfg.World.Size = [2]int{0, 15}

	obs := &recorder{}
	gen := NewGenerator(cfg, nil)
	gen.AddObserver(obs)

	res, err := gen.Generate(context.Background())
	if !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Errorf("Generate() error = %v, want ErrInvalidConfiguration", err)
	}
	if res != nil {
		t.Error("invalid config should not produce a result")
	}
	if len(obs.ticks) != 0 || len(obs.seeds) != 0 {
		t.Error("no work should start for an invalid config")
	}
}

func wallLibrary(t *testing.T) *wfc.Library {
	t.Helper()
	lib, err := wfc.NewLibrary([]wfc.TilePrototype{{ID: "wall", Weight: 1, Biome: "any"}})
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return lib
}

func TestGenerateRestartsOnContradiction(t *testing.T) {
	cfg := smallWorld()
	cfg.World.NodeCountRange = [2]int{2, 2}
	cfg.Solver.MaxRestarts = 2

	obs := &recorder{}
	gen := NewGenerator(cfg, wallLibrary(t))
	gen.AddObserver(obs)

	res, err := gen.Generate(context.Background())
	if !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v, want ErrContradiction", err)
	}
	if res == nil {
		t.Fatal("contradiction should still return the result")
	}
	if res.Summary.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", res.Summary.Restarts)
	}
	if want := []uint32{12345, 13345, 14345}; !reflect.DeepEqual(obs.seeds, want) {
		t.Errorf("attempt seeds = %v, want %v", obs.seeds, want)
	}
	if res.Summary.Seed != 14345 {
		t.Errorf("Summary.Seed = %d, want the last attempt's seed", res.Summary.Seed)
	}
	if len(obs.finished) != 1 || !errors.Is(obs.errs[0], wfc.ErrContradiction) {
		t.Errorf("RunFinished calls = %d (%v), want one with the contradiction", len(obs.finished), obs.errs)
	}
}

func TestGenerateNoRestartByDefault(t *testing.T) {
	cfg := smallWorld()
	cfg.World.NodeCountRange = [2]int{2, 2}

	obs := &recorder{}
	gen := NewGenerator(cfg, wallLibrary(t))
	gen.AddObserver(obs)

	res, err := gen.Generate(context.Background())
	if !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v, want ErrContradiction", err)
	}
	if res.Summary.Restarts != 0 || len(obs.seeds) != 1 {
		t.Errorf("Restarts = %d, attempts = %d, want a single attempt", res.Summary.Restarts, len(obs.seeds))
	}
	if res.Summary.Ticks != 2 {
		t.Errorf("Ticks = %d, want 2 (populate then prune)", res.Summary.Ticks)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	gen := NewGenerator(smallWorld(), nil)
	gen.AddObserver(rec)

	res, err := gen.Generate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("cancelled run should not return a result")
	}
	if len(rec.finished) != 1 || !errors.Is(rec.errs[0], context.Canceled) {
		t.Errorf("observer finished = %d with %v, want one cancelled run", len(rec.finished), rec.errs)
	}
}

func TestSeedIntrospection(t *testing.T) {
	gen := NewGenerator(smallWorld(), nil)
	if gen.CurrentSeed() != 12345 {
		t.Errorf("CurrentSeed() = %d, want 12345", gen.CurrentSeed())
	}

	first, err := gen.Generate(context.Background())
	if err != nil && !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v", err)
	}

	gen.SetSeed(99)
	if gen.CurrentSeed() != 99 {
		t.Errorf("CurrentSeed() = %d after SetSeed(99)", gen.CurrentSeed())
	}
	second, err := gen.Generate(context.Background())
	if err != nil && !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v", err)
	}
	if second.Summary.Seed != 99 {
		t.Errorf("Summary.Seed = %d, want 99", second.Summary.Seed)
	}
	if first.Summary.Digest == second.Summary.Digest {
		t.Error("different seeds produced the same digest")
	}
}

func TestObserverSeesEveryTick(t *testing.T) {
	obs := &recorder{}
	gen := NewGenerator(smallWorld(), nil)
	gen.AddObserver(obs)

	res, err := gen.Generate(context.Background())
	if err != nil && !errors.Is(err, wfc.ErrContradiction) {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(obs.ticks) != res.Summary.Ticks {
		t.Errorf("observed %d ticks, summary says %d", len(obs.ticks), res.Summary.Ticks)
	}
	for i, r := range obs.ticks {
		if r.Tick != i+1 {
			t.Errorf("tick report %d has Tick = %d", i, r.Tick)
		}
	}
	if len(obs.finished) != 1 || obs.finished[0].Digest != res.Summary.Digest {
		t.Error("RunFinished should receive the final summary once")
	}
}

// lineGraph places three nodes on a horizontal line, 4 apart.
func lineGraph() (*graph.Graph, [][]graph.Link) {
	g := graph.New(3)
	for x := 0; x < 3; x++ {
		g.AddNode(graph.Node{Level: graph.LevelDistrict, ParentID: graph.NoParent, Pos: graph.Coord{X: x * 4}})
	}
	return g, g.Adjacency(0)
}

func completed(tiles ...int) []wfc.State {
	states := make([]wfc.State, len(tiles))
	for i, tile := range tiles {
		states[i] = wfc.State{Phase: wfc.Completed, Candidates: []int{tile}, Entropy: 1, Assigned: tile}
	}
	return states
}

func TestBuildConnectionsGated(t *testing.T) {
	lib := wfc.DefaultLibrary()
	hub, _ := lib.Index("hub")
	causeway, _ := lib.Index("causeway")
	eval := wfc.NewEvaluator(lib, nil, 0)
	rules := policy.Rules{Mode: policy.None, Traversal: policy.CuratedTraversal}

	g, adj := lineGraph()
	stats := buildConnections(g, adj, completed(hub, causeway, hub), eval, &rules)

	if stats.conflicts != 0 || len(stats.boundViolations) != 0 {
		t.Errorf("stats = %+v, want no conflicts or violations", stats)
	}
	want := []graph.Connection{
		{From: 1, To: 0, FromDir: graph.West, ToDir: graph.East, Type: graph.Directional, RequiredPolarity: "tide", Cost: 8},
		{From: 1, To: 2, FromDir: graph.East, ToDir: graph.West, Type: graph.Directional, RequiredPolarity: "tide", Cost: 8},
	}
	if !reflect.DeepEqual(g.Connections, want) {
		t.Errorf("Connections = %+v, want %+v", g.Connections, want)
	}
}

func TestBuildConnectionsSwimmerPaysDistance(t *testing.T) {
	lib := wfc.DefaultLibrary()
	hub, _ := lib.Index("hub")
	eval := wfc.NewEvaluator(lib, nil, 0)
	rules := policy.Rules{Mode: policy.Full, Traversal: policy.TraversalWalk | policy.TraversalSwim}

	g, adj := lineGraph()
	buildConnections(g, adj, completed(hub, hub, hub), eval, &rules)

	if len(g.Connections) != 2 {
		t.Fatalf("got %d connections, want 2", len(g.Connections))
	}
	for _, c := range g.Connections {
		if c.Type != graph.Bidirectional || c.Cost != 4 || c.RequiredPolarity != "" {
			t.Errorf("hub-hub connection = %+v, want ungated bidirectional cost 4", c)
		}
	}
}

func TestBuildConnectionsConflictAndBounds(t *testing.T) {
	lib := wfc.DefaultLibrary()
	hub, _ := lib.Index("hub")
	corridor, _ := lib.Index("corridor")
	eval := wfc.NewEvaluator(lib, nil, 0)
	rules := policy.Rules{Traversal: policy.CuratedTraversal}

	g, adj := lineGraph()
	stats := buildConnections(g, adj, completed(corridor, hub, hub), eval, &rules)

	if stats.conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", stats.conflicts)
	}
	if !reflect.DeepEqual(stats.boundViolations, []int{0}) {
		t.Errorf("boundViolations = %v, want [0]", stats.boundViolations)
	}
	if len(g.Connections) != 1 || g.Connections[0].From != 1 || g.Connections[0].To != 2 {
		t.Errorf("Connections = %+v, want only 1-2", g.Connections)
	}
}

func TestBuildConnectionsMaxConnections(t *testing.T) {
	lib, err := wfc.NewLibrary([]wfc.TilePrototype{{
		ID:     "narrow",
		Weight: 1,
		Sockets: []wfc.Socket{
			{ID: "e", Direction: graph.East, Open: true},
			{ID: "w", Direction: graph.West, Open: true},
		},
		MaxConnections: 1,
	}})
	if err != nil {
		t.Fatal(err)
	}
	eval := wfc.NewEvaluator(lib, nil, 0)
	rules := policy.Rules{Traversal: policy.CuratedTraversal}

	g, adj := lineGraph()
	stats := buildConnections(g, adj, completed(0, 0, 0), eval, &rules)

	if len(g.Connections) != 1 || g.Connections[0].From != 0 {
		t.Errorf("Connections = %+v, want only 0-1", g.Connections)
	}
	if !reflect.DeepEqual(stats.boundViolations, []int(nil)) {
		t.Errorf("boundViolations = %v, want none", stats.boundViolations)
	}
}

func TestGuard(t *testing.T) {
	var g Guard

	if !g.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if g.TryAcquire() {
		t.Error("second acquire should fail while held")
	}
	if !g.Busy() {
		t.Error("Busy() = false while held")
	}

	g.Release()
	if g.Busy() {
		t.Error("Busy() = true after release")
	}
	if !g.TryAcquire() {
		t.Error("acquire should succeed after release")
	}
}

func TestRestartable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("%w: node 3", wfc.ErrContradiction), true},
		{fmt.Errorf("%w: nodes 0 and 1", wfc.ErrConflict), true},
		{fmt.Errorf("%w: 150 ticks", wfc.ErrTickBudget), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := restartable(tt.err); got != tt.want {
			t.Errorf("restartable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestAttemptRejectsUnknownFalloff(t *testing.T) {
	cfg := smallWorld()
	cfg.World.BiomeFalloff = "stepwise"

	gen := NewGenerator(cfg, nil)
	res, err := gen.attempt(context.Background(), cfg.World.Seed, nil)
	if err == nil || !strings.Contains(err.Error(), "stepwise") {
		t.Fatalf("attempt() error = %v, want unknown interpolation", err)
	}
	if res != nil {
		t.Error("attempt() returned a result for a bad falloff")
	}
}

func TestGenerateWithBiomeLibrary(t *testing.T) {
	lib, err := wfc.LoadLibrary(filepath.Join("..", "..", "data", "tiles.yaml"))
	if err != nil {
		t.Fatalf("LoadLibrary() error = %v", err)
	}

	biomeTiles := 0
	for seed := uint32(1); seed <= 8; seed++ {
		cfg := smallWorld()
		cfg.World.Seed = seed
		cfg.Solver.ForceCollapseAfter = 5
		cfg.Solver.MaxRestarts = 2

		res, err := NewGenerator(cfg, lib).Generate(context.Background())
		if res == nil {
			t.Fatalf("seed %d: Generate() returned no result: %v", seed, err)
		}

		for i, s := range res.States {
			if s.Phase != wfc.Completed {
				continue
			}
			tile := lib.Tile(s.Assigned)
			field := res.Graph.Nodes[i].Biome
			if !field.Matches(tile.Biome) {
				t.Errorf("seed %d node %d: tile %s (%s) placed in %s/%s", seed, i, tile.ID, tile.Biome, field.Primary, field.Secondary)
			}
			if tile.Biome != biome.Any {
				biomeTiles++
			}
		}

		for _, c := range res.Graph.Connections {
			a := lib.Tile(res.States[c.From].Assigned).Biome
			b := lib.Tile(res.States[c.To].Assigned).Biome
			if (a == "hazards" && b == "plains") || (a == "plains" && b == "hazards") {
				t.Errorf("seed %d: connection %d-%d joins hazards and plains", seed, c.From, c.To)
			}
		}
	}
	if biomeTiles == 0 {
		t.Error("no biome-specific tile was placed in any run")
	}
}
