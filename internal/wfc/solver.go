package wfc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/rng"
	"github.com/zyedidia/generic/mapset"
	"golang.org/x/sync/errgroup"
)

var (
	ErrContradiction  = errors.New("wfc: contradiction - no valid tiles for node")
	ErrTickBudget     = errors.New("wfc: exceeded tick budget")
	ErrEmptyLibrary   = errors.New("wfc: tile library is empty")
	ErrInvalidLibrary = errors.New("wfc: invalid tile library")
	ErrInvalidLink    = errors.New("wfc: link refers to an unknown node")
	ErrConflict       = errors.New("wfc: conflict - adjacent nodes completed with incompatible tiles")
)

const (
	DefaultForceCollapseAfter = 100
	DefaultMaxTicks           = 1000
)

// Phase is a node's position in the collapse lifecycle.
type Phase int

const (
	Initialized Phase = iota
	InProgress
	Completed
	Contradiction
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case Initialized:
		return "initialized"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Contradiction:
		return "contradiction"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for q := Initialized; q <= Contradiction; q++ {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("wfc: unknown phase %q", text)
}

// Terminal reports whether no further tick can change the phase.
func (p Phase) Terminal() bool {
	return p == Completed || p == Contradiction
}

// State is the per-node solver state. Candidates hold library indices in
// library order and are never modified in place.
type State struct {
	Phase      Phase
	Candidates []int
	Entropy    int
	Assigned   int
	Forced     bool
}

func initialState() State {
	return State{Phase: Initialized, Assigned: -1}
}

// Link is an adjacency from one node to another.
type Link = graph.Link

// NodeInput is everything the engine needs to know about one node.
type NodeInput struct {
	Level  graph.Level
	Biome  biome.Field
	Links  []Link
	Source rng.Source
}

// AdmitFunc decides whether a prototype is an initial candidate for a node.
type AdmitFunc func(node *NodeInput, tile *TilePrototype) bool

// DefaultAdmit admits tiles whose biome matches the node's field and whose
// level filter accepts the node's level.
func DefaultAdmit(node *NodeInput, tile *TilePrototype) bool {
	return node.Biome.Matches(tile.Biome) && tile.AllowsLevel(node.Level)
}

// EngineConfig tunes the engine. Zero values select defaults; a negative
// ForceCollapseAfter disables forced collapse.
type EngineConfig struct {
	ForceCollapseAfter int
	MaxTicks           int
	Workers            int
	Admit              AdmitFunc
	OnTick             func(TickReport)
}

// TickReport summarizes one tick. Completed, Contradicted and Forced list the
// nodes that reached that outcome during the tick.
type TickReport struct {
	Tick         int           `json:"tick"`
	Phases       map[Phase]int `json:"phases"`
	Completed    []int         `json:"completed,omitempty"`
	Contradicted []int         `json:"contradicted,omitempty"`
	Forced       []int         `json:"forced,omitempty"`
	Conflicts    []Conflict    `json:"conflicts,omitempty"`
}

// Conflict is a pair of linked nodes, A < B, that completed in the same tick
// with tiles that cannot connect.
type Conflict struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Engine runs the tick-based collapse over a fixed set of nodes.
type Engine struct {
	lib       *Library
	eval      *Evaluator
	nodes     []NodeInput
	cfg       EngineConfig
	states    []State
	sources   []rng.Source
	age       []int
	tick      int
	conflicts []Conflict
}

// NewEngine creates an engine with every node Initialized.
func NewEngine(lib *Library, eval *Evaluator, nodes []NodeInput, cfg EngineConfig) (*Engine, error) {
	if lib == nil || lib.Len() == 0 {
		return nil, ErrEmptyLibrary
	}
	if eval == nil {
		eval = NewEvaluator(lib, nil, 0)
	}
	for i, n := range nodes {
		for _, l := range n.Links {
			if l.Node < 0 || l.Node >= len(nodes) || l.Node == i {
				return nil, fmt.Errorf("%w: node %d links to %d", ErrInvalidLink, i, l.Node)
			}
		}
	}

	if cfg.ForceCollapseAfter == 0 {
		cfg.ForceCollapseAfter = DefaultForceCollapseAfter
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultMaxTicks
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Admit == nil {
		cfg.Admit = DefaultAdmit
	}

	e := &Engine{
		lib:   lib,
		eval:  eval,
		nodes: append([]NodeInput(nil), nodes...),
		cfg:   cfg,
	}
	e.Reset()
	return e, nil
}

// Reset returns every node to Initialized and rewinds the node sources.
func (e *Engine) Reset() {
	n := len(e.nodes)
	e.states = make([]State, n)
	e.sources = make([]rng.Source, n)
	e.age = make([]int, n)
	for i := range e.nodes {
		e.states[i] = initialState()
		e.sources[i] = e.nodes[i].Source
	}
	e.tick = 0
	e.conflicts = nil
}

// Len returns the number of nodes.
func (e *Engine) Len() int {
	return len(e.states)
}

// Ticks returns the number of ticks executed since the last reset.
func (e *Engine) Ticks() int {
	return e.tick
}

// State returns a copy of node i's state.
func (e *Engine) State(i int) State {
	s := e.states[i]
	s.Candidates = append([]int(nil), s.Candidates...)
	return s
}

// States returns a copy of every node's state.
func (e *Engine) States() []State {
	out := make([]State, len(e.states))
	for i := range e.states {
		out[i] = e.State(i)
	}
	return out
}

// Conflicts returns every conflict found since the last reset.
func (e *Engine) Conflicts() []Conflict {
	return append([]Conflict(nil), e.conflicts...)
}

// Settled reports whether every node is Completed.
func (e *Engine) Settled() bool {
	for _, s := range e.states {
		if s.Phase != Completed {
			return false
		}
	}
	return true
}

// FirstContradiction returns the lowest node index in Contradiction, or -1.
func (e *Engine) FirstContradiction() int {
	for i, s := range e.states {
		if s.Phase == Contradiction {
			return i
		}
	}
	return -1
}

// Tick advances every node once. Nodes read only the states committed by the
// previous tick, so the outcome does not depend on evaluation order or the
// number of workers. A cancelled context aborts the tick without committing.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	prev := e.states
	next := make([]State, len(prev))

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(prev) + e.cfg.Workers - 1) / e.cfg.Workers
	for start := 0; start < len(prev); start += chunk {
		lo, hi := start, start+chunk
		if hi > len(prev) {
			hi = len(prev)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				next[i] = e.step(i, prev)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TickReport{}, err
	}

	age := make([]int, len(next))
	for i := range next {
		if next[i].Phase == InProgress && prev[i].Phase == InProgress {
			age[i] = e.age[i] + 1
		} else if next[i].Phase == InProgress {
			age[i] = 1
		}
	}

	forced := e.force(next, age)
	conflicts := e.findConflicts(prev, next)

	e.states = next
	e.age = age
	e.tick++
	e.conflicts = append(e.conflicts, conflicts...)

	report := TickReport{
		Tick:      e.tick,
		Phases:    make(map[Phase]int, 4),
		Forced:    forced,
		Conflicts: conflicts,
	}
	for i, s := range next {
		report.Phases[s.Phase]++
		if s.Phase == prev[i].Phase {
			continue
		}
		switch s.Phase {
		case Completed:
			report.Completed = append(report.Completed, i)
		case Contradiction:
			report.Contradicted = append(report.Contradicted, i)
		}
	}

	if e.cfg.OnTick != nil {
		e.cfg.OnTick(report)
	}
	return report, nil
}

// step computes node i's next state from the previous snapshot.
func (e *Engine) step(i int, prev []State) State {
	cur := prev[i]
	switch cur.Phase {
	case Initialized:
		return e.populate(i)
	case InProgress:
		return e.prune(i, cur, prev)
	default:
		return cur
	}
}

// populate admits the initial candidates. When the filter rejects every
// tile the whole library is used.
func (e *Engine) populate(i int) State {
	node := &e.nodes[i]
	cands := make([]int, 0, e.lib.Len())
	for t := 0; t < e.lib.Len(); t++ {
		if e.cfg.Admit(node, e.lib.Tile(t)) {
			cands = append(cands, t)
		}
	}
	if len(cands) == 0 {
		for t := 0; t < e.lib.Len(); t++ {
			cands = append(cands, t)
		}
	}
	return State{Phase: InProgress, Candidates: cands, Entropy: len(cands), Assigned: -1}
}

// prune drops candidates that have no compatible partner in some
// constraining neighbour.
func (e *Engine) prune(i int, cur State, prev []State) State {
	cands := cur.Candidates
	for _, link := range e.nodes[i].Links {
		nb := prev[link.Node]
		if !constrains(nb.Phase) {
			continue
		}
		cands = e.filter(cands, link.Dir, nb.Candidates)
		if len(cands) == 0 {
			break
		}
	}

	switch len(cands) {
	case 0:
		return State{Phase: Contradiction, Entropy: 0, Assigned: -1}
	case 1:
		return State{Phase: Completed, Candidates: cands, Entropy: 1, Assigned: cands[0]}
	default:
		return State{Phase: InProgress, Candidates: cands, Entropy: len(cands), Assigned: -1}
	}
}

// filter returns the subset of cands with a compatible partner among the
// neighbour candidates. The input slice is left untouched.
func (e *Engine) filter(cands []int, dir Direction, neighbor []int) []int {
	var kept []int
	for _, c := range cands {
		for _, nc := range neighbor {
			if e.eval.Compatible(c, dir, nc, dir.Opposite()) {
				kept = append(kept, c)
				break
			}
		}
	}
	if len(kept) == len(cands) {
		return cands
	}
	return kept
}

func constrains(p Phase) bool {
	return p == InProgress || p == Completed
}

// findConflicts checks nodes that completed this tick against linked nodes
// that also completed this tick. Both pruned against the previous snapshot,
// so each may have kept a tile the other's final choice cannot accept.
func (e *Engine) findConflicts(prev, next []State) []Conflict {
	fresh := func(i int) bool {
		return next[i].Phase == Completed && prev[i].Phase != Completed
	}

	seen := mapset.New[Conflict]()
	var conflicts []Conflict
	for i := range next {
		if !fresh(i) {
			continue
		}
		for _, l := range e.nodes[i].Links {
			j := l.Node
			if !fresh(j) || e.eval.Compatible(next[i].Assigned, l.Dir, next[j].Assigned, l.Dir.Opposite()) {
				continue
			}
			c := Conflict{A: min(i, j), B: max(i, j)}
			if !seen.Has(c) {
				seen.Put(c)
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

// force collapses nodes that have been undecided for too long. Eligible
// nodes are visited by entropy then index and a node is skipped when a
// linked neighbour was already forced this tick.
func (e *Engine) force(next []State, age []int) []int {
	if e.cfg.ForceCollapseAfter < 0 {
		return nil
	}

	var eligible []int
	for i, s := range next {
		if s.Phase == InProgress && age[i] >= e.cfg.ForceCollapseAfter {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		return next[eligible[a]].Entropy < next[eligible[b]].Entropy
	})

	forcedNow := make([]bool, len(next))
	var forced []int
	for _, i := range eligible {
		blocked := false
		for _, l := range e.nodes[i].Links {
			if forcedNow[l.Node] {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		tile, ok := e.choose(i, next)
		if !ok {
			continue
		}
		next[i] = State{Phase: Completed, Candidates: []int{tile}, Entropy: 1, Assigned: tile, Forced: true}
		age[i] = 0
		forcedNow[i] = true
		forced = append(forced, i)
	}
	sort.Ints(forced)
	return forced
}

// choose draws one of node i's candidates, restricted to those compatible
// with every constraining neighbour in the pending states. Each candidate is
// weighted by tile weight, biome affinity and affinity to decided neighbours.
func (e *Engine) choose(i int, next []State) (int, bool) {
	node := &e.nodes[i]
	cands := next[i].Candidates
	for _, l := range node.Links {
		nb := next[l.Node]
		if constrains(nb.Phase) {
			cands = e.filter(cands, l.Dir, nb.Candidates)
		}
	}
	if len(cands) == 0 {
		return 0, false
	}

	weights := make([]float64, len(cands))
	for k, c := range cands {
		tile := e.lib.Tile(c)
		w := tile.Weight * node.Biome.Affinity(tile.Biome)
		for _, l := range node.Links {
			if nb := next[l.Node]; nb.Phase == Completed {
				w *= e.eval.Affinity(c, nb.Assigned)
			}
		}
		weights[k] = w
	}

	idx := e.sources[i].Weighted(weights)
	if idx < 0 {
		return 0, false
	}
	return cands[idx], true
}

// Run ticks until every node is Completed, a node hits Contradiction, two
// linked nodes complete in conflict or the tick budget runs out. Cancellation
// is checked between ticks.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if len(e.conflicts) > 0 {
			c := e.conflicts[0]
			return fmt.Errorf("%w: nodes %d and %d", ErrConflict, c.A, c.B)
		}
		if e.Settled() {
			return nil
		}
		if c := e.FirstContradiction(); c >= 0 {
			return fmt.Errorf("%w: node %d", ErrContradiction, c)
		}
		if e.tick >= e.cfg.MaxTicks {
			return fmt.Errorf("%w: %d ticks", ErrTickBudget, e.cfg.MaxTicks)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.Tick(ctx); err != nil {
			return err
		}
	}
}
