package worldgen

import (
	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

// gateCostFactor multiplies the cost of a gated connection the traversal
// mask cannot cross.
const gateCostFactor = 2

// connectStats counts what buildConnections saw.
type connectStats struct {
	conflicts       int
	boundViolations []int
}

// buildConnections links adjacent Completed nodes whose facing sockets are
// compatible. Pairs are visited in (node, direction) order and a pair is
// skipped once either side has reached its tile's MaxConnections.
//
// A link between two Completed nodes whose tiles are not compatible is a
// conflict: both sides were decided in the same tick.
func buildConnections(g *graph.Graph, adj [][]graph.Link, states []wfc.State, eval *wfc.Evaluator, rules *policy.Rules) connectStats {
	lib := eval.Library()
	var stats connectStats

	for i := range g.Nodes {
		si := states[i]
		if si.Phase != wfc.Completed {
			continue
		}
		for _, l := range adj[i] {
			j := l.Node
			if j < i || states[j].Phase != wfc.Completed {
				continue
			}
			ti, tj := si.Assigned, states[j].Assigned
			if !eval.Compatible(ti, l.Dir, tj, l.Dir.Opposite()) {
				stats.conflicts++
				continue
			}
			if g.Degree(i) >= lib.Tile(ti).MaxConnections || g.Degree(j) >= lib.Tile(tj).MaxConnections {
				continue
			}

			a, _ := lib.Tile(ti).Socket(l.Dir)
			b, _ := lib.Tile(tj).Socket(l.Dir.Opposite())
			g.Connect(newConnection(g, i, j, l.Dir, a, b, rules))
		}
	}

	for i := range g.Nodes {
		if states[i].Phase != wfc.Completed {
			continue
		}
		if !eval.ValidConnectionCount(states[i].Assigned, g.Degree(i)) {
			stats.boundViolations = append(stats.boundViolations, i)
		}
	}
	return stats
}

// newConnection builds the connection i -> j through sockets a and b.
// When only one socket carries a polarity requirement the connection is
// one-way and leads out of the gated side.
func newConnection(g *graph.Graph, i, j int, dir graph.Direction, a, b wfc.Socket, rules *policy.Rules) graph.Connection {
	gate := wfc.GateFor(a, b)
	cost := g.Nodes[i].Pos.Dist(g.Nodes[j].Pos)
	if !rules.CanCross(gate) {
		cost *= gateCostFactor
	}

	c := graph.Connection{
		From:    i,
		To:      j,
		FromDir: dir,
		ToDir:   dir.Opposite(),
		Type:    graph.Bidirectional,
		Cost:    cost,
	}
	if !gate.IsNone() {
		c.RequiredPolarity = string(gate)
	}

	aGated, bGated := !a.RequiredPolarity.IsNone(), !b.RequiredPolarity.IsNone()
	switch {
	case aGated && !bGated:
		c.Type = graph.Directional
	case bGated && !aGated:
		c.Type = graph.Directional
		c.From, c.To = j, i
		c.FromDir, c.ToDir = c.ToDir, c.FromDir
	}
	return c
}
