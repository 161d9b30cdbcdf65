package worldgen

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/layout"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"golang.org/x/crypto/blake2b"
)

// Result is the output of a generation run.
type Result struct {
	Graph     *graph.Graph
	States    []wfc.State
	Placement layout.Placement
	Rules     policy.Rules
	Library   *wfc.Library
	Summary   Summary
}

// Summary is the compact record of a run used by logs, the run store and
// the live feed.
type Summary struct {
	Seed            uint32          `json:"seed"`
	Strategy        layout.Strategy `json:"strategy"`
	Nodes           int             `json:"nodes"`
	Completed       int             `json:"completed"`
	Contradictions  int             `json:"contradictions"`
	InProgress      int             `json:"in_progress"`
	Forced          int             `json:"forced"`
	Ticks           int             `json:"ticks"`
	Connections     int             `json:"connections"`
	Degraded        int             `json:"degraded"`
	Restarts        int             `json:"restarts"`
	BoundViolations int             `json:"bound_violations"`
	Conflicts       int             `json:"conflicts"`
	Elapsed         time.Duration   `json:"elapsed"`
	Digest          string          `json:"digest"`
}

// TileID returns the id of the tile assigned to node i, or "" when the node
// is undecided.
func (r *Result) TileID(i int) string {
	s := r.States[i]
	if s.Phase != wfc.Completed || r.Library == nil {
		return ""
	}
	return r.Library.Tile(s.Assigned).ID
}

func summarize(seed uint32, res *Result, ticks int, stats connectStats) Summary {
	s := Summary{
		Seed:            seed,
		Strategy:        res.Placement.Strategy,
		Nodes:           res.Graph.Len(),
		Ticks:           ticks,
		Connections:     len(res.Graph.Connections),
		Degraded:        len(res.Placement.Degraded),
		BoundViolations: len(stats.boundViolations),
		Conflicts:       stats.conflicts,
	}
	for _, st := range res.States {
		switch st.Phase {
		case wfc.Completed:
			s.Completed++
		case wfc.Contradiction:
			s.Contradictions++
		default:
			s.InProgress++
		}
		if st.Forced {
			s.Forced++
		}
	}
	s.Digest = Digest(res)
	return s
}

// Digest is a BLAKE2b-256 hash of everything a seed determines: node
// positions, biomes, assigned tiles and connections. Two runs with the same
// inputs have the same digest.
func Digest(res *Result) string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte

	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putString := func(v string) {
		putInt(len(v))
		h.Write([]byte(v))
	}

	putInt(res.Graph.Len())
	for i, n := range res.Graph.Nodes {
		putInt(n.Pos.X)
		putInt(n.Pos.Y)
		putString(string(n.Biome.Primary))
		putString(string(n.Biome.Secondary))
		putFloat(n.Biome.Strength)
		putFloat(n.LoopDensity)
		putInt(int(res.States[i].Phase))
		putString(res.TileID(i))
	}

	putInt(len(res.Graph.Connections))
	for _, c := range res.Graph.Connections {
		putInt(c.From)
		putInt(c.To)
		putInt(int(c.Type))
		putString(c.RequiredPolarity)
		putFloat(c.Cost)
	}
	return hex.EncodeToString(h.Sum(nil))
}
