package wfc

import (
	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/zyedidia/generic/mapset"
)

// DefaultMismatchPenalty is the soft affinity between tiles of different biomes.
const DefaultMismatchPenalty = 0.5

// Exclusion is a pair of biomes whose tiles may never be adjacent.
type Exclusion struct {
	A biome.Type `yaml:"a"`
	B biome.Type `yaml:"b"`
}

// Evaluator decides whether two tiles may sit side by side through a pair of
// facing sockets. It is read-only after construction.
type Evaluator struct {
	lib      *Library
	excluded map[biome.Type]mapset.Set[biome.Type]
	penalty  float64
}

// NewEvaluator creates an evaluator over lib. Exclusions are symmetric.
// A penalty outside (0,1] selects DefaultMismatchPenalty.
func NewEvaluator(lib *Library, exclusions []Exclusion, mismatchPenalty float64) *Evaluator {
	if mismatchPenalty <= 0 || mismatchPenalty > 1 {
		mismatchPenalty = DefaultMismatchPenalty
	}
	e := &Evaluator{
		lib:      lib,
		excluded: make(map[biome.Type]mapset.Set[biome.Type]),
		penalty:  mismatchPenalty,
	}
	for _, ex := range exclusions {
		e.exclude(ex.A, ex.B)
		e.exclude(ex.B, ex.A)
	}
	return e
}

func (e *Evaluator) exclude(a, b biome.Type) {
	set, ok := e.excluded[a]
	if !ok {
		set = mapset.New[biome.Type]()
		e.excluded[a] = set
	}
	set.Put(b)
}

// Library returns the library the evaluator was built for.
func (e *Evaluator) Library() *Library {
	return e.lib
}

// Excluded reports whether biomes a and b are a hard exclusion pair.
// The wildcard biome is never excluded.
func (e *Evaluator) Excluded(a, b biome.Type) bool {
	if isWildcardBiome(a) || isWildcardBiome(b) {
		return false
	}
	set, ok := e.excluded[a]
	return ok && set.Has(b)
}

// Compatible reports whether localTile, facing localDir, may connect to
// neighborTile facing neighborDir. Checks run in order and stop at the first
// failure: sockets present and open, directions opposite, polarity, biome
// exclusion.
func (e *Evaluator) Compatible(localTile int, localDir Direction, neighborTile int, neighborDir Direction) bool {
	local := e.lib.Tile(localTile)
	neighbor := e.lib.Tile(neighborTile)

	ls, ok := local.Socket(localDir)
	if !ok || !ls.Open {
		return false
	}
	ns, ok := neighbor.Socket(neighborDir)
	if !ok || !ns.Open {
		return false
	}

	if localDir != neighborDir.Opposite() {
		return false
	}

	if !polarityAccepts(ls.RequiredPolarity, ns, neighbor) || !polarityAccepts(ns.RequiredPolarity, ls, local) {
		return false
	}

	return !e.Excluded(local.Biome, neighbor.Biome)
}

// polarityAccepts checks one side's requirement against the other side.
func polarityAccepts(required Polarity, other Socket, otherTile *TilePrototype) bool {
	if required.IsNone() {
		return true
	}
	if other.RequiredPolarity.IsNone() {
		return true
	}
	return other.RequiredPolarity == required || otherTile.Polarity == required
}

// Affinity is the soft biome weighting between two tiles: 1 when their biomes
// agree (or either is the wildcard), the mismatch penalty otherwise.
func (e *Evaluator) Affinity(localTile, neighborTile int) float64 {
	a := e.lib.Tile(localTile).Biome
	b := e.lib.Tile(neighborTile).Biome
	if a == b || isWildcardBiome(a) || isWildcardBiome(b) {
		return 1
	}
	return e.penalty
}

// ValidConnectionCount returns true if the connection count is within the
// tile's inclusive bounds
func (e *Evaluator) ValidConnectionCount(tile, count int) bool {
	t := e.lib.Tile(tile)
	return count >= t.MinConnections && count <= t.MaxConnections
}

// GateFor returns the polarity gating a connection between two sockets, or
// PolarityNone when neither side requires one.
func GateFor(a, b Socket) Polarity {
	if !a.RequiredPolarity.IsNone() {
		return a.RequiredPolarity
	}
	if !b.RequiredPolarity.IsNone() {
		return b.RequiredPolarity
	}
	return PolarityNone
}

func isWildcardBiome(b biome.Type) bool {
	return b == "" || b == biome.Any
}
