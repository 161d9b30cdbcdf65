// Package graph holds the generated level graph: an arena of nodes addressed
// by dense index plus the connections derived after collapse.
package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/zyedidia/generic/mapset"
)

// Level is a node's place in the world hierarchy.
type Level int

const (
	LevelWorld Level = iota
	LevelDistrict
	LevelSector
	LevelRoom
)

// String returns the string representation of a Level
func (l Level) String() string {
	switch l {
	case LevelWorld:
		return "world"
	case LevelDistrict:
		return "district"
	case LevelSector:
		return "sector"
	case LevelRoom:
		return "room"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "world":
		*l = LevelWorld
	case "district":
		*l = LevelDistrict
	case "sector":
		*l = LevelSector
	case "room":
		*l = LevelRoom
	default:
		return fmt.Errorf("unknown level %q", string(text))
	}
	return nil
}

// NoParent marks a node without a parent.
const NoParent = -1

// Coord is an integer grid position.
type Coord struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Dist returns the Euclidean distance between two coordinates.
func (c Coord) Dist(o Coord) float64 {
	return math.Sqrt(float64(c.Dist2(o)))
}

// Dist2 returns the squared Euclidean distance.
func (c Coord) Dist2(o Coord) int {
	dx, dy := o.X-c.X, o.Y-c.Y
	return dx*dx + dy*dy
}

// DirectionTo returns the dominant cardinal direction from c to o.
// Diagonal ties resolve to the horizontal axis. ok is false when c == o.
func (c Coord) DirectionTo(o Coord) (dir Direction, ok bool) {
	dx, dy := o.X-c.X, o.Y-c.Y
	if dx == 0 && dy == 0 {
		return North, false
	}
	if abs(dx) >= abs(dy) {
		if dx > 0 {
			return East, true
		}
		return West, true
	}
	if dy > 0 {
		return South, true
	}
	return North, true
}

// Node is a district, sector or room instance.
type Node struct {
	ID          int
	Level       Level
	ParentID    int
	Pos         Coord
	LoopDensity float64
	Biome       biome.Field
}

// HasParent reports whether the node has a parent node.
func (n *Node) HasParent() bool {
	return n.ParentID != NoParent
}

// ConnectionType distinguishes two-way from one-way connections.
type ConnectionType int

const (
	Bidirectional ConnectionType = iota
	Directional
)

// String returns the string representation of a ConnectionType
func (t ConnectionType) String() string {
	if t == Directional {
		return "directional"
	}
	return "bidirectional"
}

// Connection links two nodes through a pair of facing sockets.
// For Directional connections travel is only allowed From -> To.
type Connection struct {
	From             int
	To               int
	FromDir          Direction
	ToDir            Direction
	Type             ConnectionType
	RequiredPolarity string
	Cost             float64
}

// Link is one spatial adjacency as seen from a node.
type Link struct {
	Node int
	Dir  Direction
}

// Graph is the node arena plus connections.
type Graph struct {
	Nodes       []Node
	Connections []Connection
}

// New creates an empty graph with room for n nodes.
func New(n int) *Graph {
	return &Graph{Nodes: make([]Node, 0, n)}
}

// AddNode appends a node, assigns its ID and returns it.
func (g *Graph) AddNode(n Node) int {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// Connect appends a connection.
func (g *Graph) Connect(c Connection) {
	g.Connections = append(g.Connections, c)
}

// Degree returns the number of connections touching a node.
func (g *Graph) Degree(id int) int {
	count := 0
	for _, c := range g.Connections {
		if c.From == id || c.To == id {
			count++
		}
	}
	return count
}

// Adjacency computes symmetric spatial adjacency. Two nodes are adjacent in
// direction d when each is the other's nearest node in that direction
// (d from the first, d.Opposite() from the second). maxDist <= 0 disables the
// distance limit. Links per node are ordered North, East, South, West.
func (g *Graph) Adjacency(maxDist float64) [][]Link {
	n := len(g.Nodes)
	nearest := make([][4]int, n)
	for i := range nearest {
		nearest[i] = [4]int{-1, -1, -1, -1}
	}

	limit := math.Inf(1)
	if maxDist > 0 {
		limit = maxDist * maxDist
	}

	for a := 0; a < n; a++ {
		best := [4]int{math.MaxInt, math.MaxInt, math.MaxInt, math.MaxInt}
		for b := 0; b < n; b++ {
			if a == b {
				continue
			}
			dir, ok := g.Nodes[a].Pos.DirectionTo(g.Nodes[b].Pos)
			if !ok {
				continue
			}
			d2 := g.Nodes[a].Pos.Dist2(g.Nodes[b].Pos)
			if float64(d2) > limit {
				continue
			}
			// Strictly closer wins; b ascends so ties keep the lower index.
			if d2 < best[dir] {
				best[dir] = d2
				nearest[a][dir] = b
			}
		}
	}

	links := make([][]Link, n)
	for a := 0; a < n; a++ {
		for _, dir := range AllDirections() {
			b := nearest[a][dir]
			if b < 0 || nearest[b][dir.Opposite()] != a {
				continue
			}
			links[a] = append(links[a], Link{Node: b, Dir: dir})
		}
	}
	return links
}

// Components returns the connected components over Connections (ignoring
// direction), each sorted by node id, ordered by their smallest id.
func (g *Graph) Components() [][]int {
	adj := make([][]int, len(g.Nodes))
	for _, c := range g.Connections {
		adj[c.From] = append(adj[c.From], c.To)
		adj[c.To] = append(adj[c.To], c.From)
	}

	visited := mapset.New[int]()
	var comps [][]int
	for start := range g.Nodes {
		if visited.Has(start) {
			continue
		}
		comp := []int{start}
		visited.Put(start)
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adj[cur] {
				if visited.Has(next) {
					continue
				}
				visited.Put(next)
				comp = append(comp, next)
				queue = append(queue, next)
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
