package wfc

import (
	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/graph"
)

// Direction is the grid direction shared with the level graph.
type Direction = graph.Direction

const (
	North = graph.North
	East  = graph.East
	South = graph.South
	West  = graph.West
)

// Polarity is an elemental tag on tiles and sockets.
type Polarity string

// PolarityNone is the wildcard polarity. An empty string means the same.
const PolarityNone Polarity = "none"

// IsNone reports whether p places no requirement.
func (p Polarity) IsNone() bool {
	return p == "" || p == PolarityNone
}

// Socket is one connection point on a tile.
type Socket struct {
	ID               string    `yaml:"id"`
	Direction        Direction `yaml:"direction"`
	RequiredPolarity Polarity  `yaml:"required_polarity,omitempty"`
	Open             bool      `yaml:"open"`
}

// TilePrototype is an immutable tile definition. A node collapses to exactly
// one prototype.
type TilePrototype struct {
	ID             string        `yaml:"id"`
	Weight         float64       `yaml:"weight"`
	Biome          biome.Type    `yaml:"biome,omitempty"`
	Polarity       Polarity      `yaml:"polarity,omitempty"`
	Sockets        []Socket      `yaml:"sockets"`
	MinConnections int           `yaml:"min_connections,omitempty"`
	MaxConnections int           `yaml:"max_connections,omitempty"`
	Levels         []graph.Level `yaml:"levels,omitempty"`
}

// Socket returns the first socket facing dir.
func (t *TilePrototype) Socket(dir Direction) (Socket, bool) {
	for _, s := range t.Sockets {
		if s.Direction == dir {
			return s, true
		}
	}
	return Socket{}, false
}

// HasOpenSocket returns true if the tile can connect in the given direction
func (t *TilePrototype) HasOpenSocket(dir Direction) bool {
	s, ok := t.Socket(dir)
	return ok && s.Open
}

// OpenSockets returns the number of open sockets
func (t *TilePrototype) OpenSockets() int {
	count := 0
	for _, s := range t.Sockets {
		if s.Open {
			count++
		}
	}
	return count
}

// AllowsLevel reports whether the tile may be used at the given hierarchy level.
func (t *TilePrototype) AllowsLevel(level graph.Level) bool {
	if len(t.Levels) == 0 {
		return true
	}
	for _, l := range t.Levels {
		if l == level {
			return true
		}
	}
	return false
}
