package wfc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Library is the immutable, ordered set of tile prototypes. Library order is
// the deterministic tie-break order everywhere a choice is made.
type Library struct {
	tiles []TilePrototype
	index map[string]int
}

// libraryFile is the on-disk YAML layout.
type libraryFile struct {
	Tiles []TilePrototype `yaml:"tiles"`
}

// UnmarshalYAML defaults Open to true when a socket omits it.
func (s *Socket) UnmarshalYAML(value *yaml.Node) error {
	type rawSocket Socket
	raw := rawSocket{Open: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Socket(raw)
	return nil
}

// NewLibrary validates and indexes the given prototypes. A MaxConnections of
// zero defaults to the number of open sockets.
func NewLibrary(tiles []TilePrototype) (*Library, error) {
	if len(tiles) == 0 {
		return nil, ErrEmptyLibrary
	}

	lib := &Library{
		tiles: make([]TilePrototype, len(tiles)),
		index: make(map[string]int, len(tiles)),
	}
	for i, t := range tiles {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: tile %d has no id", ErrInvalidLibrary, i)
		}
		if _, dup := lib.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tile id %q", ErrInvalidLibrary, t.ID)
		}
		if t.Weight <= 0 {
			return nil, fmt.Errorf("%w: tile %q has weight %v", ErrInvalidLibrary, t.ID, t.Weight)
		}
		for _, s := range t.Sockets {
			if !s.Direction.Valid() {
				return nil, fmt.Errorf("%w: tile %q socket %q has invalid direction", ErrInvalidLibrary, t.ID, s.ID)
			}
		}

		t.Sockets = append([]Socket(nil), t.Sockets...)
		t.Levels = append(t.Levels[:0:0], t.Levels...)
		if t.Polarity == "" {
			t.Polarity = PolarityNone
		}
		if t.MaxConnections == 0 {
			t.MaxConnections = t.OpenSockets()
		}
		if t.MinConnections < 0 || t.MinConnections > t.MaxConnections {
			return nil, fmt.Errorf("%w: tile %q connection bounds %d..%d", ErrInvalidLibrary, t.ID, t.MinConnections, t.MaxConnections)
		}

		lib.tiles[i] = t
		lib.index[t.ID] = i
	}
	return lib, nil
}

// DefaultLibrary returns the built-in four-tile set: a four-way hub, a
// north/south corridor, an east/west causeway and a north/east bend. Every
// tile uses the wildcard biome, so biome fields, affinity and exclusions
// only take effect with a loaded library such as data/tiles.yaml.
func DefaultLibrary() *Library {
	open := func(id string, dir Direction) Socket {
		return Socket{ID: id, Direction: dir, Open: true}
	}

	lib, err := NewLibrary([]TilePrototype{
		{
			ID:     "hub",
			Weight: 1,
			Biome:  "any",
			Sockets: []Socket{
				open("hub_n", North), open("hub_e", East), open("hub_s", South), open("hub_w", West),
			},
			MinConnections: 1,
		},
		{
			ID:             "corridor",
			Weight:         3,
			Biome:          "any",
			Sockets:        []Socket{open("corridor_n", North), open("corridor_s", South)},
			MinConnections: 1,
		},
		{
			ID:       "causeway",
			Weight:   2,
			Biome:    "any",
			Polarity: "tide",
			Sockets: []Socket{
				{ID: "causeway_e", Direction: East, RequiredPolarity: "tide", Open: true},
				{ID: "causeway_w", Direction: West, RequiredPolarity: "tide", Open: true},
			},
			MinConnections: 1,
		},
		{
			ID:             "bend",
			Weight:         2,
			Biome:          "any",
			Sockets:        []Socket{open("bend_n", North), open("bend_e", East)},
			MinConnections: 1,
		},
	})
	if err != nil {
		panic(err)
	}
	return lib
}

// ParseLibrary builds a library from YAML with a top-level tiles list.
func ParseLibrary(data []byte) (*Library, error) {
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	return NewLibrary(file.Tiles)
}

// LoadLibrary reads a tile library from a YAML file.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile library: %w", err)
	}
	lib, err := ParseLibrary(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load tile library %s: %w", path, err)
	}
	return lib, nil
}

// MarshalYAML writes the library in the same layout ParseLibrary reads.
func (l *Library) MarshalYAML() (interface{}, error) {
	return libraryFile{Tiles: l.tiles}, nil
}

// Len returns the number of prototypes.
func (l *Library) Len() int {
	return len(l.tiles)
}

// Tile returns the prototype at index i.
func (l *Library) Tile(i int) *TilePrototype {
	return &l.tiles[i]
}

// Index returns the library index of a tile id.
func (l *Library) Index(id string) (int, bool) {
	i, ok := l.index[id]
	return i, ok
}

// IDs returns tile ids in library order.
func (l *Library) IDs() []string {
	ids := make([]string, len(l.tiles))
	for i, t := range l.tiles {
		ids[i] = t.ID
	}
	return ids
}
