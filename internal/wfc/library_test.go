package wfc

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/graph"
	"gopkg.in/yaml.v3"
)

func TestDefaultLibrary(t *testing.T) {
	lib := DefaultLibrary()

	want := []string{"hub", "corridor", "causeway", "bend"}
	if got := lib.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}

	tests := []struct {
		id      string
		sockets []Direction
		maxConn int
	}{
		{"hub", []Direction{North, East, South, West}, 4},
		{"corridor", []Direction{North, South}, 2},
		{"causeway", []Direction{East, West}, 2},
		{"bend", []Direction{North, East}, 2},
	}

	for _, tc := range tests {
		i, ok := lib.Index(tc.id)
		if !ok {
			t.Fatalf("Index(%q) not found", tc.id)
		}
		tile := lib.Tile(i)
		for _, d := range tc.sockets {
			if !tile.HasOpenSocket(d) {
				t.Errorf("%s: missing open socket %s", tc.id, d)
			}
		}
		if got := tile.OpenSockets(); got != len(tc.sockets) {
			t.Errorf("%s: OpenSockets() = %d, want %d", tc.id, got, len(tc.sockets))
		}
		if tile.MaxConnections != tc.maxConn {
			t.Errorf("%s: MaxConnections = %d, want %d", tc.id, tile.MaxConnections, tc.maxConn)
		}
	}
}

func TestNewLibraryValidation(t *testing.T) {
	socket := []Socket{{ID: "n", Direction: North, Open: true}}

	tests := []struct {
		name  string
		tiles []TilePrototype
		want  error
	}{
		{"empty", nil, ErrEmptyLibrary},
		{"missing id", []TilePrototype{{Weight: 1}}, ErrInvalidLibrary},
		{"duplicate", []TilePrototype{{ID: "a", Weight: 1}, {ID: "a", Weight: 2}}, ErrInvalidLibrary},
		{"zero weight", []TilePrototype{{ID: "a", Weight: 0}}, ErrInvalidLibrary},
		{"negative weight", []TilePrototype{{ID: "a", Weight: -1}}, ErrInvalidLibrary},
		{"min above max", []TilePrototype{{ID: "a", Weight: 1, Sockets: socket, MinConnections: 3, MaxConnections: 2}}, ErrInvalidLibrary},
		{"bad direction", []TilePrototype{{ID: "a", Weight: 1, Sockets: []Socket{{ID: "x", Direction: Direction(9)}}}}, ErrInvalidLibrary},
	}

	for _, tc := range tests {
		_, err := NewLibrary(tc.tiles)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: NewLibrary() error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

const libraryYAML = `
tiles:
  - id: gate
    weight: 2
    biome: forest
    polarity: sun
    min_connections: 1
    levels: [district]
    sockets:
      - id: gate_n
        direction: north
        required_polarity: sun
      - id: gate_s
        direction: s
        open: false
  - id: plaza
    weight: 1
    sockets:
      - id: plaza_e
        direction: east
      - id: plaza_w
        direction: west
`

func TestParseLibrary(t *testing.T) {
	lib, err := ParseLibrary([]byte(libraryYAML))
	if err != nil {
		t.Fatalf("ParseLibrary() failed: %v", err)
	}
	if lib.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", lib.Len())
	}

	gate := lib.Tile(0)
	if !gate.HasOpenSocket(North) {
		t.Error("gate_n should default to open")
	}
	if gate.HasOpenSocket(South) {
		t.Error("gate_s should be closed")
	}
	if s, _ := gate.Socket(North); s.RequiredPolarity != "sun" {
		t.Errorf("gate_n RequiredPolarity = %q, want sun", s.RequiredPolarity)
	}
	if gate.MaxConnections != 1 {
		t.Errorf("gate MaxConnections = %d, want 1", gate.MaxConnections)
	}
	if !gate.AllowsLevel(graph.LevelDistrict) || gate.AllowsLevel(graph.LevelRoom) {
		t.Errorf("gate levels = %v, want district only", gate.Levels)
	}

	plaza := lib.Tile(1)
	if plaza.Polarity != PolarityNone {
		t.Errorf("plaza Polarity = %q, want %q", plaza.Polarity, PolarityNone)
	}
	if !plaza.AllowsLevel(graph.LevelRoom) {
		t.Error("tile without levels should allow every level")
	}
}

func TestParseLibraryErrors(t *testing.T) {
	if _, err := ParseLibrary([]byte("tiles: [")); !errors.Is(err, ErrInvalidLibrary) {
		t.Errorf("malformed YAML error = %v, want ErrInvalidLibrary", err)
	}
	if _, err := ParseLibrary([]byte("tiles: []")); !errors.Is(err, ErrEmptyLibrary) {
		t.Errorf("empty tiles error = %v, want ErrEmptyLibrary", err)
	}
	bad := "tiles:\n  - id: a\n    weight: 1\n    sockets:\n      - id: x\n        direction: up\n"
	if _, err := ParseLibrary([]byte(bad)); !errors.Is(err, ErrInvalidLibrary) {
		t.Errorf("bad direction error = %v, want ErrInvalidLibrary", err)
	}
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiles.yaml")

	data, err := yaml.Marshal(DefaultLibrary())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lib, err := LoadLibrary(path)
	if err != nil {
		t.Fatalf("LoadLibrary() failed: %v", err)
	}
	if !reflect.DeepEqual(lib.IDs(), DefaultLibrary().IDs()) {
		t.Errorf("loaded IDs = %v", lib.IDs())
	}
	if s, _ := lib.Tile(2).Socket(East); s.RequiredPolarity != "tide" {
		t.Errorf("causeway east RequiredPolarity = %q, want tide", s.RequiredPolarity)
	}

	if _, err := LoadLibrary(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadLibrary() on a missing file should fail")
	}
}

func TestSampleBiomeLibrary(t *testing.T) {
	lib, err := LoadLibrary(filepath.Join("..", "..", "data", "tiles.yaml"))
	if err != nil {
		t.Fatalf("LoadLibrary() failed: %v", err)
	}

	biomes := make(map[biome.Type]int)
	for i := 0; i < lib.Len(); i++ {
		tile := lib.Tile(i)
		biomes[tile.Biome]++
		for _, s := range tile.Sockets {
			if !s.Open {
				t.Errorf("%s socket %s closed, want open by default", tile.ID, s.ID)
			}
		}
	}
	for _, b := range []biome.Type{biome.Any, "forest", "plains", "marsh", "tundra", "hazards"} {
		if biomes[b] == 0 {
			t.Errorf("no %s tiles in the sample library", b)
		}
	}

	i, ok := lib.Index("ruin")
	if !ok || lib.Tile(i).MaxConnections != 2 {
		t.Errorf("ruin MaxConnections = %d, want 2", lib.Tile(i).MaxConnections)
	}

	// Biome tiles only join their own biome or the wildcard tiles.
	eval := NewEvaluator(lib, []Exclusion{{A: "hazards", B: "plains"}}, 0.5)
	vent, _ := lib.Index("lava_vent")
	meadow, _ := lib.Index("meadow")
	hub, _ := lib.Index("hub")
	if eval.Compatible(vent, North, meadow, South) {
		t.Error("lava_vent connects to meadow across the hazards/plains exclusion")
	}
	if !eval.Compatible(vent, North, hub, South) {
		t.Error("lava_vent does not connect to hub")
	}
	if got := eval.Affinity(vent, meadow); got != 0.5 {
		t.Errorf("Affinity(lava_vent, meadow) = %v, want 0.5", got)
	}
	if got := eval.Affinity(vent, hub); got != 1 {
		t.Errorf("Affinity(lava_vent, hub) = %v, want 1", got)
	}
}
