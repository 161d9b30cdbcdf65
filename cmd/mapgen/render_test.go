package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/lawnchairsociety/levelforge/internal/archive"
	"github.com/lawnchairsociety/levelforge/internal/graph"
)

func lineDoc() archive.Document {
	return archive.Document{
		Version: archive.Version,
		Seed:    12345,
		Digest:  "0123456789abcdef",
		Width:   9,
		Height:  5,
		Mode:    "partial",
		Nodes: []archive.NodeData{
			{ID: 0, X: 0, Y: 2, Phase: "completed", Tile: "hub", Biome: "forest"},
			{ID: 1, X: 4, Y: 2, Phase: "completed", Tile: "causeway", Biome: "marsh", Forced: true},
			{ID: 2, X: 8, Y: 2, Phase: "contradiction", Biome: "tundra"},
			{ID: 3, X: 4, Y: 0, Phase: "in_progress", Degraded: true},
		},
		Connections: []archive.ConnectionData{
			{From: 0, To: 1, FromDir: graph.East, ToDir: graph.West, Type: "bidirectional", Cost: 4},
			{From: 1, To: 2, FromDir: graph.East, ToDir: graph.West, Type: "directional", Polarity: "tide", Cost: 8},
		},
	}
}

func TestNodeSymbol(t *testing.T) {
	tests := []struct {
		node archive.NodeData
		want byte
	}{
		{archive.NodeData{Phase: "completed", Tile: "hub"}, 'H'},
		{archive.NodeData{Phase: "completed", Tile: "corridor"}, 'C'},
		{archive.NodeData{Phase: "completed", Tile: "causeway"}, 'W'},
		{archive.NodeData{Phase: "completed", Tile: "bend"}, 'B'},
		{archive.NodeData{Phase: "completed", Tile: "lava_pool"}, 'L'},
		{archive.NodeData{Phase: "completed", Tile: "hub", Forced: true}, 'h'},
		{archive.NodeData{Phase: "completed"}, '#'},
		{archive.NodeData{Phase: "contradiction", Tile: "hub"}, 'X'},
		{archive.NodeData{Phase: "in_progress"}, '?'},
		{archive.NodeData{Phase: "initialized"}, '?'},
	}
	for _, tt := range tests {
		if got := nodeSymbol(&tt.node); got != tt.want {
			t.Errorf("nodeSymbol(%+v) = %q, want %q", tt.node, got, tt.want)
		}
	}
}

func TestLineChar(t *testing.T) {
	tests := []struct {
		a, b  [2]int
		gated bool
		want  byte
	}{
		{[2]int{0, 0}, [2]int{6, 0}, false, '-'},
		{[2]int{0, 0}, [2]int{0, 3}, false, '|'},
		{[2]int{0, 0}, [2]int{4, 2}, false, '\\'},
		{[2]int{4, 0}, [2]int{0, 2}, false, '/'},
		{[2]int{0, 0}, [2]int{6, 0}, true, '~'},
	}
	for _, tt := range tests {
		if got := lineChar(tt.a, tt.b, tt.gated); got != tt.want {
			t.Errorf("lineChar(%v, %v, %v) = %q, want %q", tt.a, tt.b, tt.gated, got, tt.want)
		}
	}
}

func TestRenderMap(t *testing.T) {
	doc := lineDoc()
	c := renderMap(&doc, 1)

	// x doubles on the canvas: nodes at 0, 8 and 16 on row 2.
	want := "H-------w~~~>~~~X"
	if got := strings.TrimRight(string(c.cells[2]), " "); got != want {
		t.Errorf("row 2 = %q, want %q", got, want)
	}
	if got := c.get(8, 0); got != '?' {
		t.Errorf("node 3 symbol = %q, want '?'", got)
	}
}

func TestRenderMapScaled(t *testing.T) {
	doc := lineDoc()
	c := renderMap(&doc, 2)
	if c.w != 9 || c.h != 3 {
		t.Fatalf("canvas = %dx%d, want 9x3", c.w, c.h)
	}
	if got := c.get(4, 1); got != 'w' {
		t.Errorf("scaled node 1 = %q, want 'w'", got)
	}
}

func TestRenderConnectivity(t *testing.T) {
	doc := lineDoc()
	var out strings.Builder
	renderConnectivity(&out, &doc)
	text := out.String()

	if !strings.Contains(text, "WARNING: 1 nodes unreachable from node 0") {
		t.Errorf("missing unreachable warning:\n%s", text)
	}
	if !strings.Contains(text, "node 3 (4,0) in_progress") {
		t.Errorf("node 3 not listed:\n%s", text)
	}

	// Directional connections are one-way: starting at node 2 reaches nothing.
	doc.Nodes[0], doc.Nodes[2] = doc.Nodes[2], doc.Nodes[0]
	out.Reset()
	renderConnectivity(&out, &doc)
	if !strings.Contains(out.String(), "3 nodes unreachable from node 2") {
		t.Errorf("directional edge followed backwards:\n%s", out.String())
	}
}

func TestRenderLevelFromExport(t *testing.T) {
	doc := lineDoc()
	path := filepath.Join(t.TempDir(), archive.LevelName(&doc))
	if err := archive.WriteYAML(path, doc); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}

	loaded, err := readLevel(path)
	if err != nil {
		t.Fatalf("readLevel() error = %v", err)
	}

	var out strings.Builder
	renderLevel(&out, &loaded, 1, true)
	text := out.String()

	for _, want := range []string{
		"Level Map (Seed: 12345, Mode: partial",
		"Digest: 0123456789ab",
		"[w] node 1",
		"[forced]",
		"[?] node 3",
		"[degraded, in_progress]",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestReadLevelSnapshot(t *testing.T) {
	doc := lineDoc()
	path := filepath.Join(t.TempDir(), archive.SnapshotName(&doc))
	if err := archive.WriteSnapshot(path, doc); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	loaded, err := readLevel(path)
	if err != nil {
		t.Fatalf("readLevel() error = %v", err)
	}
	if loaded.Seed != doc.Seed || len(loaded.Nodes) != 4 {
		t.Errorf("readLevel() = seed %d, %d nodes", loaded.Seed, len(loaded.Nodes))
	}
}
