package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

var directions = []wfc.Direction{wfc.North, wfc.East, wfc.South, wfc.West}

// renderTiles lists each tile with its open sockets.
func renderTiles(output *strings.Builder, lib *wfc.Library) {
	for i := 0; i < lib.Len(); i++ {
		t := lib.Tile(i)
		var sockets []string
		for _, s := range t.Sockets {
			if !s.Open {
				continue
			}
			label := s.Direction.String()
			if !s.RequiredPolarity.IsNone() {
				label += "(" + string(s.RequiredPolarity) + ")"
			}
			sockets = append(sockets, label)
		}
		biome := string(t.Biome)
		if biome == "" {
			biome = "-"
		}
		fmt.Fprintf(output, "  %-14s w=%-5.2f biome=%-10s links=%d..%d  %s\n",
			t.ID, t.Weight, biome, t.MinConnections, t.MaxConnections, strings.Join(sockets, " "))
	}
	output.WriteString("\n")
}

// renderMatrix prints, for each direction, which tiles may sit on that side
// of each tile.
func renderMatrix(output *strings.Builder, eval *wfc.Evaluator) {
	lib := eval.Library()
	output.WriteString("Compatible neighbours:\n")
	for i := 0; i < lib.Len(); i++ {
		fmt.Fprintf(output, "  %s\n", lib.Tile(i).ID)
		for _, d := range directions {
			var ids []string
			for j := 0; j < lib.Len(); j++ {
				if eval.Compatible(i, d, j, d.Opposite()) {
					ids = append(ids, lib.Tile(j).ID)
				}
			}
			if len(ids) > 0 {
				fmt.Fprintf(output, "    %-6s %s\n", d, strings.Join(ids, ", "))
			}
		}
	}
	output.WriteString("\n")
}

// lint reports tiles that can never take part in a connection and open
// sockets nothing can attach to.
func lint(eval *wfc.Evaluator) []string {
	lib := eval.Library()
	var warnings []string
	for i := 0; i < lib.Len(); i++ {
		t := lib.Tile(i)
		partners := 0
		for _, d := range directions {
			s, ok := t.Socket(d)
			if !ok || !s.Open {
				continue
			}
			found := false
			for j := 0; j < lib.Len(); j++ {
				if eval.Compatible(i, d, j, d.Opposite()) {
					found = true
					break
				}
			}
			if found {
				partners++
			} else {
				warnings = append(warnings, fmt.Sprintf("tile %s: %s socket has no compatible neighbour", t.ID, d))
			}
		}
		if partners < t.MinConnections {
			warnings = append(warnings, fmt.Sprintf("tile %s: needs %d connections but only %d sockets can connect",
				t.ID, t.MinConnections, partners))
		}
	}
	return warnings
}

// writeLibrary saves lib in the format LoadLibrary reads.
func writeLibrary(path string, lib *wfc.Library, source string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# Tile library (from %s)\n", source)
	fmt.Fprintf(f, "# Tile count: %d\n\n", lib.Len())

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	if err := encoder.Encode(lib); err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}
	return encoder.Close()
}
