package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lawnchairsociety/levelforge/internal/archive"
	"github.com/lawnchairsociety/levelforge/internal/graph"
)

// canvas is a character grid. Each map column is two characters wide so the
// map keeps a roughly square aspect in a terminal.
type canvas struct {
	w, h  int
	cells [][]byte
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]byte, h)}
	for y := range c.cells {
		c.cells[y] = []byte(strings.Repeat(" ", w))
	}
	return c
}

func (c *canvas) set(x, y int, ch byte) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = ch
	}
}

func (c *canvas) get(x, y int) byte {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		return c.cells[y][x]
	}
	return ' '
}

func (c *canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(strings.TrimRight(string(row), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// project maps world coordinates to canvas coordinates.
func project(x, y, scale int) (int, int) {
	return (x / scale) * 2, y / scale
}

func renderLevel(output *strings.Builder, doc *archive.Document, scale int, details bool) {
	output.WriteString(fmt.Sprintf("Level Map (Seed: %d, Mode: %s, Strategy: %s)\n", doc.Seed, doc.Mode, doc.Strategy))
	output.WriteString(fmt.Sprintf("Generated: %s  Digest: %s\n", doc.GeneratedAt.Format("2006-01-02 15:04:05"), shortDigest(doc.Digest)))
	output.WriteString(fmt.Sprintf("Nodes: %d completed, %d contradictions, %d in progress; %d connections\n",
		doc.Summary.Completed, doc.Summary.Contradictions, doc.Summary.InProgress, len(doc.Connections)))
	output.WriteString(strings.Repeat("=", 60) + "\n\n")

	renderConnectivity(output, doc)
	output.WriteString(renderMap(doc, scale).String())

	if details {
		renderNodeDetails(output, doc)
	}
}

// renderConnectivity reports nodes that cannot be reached from node 0.
// Directional connections are followed one way only.
func renderConnectivity(output *strings.Builder, doc *archive.Document) {
	if len(doc.Nodes) == 0 {
		output.WriteString("  (No nodes to display)\n\n")
		return
	}

	next := make(map[int][]int)
	for _, c := range doc.Connections {
		next[c.From] = append(next[c.From], c.To)
		if c.Type != graph.Directional.String() {
			next[c.To] = append(next[c.To], c.From)
		}
	}

	start := doc.Nodes[0].ID
	visited := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, id := range next[current] {
			if !visited[id] {
				visited[id] = true
				queue = append(queue, id)
			}
		}
	}

	var unreachable []int
	for _, n := range doc.Nodes {
		if !visited[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}

	if len(unreachable) > 0 {
		output.WriteString(fmt.Sprintf("WARNING: %d nodes unreachable from node %d!\n", len(unreachable), start))
		for _, id := range unreachable {
			n := doc.Node(id)
			output.WriteString(fmt.Sprintf("  - node %d (%d,%d) %s\n", id, n.X, n.Y, n.Phase))
		}
		output.WriteString("\n")
	} else {
		output.WriteString(fmt.Sprintf("All %d nodes are connected.\n\n", len(doc.Nodes)))
	}
}

// renderMap draws connections first and nodes on top.
func renderMap(doc *archive.Document, scale int) *canvas {
	w, h := doc.Width, doc.Height
	for _, n := range doc.Nodes {
		if n.X+1 > w {
			w = n.X + 1
		}
		if n.Y+1 > h {
			h = n.Y + 1
		}
	}
	cw, ch := project(w-1, h-1, scale)
	c := newCanvas(cw+1, ch+1)

	pos := make(map[int][2]int, len(doc.Nodes))
	for _, n := range doc.Nodes {
		x, y := project(n.X, n.Y, scale)
		pos[n.ID] = [2]int{x, y}
	}

	for _, conn := range doc.Connections {
		a, okA := pos[conn.From]
		b, okB := pos[conn.To]
		if !okA || !okB {
			continue
		}
		drawLine(c, a, b, lineChar(a, b, conn.Polarity != ""))
		if conn.Type == graph.Directional.String() {
			mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
			c.set(mx, my, arrowChar(conn.FromDir))
		}
	}

	for _, n := range doc.Nodes {
		p := pos[n.ID]
		c.set(p[0], p[1], nodeSymbol(&n))
	}
	return c
}

// drawLine plots the cells strictly between a and b.
func drawLine(c *canvas, a, b [2]int, ch byte) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	steps := max(abs(dx), abs(dy))
	for i := 1; i < steps; i++ {
		x := a[0] + (dx*i+sign(dx)*steps/2)/steps
		y := a[1] + (dy*i+sign(dy)*steps/2)/steps
		if c.get(x, y) == ' ' {
			c.set(x, y, ch)
		}
	}
}

func lineChar(a, b [2]int, gated bool) byte {
	if gated {
		return '~'
	}
	dx, dy := b[0]-a[0], b[1]-a[1]
	switch {
	case dy == 0:
		return '-'
	case dx == 0:
		return '|'
	case (dx > 0) == (dy > 0):
		return '\\'
	default:
		return '/'
	}
}

func arrowChar(d graph.Direction) byte {
	switch d {
	case graph.North:
		return '^'
	case graph.East:
		return '>'
	case graph.South:
		return 'v'
	default:
		return '<'
	}
}

// nodeSymbol picks a map symbol from the node's phase and tile. Forced
// collapses are drawn in lower case.
func nodeSymbol(n *archive.NodeData) byte {
	switch n.Phase {
	case "contradiction":
		return 'X'
	case "completed":
	default:
		return '?'
	}

	var sym byte
	switch n.Tile {
	case "hub":
		sym = 'H'
	case "corridor":
		sym = 'C'
	case "causeway":
		sym = 'W'
	case "bend":
		sym = 'B'
	case "":
		sym = '#'
	default:
		sym = strings.ToUpper(n.Tile[:1])[0]
	}
	if n.Forced && sym >= 'A' && sym <= 'Z' {
		sym += 'a' - 'A'
	}
	return sym
}

func renderNodeDetails(output *strings.Builder, doc *archive.Document) {
	degree := make(map[int]int)
	for _, c := range doc.Connections {
		degree[c.From]++
		degree[c.To]++
	}

	nodes := make([]archive.NodeData, len(doc.Nodes))
	copy(nodes, doc.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	output.WriteString("\nNode Details:\n")
	for _, n := range nodes {
		tile := n.Tile
		if tile == "" {
			tile = "-"
		}
		details := fmt.Sprintf("  [%c] node %-3d (%d,%d) %-12s %-10s links:%d",
			nodeSymbol(&n), n.ID, n.X, n.Y, truncate(tile, 12), truncate(n.Biome, 10), degree[n.ID])

		var markers []string
		if n.Forced {
			markers = append(markers, "forced")
		}
		if n.Degraded {
			markers = append(markers, "degraded")
		}
		if n.Phase != "completed" {
			markers = append(markers, n.Phase)
		}
		if len(markers) > 0 {
			details += " [" + strings.Join(markers, ", ") + "]"
		}
		output.WriteString(details + "\n")
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func getLegend() string {
	return `
Legend:
  H  Hub (four-way)
  C  Corridor (north-south)
  W  Causeway (east-west, tide gated)
  B  Bend (north-east)
  #  Completed with no tile id
  X  Contradiction
  ?  Not collapsed
  lower case  Forced collapse

  Connections:
  - | / \  Open passage
  ~        Polarity gated passage
  > < ^ v  One-way passage, pointing away from the gate
`
}
