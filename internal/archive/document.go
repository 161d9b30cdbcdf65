// Package archive exports generated levels as YAML documents and compressed
// snapshots, and uploads snapshots to S3-compatible storage.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/graph"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
	"gopkg.in/yaml.v3"
)

// Version is the document format version.
const Version = 1

// Document is the serialized form of a generated level.
type Document struct {
	Version     int                 `yaml:"version" json:"version"`
	Seed        uint32              `yaml:"seed" json:"seed"`
	Digest      string              `yaml:"digest" json:"digest"`
	Width       int                 `yaml:"width" json:"width"`
	Height      int                 `yaml:"height" json:"height"`
	Strategy    string              `yaml:"strategy" json:"strategy"`
	Mode        string              `yaml:"mode" json:"mode"`
	Traversal   string              `yaml:"traversal" json:"traversal"`
	GeneratedAt time.Time           `yaml:"generated_at" json:"generated_at"`
	Summary     SummaryData         `yaml:"summary" json:"summary"`
	Nodes       []NodeData          `yaml:"nodes" json:"nodes"`
	Connections []ConnectionData    `yaml:"connections" json:"connections"`
	Polarities  map[string][]string `yaml:"polarities,omitempty" json:"polarities,omitempty"`
}

// SummaryData is the run summary as stored in a document.
type SummaryData struct {
	Nodes           int `yaml:"nodes" json:"nodes"`
	Completed       int `yaml:"completed" json:"completed"`
	Contradictions  int `yaml:"contradictions" json:"contradictions"`
	InProgress      int `yaml:"in_progress" json:"in_progress"`
	Ticks           int `yaml:"ticks" json:"ticks"`
	Restarts        int `yaml:"restarts" json:"restarts"`
	Degraded        int `yaml:"degraded" json:"degraded"`
	BoundViolations int `yaml:"bound_violations" json:"bound_violations"`
	Conflicts       int `yaml:"conflicts" json:"conflicts"`
}

// NodeData is a serialized node.
type NodeData struct {
	ID          int         `yaml:"id" json:"id"`
	Level       graph.Level `yaml:"level" json:"level"`
	Parent      int         `yaml:"parent" json:"parent"`
	X           int         `yaml:"x" json:"x"`
	Y           int         `yaml:"y" json:"y"`
	Biome       string      `yaml:"biome" json:"biome"`
	Secondary   string      `yaml:"secondary_biome,omitempty" json:"secondary_biome,omitempty"`
	Strength    float64     `yaml:"strength" json:"strength"`
	LoopDensity float64     `yaml:"loop_density" json:"loop_density"`
	Phase       string      `yaml:"phase" json:"phase"`
	Tile        string      `yaml:"tile,omitempty" json:"tile,omitempty"`
	Forced      bool        `yaml:"forced,omitempty" json:"forced,omitempty"`
	Degraded    bool        `yaml:"degraded,omitempty" json:"degraded,omitempty"`
}

// ConnectionData is a serialized connection.
type ConnectionData struct {
	From     int             `yaml:"from" json:"from"`
	To       int             `yaml:"to" json:"to"`
	FromDir  graph.Direction `yaml:"from_dir" json:"from_dir"`
	ToDir    graph.Direction `yaml:"to_dir" json:"to_dir"`
	Type     string          `yaml:"type" json:"type"`
	Polarity string          `yaml:"polarity,omitempty" json:"polarity,omitempty"`
	Cost     float64         `yaml:"cost" json:"cost"`
}

// FromResult converts a generation result for a world of the given size.
func FromResult(res *worldgen.Result, width, height int) Document {
	s := res.Summary
	doc := Document{
		Version:     Version,
		Seed:        s.Seed,
		Digest:      s.Digest,
		Width:       width,
		Height:      height,
		Strategy:    string(s.Strategy),
		Mode:        string(res.Rules.Mode),
		Traversal:   res.Rules.Traversal.String(),
		GeneratedAt: time.Now().UTC(),
		Summary: SummaryData{
			Nodes:           s.Nodes,
			Completed:       s.Completed,
			Contradictions:  s.Contradictions,
			InProgress:      s.InProgress,
			Ticks:           s.Ticks,
			Restarts:        s.Restarts,
			Degraded:        s.Degraded,
			BoundViolations: s.BoundViolations,
			Conflicts:       s.Conflicts,
		},
		Nodes:       make([]NodeData, 0, res.Graph.Len()),
		Connections: make([]ConnectionData, 0, len(res.Graph.Connections)),
	}

	if len(res.Rules.Polarities) > 0 {
		doc.Polarities = make(map[string][]string, len(res.Rules.Polarities))
		for b, ps := range res.Rules.Polarities {
			names := make([]string, len(ps))
			for i, p := range ps {
				names[i] = string(p)
			}
			doc.Polarities[string(b)] = names
		}
	}

	for i, n := range res.Graph.Nodes {
		st := res.States[i]
		doc.Nodes = append(doc.Nodes, NodeData{
			ID:          n.ID,
			Level:       n.Level,
			Parent:      n.ParentID,
			X:           n.Pos.X,
			Y:           n.Pos.Y,
			Biome:       string(n.Biome.Primary),
			Secondary:   string(n.Biome.Secondary),
			Strength:    n.Biome.Strength,
			LoopDensity: n.LoopDensity,
			Phase:       st.Phase.String(),
			Tile:        res.TileID(i),
			Forced:      st.Forced,
			Degraded:    res.Placement.IsDegraded(i),
		})
	}

	for _, c := range res.Graph.Connections {
		doc.Connections = append(doc.Connections, ConnectionData{
			From:     c.From,
			To:       c.To,
			FromDir:  c.FromDir,
			ToDir:    c.ToDir,
			Type:     c.Type.String(),
			Polarity: c.RequiredPolarity,
			Cost:     c.Cost,
		})
	}
	return doc
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id int) *NodeData {
	if id < 0 || id >= len(d.Nodes) || d.Nodes[id].ID != id {
		for i := range d.Nodes {
			if d.Nodes[i].ID == id {
				return &d.Nodes[i]
			}
		}
		return nil
	}
	return &d.Nodes[id]
}

// WriteYAML saves the document to a YAML file, creating parent directories.
func WriteYAML(path string, doc Document) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal level document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write level file: %w", err)
	}
	return nil
}

// ReadYAML loads a document written by WriteYAML.
func ReadYAML(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read level file: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse level YAML: %w", err)
	}
	if doc.Version != Version {
		return doc, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, doc.Version)
	}
	return doc, nil
}
