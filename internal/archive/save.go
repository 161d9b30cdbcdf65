package archive

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects the outputs Save produces.
type Options struct {
	Dir      string
	YAML     bool
	Snapshot bool
	Sink     *S3Sink // nil disables upload
}

// Saved lists what Save wrote.
type Saved struct {
	YAMLPath     string
	SnapshotPath string
	ObjectKey    string
}

// LevelName is the YAML file name for doc.
func LevelName(doc *Document) string {
	return fmt.Sprintf("level-%d.yaml", doc.Seed)
}

// SnapshotName is the snapshot file name for doc. The digest prefix keeps
// snapshots of different libraries or configs for one seed apart.
func SnapshotName(doc *Document) string {
	digest := doc.Digest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	return fmt.Sprintf("level-%d-%s.lfs.zst", doc.Seed, digest)
}

// Save writes doc in every format enabled by opts. Outputs written before a
// failure are reported in the returned Saved.
func Save(ctx context.Context, doc Document, opts Options) (Saved, error) {
	var saved Saved

	if opts.YAML {
		p := filepath.Join(opts.Dir, LevelName(&doc))
		if err := WriteYAML(p, doc); err != nil {
			return saved, err
		}
		saved.YAMLPath = p
	}

	if opts.Snapshot {
		p := filepath.Join(opts.Dir, SnapshotName(&doc))
		if err := WriteSnapshot(p, doc); err != nil {
			return saved, fmt.Errorf("write snapshot: %w", err)
		}
		saved.SnapshotPath = p
	}

	if opts.Sink != nil {
		key, err := opts.Sink.Put(ctx, doc)
		if err != nil {
			return saved, err
		}
		saved.ObjectKey = key
	}
	return saved, nil
}
