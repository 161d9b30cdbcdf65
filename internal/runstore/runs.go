package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

// Run is one recorded generation run.
type Run struct {
	ID              int64         `json:"id"`
	Seed            uint32        `json:"seed"`
	Digest          string        `json:"digest"`
	Mode            string        `json:"mode"`
	Strategy        string        `json:"strategy"`
	Nodes           int           `json:"nodes"`
	Completed       int           `json:"completed"`
	Contradictions  int           `json:"contradictions"`
	InProgress      int           `json:"in_progress"`
	Ticks           int           `json:"ticks"`
	Restarts        int           `json:"restarts"`
	Degraded        int           `json:"degraded"`
	BoundViolations int           `json:"bound_violations"`
	Conflicts       int           `json:"conflicts"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	Assignments     []Assignment  `json:"assignments,omitempty"`
}

// Assignment is the tile a node ended up with.
type Assignment struct {
	NodeID int    `json:"node_id"`
	TileID string `json:"tile_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Biome  string `json:"biome"`
	Phase  string `json:"phase"`
	Forced bool   `json:"forced"`
}

// NewRun builds a record from a generation result and the error Generate
// returned with it.
func NewRun(res *worldgen.Result, runErr error) *Run {
	s := res.Summary
	run := &Run{
		Seed:            s.Seed,
		Digest:          s.Digest,
		Mode:            string(res.Rules.Mode),
		Strategy:        string(s.Strategy),
		Nodes:           s.Nodes,
		Completed:       s.Completed,
		Contradictions:  s.Contradictions,
		InProgress:      s.InProgress,
		Ticks:           s.Ticks,
		Restarts:        s.Restarts,
		Degraded:        s.Degraded,
		BoundViolations: s.BoundViolations,
		Conflicts:       s.Conflicts,
		Elapsed:         s.Elapsed,
		Assignments:     make([]Assignment, 0, res.Graph.Len()),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for i, n := range res.Graph.Nodes {
		run.Assignments = append(run.Assignments, Assignment{
			NodeID: n.ID,
			TileID: res.TileID(i),
			X:      n.Pos.X,
			Y:      n.Pos.Y,
			Biome:  string(n.Biome.Primary),
			Phase:  res.States[i].Phase.String(),
			Forced: res.States[i].Forced,
		})
	}
	return run
}

const runColumns = `id, seed, digest, mode, strategy, nodes, completed, contradictions,
	in_progress, ticks, restarts, degraded, bound_violations, conflicts, elapsed_ms, error, created_at`

// Statements are written with ? placeholders and rebound per dialect.
const (
	insertRunSQL = `INSERT INTO runs (seed, digest, mode, strategy, nodes, completed, contradictions,
			in_progress, ticks, restarts, degraded, bound_violations, conflicts,
			elapsed_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertAssignmentSQL = `INSERT INTO assignments (run_id, node_id, tile_id, x, y, biome, phase, forced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	selectRunSQL         = `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	selectAssignmentsSQL = `SELECT node_id, tile_id, x, y, biome, phase, forced
		FROM assignments
		WHERE run_id = ?
		ORDER BY node_id ASC`
	listRunsSQL    = `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	runsForSeedSQL = `SELECT ` + runColumns + ` FROM runs WHERE seed = ? ORDER BY id ASC`
	hasDigestSQL   = `SELECT 1 FROM runs WHERE digest = ?`
)

// RecordRun stores a run and its assignments in one transaction and sets
// run.ID. A run whose digest is already stored returns ErrDuplicateRun.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, err := s.dialect.insertID(ctx, tx, insertRunSQL,
		int64(run.Seed), run.Digest, run.Mode, run.Strategy, run.Nodes, run.Completed,
		run.Contradictions, run.InProgress, run.Ticks, run.Restarts, run.Degraded,
		run.BoundViolations, run.Conflicts, run.Elapsed.Milliseconds(), run.Error, run.CreatedAt)
	if s.dialect.isDuplicate(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.Digest)
	}
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(insertAssignmentSQL))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range run.Assignments {
		if _, err := stmt.ExecContext(ctx, id, a.NodeID, a.TileID, a.X, a.Y, a.Biome, a.Phase, a.Forced); err != nil {
			return fmt.Errorf("insert assignment %d: %w", a.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

// HasDigest reports whether a run with this digest is stored.
func (s *Store) HasDigest(ctx context.Context, digest string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(hasDigestSQL), digest).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run     Run
		seed    int64
		elapsed int64
	)
	err := row.Scan(&run.ID, &seed, &run.Digest, &run.Mode, &run.Strategy, &run.Nodes,
		&run.Completed, &run.Contradictions, &run.InProgress, &run.Ticks, &run.Restarts,
		&run.Degraded, &run.BoundViolations, &run.Conflicts, &elapsed, &run.Error, &run.CreatedAt)
	if err != nil {
		return run, err
	}
	run.Seed = uint32(seed)
	run.Elapsed = time.Duration(elapsed) * time.Millisecond
	return run, nil
}

// GetRun returns a run with its assignments ordered by node id.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(selectRunSQL), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(selectAssignmentsSQL), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.NodeID, &a.TileID, &a.X, &a.Y, &a.Biome, &a.Phase, &a.Forced); err != nil {
			return nil, err
		}
		run.Assignments = append(run.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns up to limit runs, newest first, without assignments.
// A limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := listRunsSQL
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRuns(ctx, query, args...)
}

// RunsForSeed returns every run started from seed, oldest first.
func (s *Store) RunsForSeed(ctx context.Context, seed uint32) ([]Run, error) {
	return s.queryRuns(ctx, runsForSeedSQL, int64(seed))
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
