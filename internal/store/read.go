package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GetRun fetches one run's metadata.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r        Run
		seed     int64
		stepSecs int64
		end      string
		modules  string
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed, population, end_date, step_seconds, modules, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &seed, &r.Population, &end, &stepSecs, &modules, &started, &finished)
	if err != nil {
		return Run{}, fmt.Errorf("get run %q: %w", runID, err)
	}

	r.Seed = uint64(seed)
	r.Step = time.Duration(stepSecs) * time.Second
	if modules != "" {
		r.Modules = strings.Split(modules, ",")
	}
	if r.End, err = time.Parse(time.RFC3339, end); err != nil {
		return Run{}, fmt.Errorf("get run %q: end date: %w", runID, err)
	}
	if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return Run{}, fmt.Errorf("get run %q: started at: %w", runID, err)
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(time.RFC3339, finished.String); err != nil {
			return Run{}, fmt.Errorf("get run %q: finished at: %w", runID, err)
		}
	}
	return r, nil
}

// ListRunIDs returns all run ids, most recently started first; ties
// break on id so the order is reproducible.
func (s *Store) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountPatients reports the number of persisted patients in a run.
func (s *Store) CountPatients(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patients WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

// Failure is one persisted patient failure row.
type Failure struct {
	Index   int
	Kind    string
	Module  string
	State   string
	At      string
	Message string
}

// ListFailures returns a run's failures ordered by patient index.
func (s *Store) ListFailures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, kind, module, state, at, message
		FROM failures WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Index, &f.Kind, &f.Module, &f.State, &f.At, &f.Message); err != nil {
			return nil, fmt.Errorf("list failures: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
