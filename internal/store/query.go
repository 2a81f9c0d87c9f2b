package store

import (
	"context"
	"fmt"
	"strings"
)

// EventFilter narrows a stats query. Zero-valued fields are
// unconstrained. Values are always bound as parameters, never
// interpolated into SQL.
type EventFilter struct {
	RunID  string
	Kind   string
	Module string
	Code   string
}

// compileEventFilter builds the WHERE clause for a filter. Every query
// built on top of it must add an ORDER BY with a deterministic
// tiebreaker; unordered aggregates make stats output flap between runs.
func compileEventFilter(f EventFilter) (string, []any) {
	var (
		clauses []string
		params  []any
	)
	if f.RunID != "" {
		clauses = append(clauses, "p.run_id = ?")
		params = append(params, f.RunID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "e.kind = ?")
		params = append(params, f.Kind)
	}
	if f.Module != "" {
		clauses = append(clauses, "e.module = ?")
		params = append(params, f.Module)
	}
	if f.Code != "" {
		clauses = append(clauses, "e.code = ?")
		params = append(params, f.Code)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), params
}

// KindCount is one row of an event kind aggregate.
type KindCount struct {
	Kind  string
	Count int
}

// EventCounts aggregates matching events by kind, ordered by kind.
func (s *Store) EventCounts(ctx context.Context, f EventFilter) ([]KindCount, error) {
	where, params := compileEventFilter(f)
	query := `
		SELECT e.kind, COUNT(*)
		FROM events e JOIN patients p ON e.patient_id = p.id` +
		where + `
		GROUP BY e.kind
		ORDER BY e.kind`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	defer rows.Close()

	var out []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, fmt.Errorf("event counts: %w", err)
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

// CodeCount is one row of a clinical code aggregate.
type CodeCount struct {
	System  string
	Code    string
	Display string
	Count   int
}

// TopCodes returns the most frequent codes among matching events,
// descending by count with code as the tiebreaker.
func (s *Store) TopCodes(ctx context.Context, f EventFilter, limit int) ([]CodeCount, error) {
	if limit <= 0 {
		limit = 10
	}
	where, params := compileEventFilter(f)
	query := `
		SELECT e.system, e.code, e.display, COUNT(*) AS n
		FROM events e JOIN patients p ON e.patient_id = p.id` +
		where + `
		GROUP BY e.system, e.code, e.display
		ORDER BY n DESC, e.code
		LIMIT ?`
	params = append(params, limit)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("top codes: %w", err)
	}
	defer rows.Close()

	var out []CodeCount
	for rows.Next() {
		var cc CodeCount
		if err := rows.Scan(&cc.System, &cc.Code, &cc.Display, &cc.Count); err != nil {
			return nil, fmt.Errorf("top codes: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}
