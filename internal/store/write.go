package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cohortgen/cohortgen/internal/engine"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// Run is the metadata row for one generation run.
type Run struct {
	ID         string
	Seed       uint64
	Population int
	End        time.Time
	Step       time.Duration
	Modules    []string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in flight
}

// WriteRun inserts the run metadata row. Duplicate run ids are silently
// ignored so a resumed run does not fail the insert.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seed, population, end_date, step_seconds, modules, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		int64(r.Seed),
		r.Population,
		r.End.Format(time.RFC3339),
		int64(r.Step/time.Second),
		strings.Join(r.Modules, ","),
		r.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		at.Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WritePatient inserts one patient and their full event sequence in a
// single transaction, so a crash never leaves a patient with half a
// record. Duplicate patient ids are silently ignored.
func (s *Store) WritePatient(ctx context.Context, runID string, p *person.Person, rec *record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write patient: begin tx: %w", err)
	}
	defer tx.Rollback()

	var death any
	if p.DeathDate != nil {
		death = p.DeathDate.Format(time.RFC3339)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO patients
		(id, run_id, idx, first_name, last_name, gender, race, ethnicity,
		 city, state, income, birth_date, death_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		p.ID, runID, p.Index, p.FirstName, p.LastName, string(p.Sex),
		p.Race, p.Ethnicity, p.City, p.State, p.Income,
		p.BirthDate.Format(time.RFC3339), death,
	)
	if err != nil {
		return fmt.Errorf("write patient: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write patient: rows affected: %w", err)
	}
	if inserted == 0 {
		// Patient already persisted; the event rows came with it.
		return tx.Commit()
	}

	for seq, e := range rec.Events() {
		var stop any
		if !e.Stop.IsZero() {
			stop = e.Stop.Format(time.RFC3339)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events
			(id, patient_id, seq, kind, system, code, display, start, stop,
			 encounter_id, module, state, class, reason, value, unit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, p.ID, seq, string(e.Kind),
			e.Code.System, e.Code.Value, e.Code.Display,
			e.Start.Format(time.RFC3339), stop,
			e.EncounterID, e.Module, e.State, e.Class, e.Reason, e.Value, e.Unit,
		)
		if err != nil {
			return fmt.Errorf("write patient: event %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write patient: commit: %w", err)
	}
	return nil
}

// WriteFailure records a patient-scoped simulation failure. One row per
// (run, index); retries overwrite nothing.
func (s *Store) WriteFailure(ctx context.Context, runID string, se *engine.SimError) error {
	at := ""
	if !se.Time.IsZero() {
		at = se.Time.Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures
		(run_id, idx, kind, module, state, at, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		runID, se.Index, string(se.Kind), se.Module, se.State, at, se.Error(),
	)
	if err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}
