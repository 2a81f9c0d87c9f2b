package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cohortgen/cohortgen/internal/config"
	"github.com/cohortgen/cohortgen/internal/engine"
	"github.com/cohortgen/cohortgen/internal/export"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/store"
)

// sinks fans one patient out to every configured output: CSV tables,
// per-patient FHIR bundles, an NDJSON event stream, and a SQLite
// database. Results arrive from the pool's single consumer goroutine,
// so no sink needs its own locking.
type sinks struct {
	csv     *export.CSV
	ndjson  *export.NDJSON
	fhirDir string

	st    *store.Store
	runID string

	files []*os.File
}

// csvTableNames fixes the on-disk file per table.
var csvTableNames = []string{
	"patients.csv", "encounters.csv", "conditions.csv",
	"medications.csv", "procedures.csv", "observations.csv", "careplans.csv",
}

// openSinks prepares every output named by the config. A partially
// opened sink set is closed before the error returns.
func openSinks(ctx context.Context, cfg config.Config, run store.Run) (*sinks, error) {
	s := &sinks{runID: run.ID}
	ok := false
	defer func() {
		if !ok {
			s.close(ctx)
		}
	}()

	for _, format := range cfg.Output.Formats {
		switch format {
		case config.FormatCSV:
			if err := s.openCSV(cfg.Output.Dir); err != nil {
				return nil, err
			}
		case config.FormatNDJSON:
			f, err := s.create(filepath.Join(cfg.Output.Dir, "events.ndjson"))
			if err != nil {
				return nil, err
			}
			s.ndjson = export.NewNDJSON(f)
		case config.FormatFHIR:
			dir := filepath.Join(cfg.Output.Dir, "fhir")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating fhir output dir: %w", err)
			}
			s.fhirDir = dir
		}
	}

	if cfg.Output.Database != "" {
		st, err := store.Open(cfg.Output.Database)
		if err != nil {
			return nil, fmt.Errorf("opening database sink: %w", err)
		}
		s.st = st
		if err := st.WriteRun(ctx, run); err != nil {
			return nil, err
		}
	}

	ok = true
	return s, nil
}

func (s *sinks) create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	s.files = append(s.files, f)
	return f, nil
}

func (s *sinks) openCSV(dir string) error {
	writers := make([]*os.File, 0, len(csvTableNames))
	for _, name := range csvTableNames {
		f, err := s.create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}
	csvSet, err := export.NewCSV(export.CSVSet{
		Patients:     writers[0],
		Encounters:   writers[1],
		Conditions:   writers[2],
		Medications:  writers[3],
		Procedures:   writers[4],
		Observations: writers[5],
		CarePlans:    writers[6],
	})
	if err != nil {
		return err
	}
	s.csv = csvSet
	return nil
}

// add routes one completed patient to every open sink.
func (s *sinks) add(ctx context.Context, p *person.Person, rec *record.Record) error {
	if s.csv != nil {
		if err := s.csv.Add(p, rec); err != nil {
			return err
		}
	}
	if s.ndjson != nil {
		if err := s.ndjson.Add(p, rec); err != nil {
			return err
		}
	}
	if s.fhirDir != "" {
		if err := s.writeBundle(p, rec); err != nil {
			return err
		}
	}
	if s.st != nil {
		if err := s.st.WritePatient(ctx, s.runID, p, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *sinks) writeBundle(p *person.Person, rec *record.Record) error {
	f, err := os.Create(filepath.Join(s.fhirDir, fmt.Sprintf("patient_%06d.json", p.Index)))
	if err != nil {
		return fmt.Errorf("creating bundle file: %w", err)
	}
	if err := export.WriteFHIR(f, p, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fail records a patient-scoped failure in the database sink, when one
// is configured. File sinks carry successes only.
func (s *sinks) fail(ctx context.Context, err error) error {
	if s.st == nil {
		return nil
	}
	se, ok := engine.AsSimError(err)
	if !ok {
		return nil
	}
	return s.st.WriteFailure(ctx, s.runID, se)
}

// close flushes and releases everything, keeping the first error.
func (s *sinks) close(ctx context.Context) error {
	var errs []error
	if s.csv != nil {
		errs = append(errs, s.csv.Flush())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	if s.st != nil {
		errs = append(errs, s.st.FinishRun(ctx, s.runID, time.Now().UTC()))
		errs = append(errs, s.st.Close())
	}
	return errors.Join(errs...)
}
