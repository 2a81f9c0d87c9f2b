package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// CSVSet names one writer per output table.
type CSVSet struct {
	Patients     io.Writer
	Encounters   io.Writer
	Conditions   io.Writer
	Medications  io.Writer
	Procedures   io.Writer
	Observations io.Writer
	CarePlans    io.Writer
}

// CSV streams patients into a Synthea-style table set. Add may be called
// once per patient, in any order; Flush must be called before the
// writers are closed.
type CSV struct {
	patients     *csv.Writer
	encounters   *csv.Writer
	conditions   *csv.Writer
	medications  *csv.Writer
	procedures   *csv.Writer
	observations *csv.Writer
	carePlans    *csv.Writer
}

// NewCSV writes the header row of every table.
func NewCSV(set CSVSet) (*CSV, error) {
	c := &CSV{
		patients:     csv.NewWriter(set.Patients),
		encounters:   csv.NewWriter(set.Encounters),
		conditions:   csv.NewWriter(set.Conditions),
		medications:  csv.NewWriter(set.Medications),
		procedures:   csv.NewWriter(set.Procedures),
		observations: csv.NewWriter(set.Observations),
		carePlans:    csv.NewWriter(set.CarePlans),
	}
	headers := []struct {
		w      *csv.Writer
		fields []string
	}{
		{c.patients, []string{"Id", "BIRTHDATE", "DEATHDATE", "FIRST", "LAST", "GENDER", "RACE", "ETHNICITY", "CITY", "STATE", "INCOME"}},
		{c.encounters, []string{"Id", "START", "STOP", "PATIENT", "ENCOUNTERCLASS", "CODE", "DESCRIPTION", "REASONCODE"}},
		{c.conditions, []string{"START", "STOP", "PATIENT", "ENCOUNTER", "SYSTEM", "CODE", "DESCRIPTION"}},
		{c.medications, []string{"START", "STOP", "PATIENT", "ENCOUNTER", "CODE", "DESCRIPTION", "REASONCODE"}},
		{c.procedures, []string{"START", "STOP", "PATIENT", "ENCOUNTER", "SYSTEM", "CODE", "DESCRIPTION"}},
		{c.observations, []string{"DATE", "PATIENT", "ENCOUNTER", "CODE", "DESCRIPTION", "VALUE", "UNITS"}},
		{c.carePlans, []string{"Id", "START", "STOP", "PATIENT", "ENCOUNTER", "CODE", "DESCRIPTION"}},
	}
	for _, h := range headers {
		if err := h.w.Write(h.fields); err != nil {
			return nil, fmt.Errorf("export: writing csv header: %w", err)
		}
	}
	return c, nil
}

// Add appends one patient's rows across the table set.
func (c *CSV) Add(p *person.Person, rec *record.Record) error {
	death := ""
	if p.DeathDate != nil {
		death = p.DeathDate.Format(time.DateOnly)
	}
	err := c.patients.Write([]string{
		p.ID,
		p.BirthDate.Format(time.DateOnly),
		death,
		p.FirstName,
		p.LastName,
		string(p.Sex),
		p.Race,
		p.Ethnicity,
		p.City,
		p.State,
		strconv.Itoa(p.Income),
	})
	if err != nil {
		return err
	}

	for _, e := range rec.Events() {
		if err := c.addEvent(p.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSV) addEvent(patientID string, e record.Event) error {
	start := e.Start.Format(time.RFC3339)
	stop := ""
	if !e.Stop.IsZero() {
		stop = e.Stop.Format(time.RFC3339)
	}

	switch e.Kind {
	case record.KindEncounter:
		return c.encounters.Write([]string{e.ID, start, stop, patientID, e.Class, e.Code.Value, e.Code.Display, e.Reason})
	case record.KindCondition:
		return c.conditions.Write([]string{start, stop, patientID, e.EncounterID, e.Code.System, e.Code.Value, e.Code.Display})
	case record.KindMedication:
		return c.medications.Write([]string{start, stop, patientID, e.EncounterID, e.Code.Value, e.Code.Display, e.Reason})
	case record.KindProcedure:
		return c.procedures.Write([]string{start, stop, patientID, e.EncounterID, e.Code.System, e.Code.Value, e.Code.Display})
	case record.KindObservation:
		value := strconv.FormatFloat(e.Value, 'g', -1, 64)
		return c.observations.Write([]string{start, patientID, e.EncounterID, e.Code.Value, e.Code.Display, value, e.Unit})
	case record.KindCarePlan:
		return c.carePlans.Write([]string{e.ID, start, stop, patientID, e.EncounterID, e.Code.Value, e.Code.Display})
	case record.KindDeath:
		// DEATHDATE lives on the patient row.
		return nil
	default:
		return fmt.Errorf("export: unknown event kind %q", e.Kind)
	}
}

// Flush drains the buffered rows of every table.
func (c *CSV) Flush() error {
	for _, w := range []*csv.Writer{
		c.patients, c.encounters, c.conditions, c.medications,
		c.procedures, c.observations, c.carePlans,
	} {
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("export: flushing csv: %w", err)
		}
	}
	return nil
}
