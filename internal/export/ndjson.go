package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// eventRow is one flat NDJSON line. Zero-valued optional fields are
// omitted so consumers see only what the event carries.
type eventRow struct {
	PatientID   string   `json:"patient_id"`
	EventID     string   `json:"event_id"`
	Kind        string   `json:"kind"`
	System      string   `json:"system,omitempty"`
	Code        string   `json:"code,omitempty"`
	Display     string   `json:"display,omitempty"`
	Start       string   `json:"start"`
	Stop        string   `json:"stop,omitempty"`
	EncounterID string   `json:"encounter_id,omitempty"`
	Module      string   `json:"module"`
	State       string   `json:"state"`
	Class       string   `json:"class,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

// NDJSON streams events as one JSON object per line, in record order.
// The format is deliberately flat for piping into jq and columnar
// loaders.
type NDJSON struct {
	enc *json.Encoder
}

// NewNDJSON wraps w.
func NewNDJSON(w io.Writer) *NDJSON {
	return &NDJSON{enc: json.NewEncoder(w)}
}

// Add writes one line per event in the patient's record.
func (n *NDJSON) Add(p *person.Person, rec *record.Record) error {
	for _, e := range rec.Events() {
		row := eventRow{
			PatientID:   p.ID,
			EventID:     e.ID,
			Kind:        string(e.Kind),
			System:      e.Code.System,
			Code:        e.Code.Value,
			Display:     e.Code.Display,
			Start:       e.Start.Format(time.RFC3339),
			EncounterID: e.EncounterID,
			Module:      e.Module,
			State:       e.State,
			Class:       e.Class,
			Reason:      e.Reason,
			Unit:        e.Unit,
		}
		if !e.Stop.IsZero() {
			row.Stop = e.Stop.Format(time.RFC3339)
		}
		if e.Kind == record.KindObservation {
			v := e.Value
			row.Value = &v
		}
		if err := n.enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
