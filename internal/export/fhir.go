// Package export renders completed patient records at the output
// boundary: a FHIR R4 bundle per patient, a Synthea-style CSV table
// set, and flat NDJSON event streams. Writers take io.Writer; callers
// own file handling.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// System URIs for the code systems modules use. Unknown systems pass
// through verbatim.
var systemURIs = map[string]string{
	"SNOMED-CT": "http://snomed.info/sct",
	"LOINC":     "http://loinc.org",
	"RxNorm":    "http://www.nlm.nih.gov/research/umls/rxnorm",
}

func systemURI(system string) string {
	if uri, ok := systemURIs[system]; ok {
		return uri
	}
	return system
}

type coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type codeableConcept struct {
	Coding []coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

func concept(c pathway.Code) codeableConcept {
	return codeableConcept{
		Coding: []coding{{System: systemURI(c.System), Code: c.Value, Display: c.Display}},
		Text:   c.Display,
	}
}

type reference struct {
	Reference string `json:"reference"`
}

func ref(id string) reference {
	return reference{Reference: "urn:uuid:" + id}
}

type period struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func eventPeriod(e record.Event) period {
	p := period{Start: e.Start.Format(time.RFC3339)}
	if !e.Stop.IsZero() {
		p.End = e.Stop.Format(time.RFC3339)
	}
	return p
}

type quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type humanName struct {
	Family string   `json:"family"`
	Given  []string `json:"given"`
}

type address struct {
	City  string `json:"city"`
	State string `json:"state"`
}

type fhirPatient struct {
	ResourceType     string      `json:"resourceType"`
	ID               string      `json:"id"`
	Name             []humanName `json:"name"`
	Gender           string      `json:"gender"`
	BirthDate        string      `json:"birthDate"`
	DeceasedDateTime string      `json:"deceasedDateTime,omitempty"`
	Address          []address   `json:"address"`
}

type fhirEncounter struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Class        coding            `json:"class"`
	Type         []codeableConcept `json:"type"`
	Subject      reference         `json:"subject"`
	Period       period            `json:"period"`
}

type fhirCondition struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id"`
	Code              codeableConcept `json:"code"`
	Subject           reference       `json:"subject"`
	Encounter         *reference      `json:"encounter,omitempty"`
	OnsetDateTime     string          `json:"onsetDateTime"`
	AbatementDateTime string          `json:"abatementDateTime,omitempty"`
}

type fhirMedicationRequest struct {
	ResourceType              string          `json:"resourceType"`
	ID                        string          `json:"id"`
	Status                    string          `json:"status"`
	MedicationCodeableConcept codeableConcept `json:"medicationCodeableConcept"`
	Subject                   reference       `json:"subject"`
	Encounter                 *reference      `json:"encounter,omitempty"`
	AuthoredOn                string          `json:"authoredOn"`
}

type fhirProcedure struct {
	ResourceType    string          `json:"resourceType"`
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Code            codeableConcept `json:"code"`
	Subject         reference       `json:"subject"`
	Encounter       *reference      `json:"encounter,omitempty"`
	PerformedPeriod period          `json:"performedPeriod"`
}

type fhirObservation struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Code              codeableConcept `json:"code"`
	Subject           reference       `json:"subject"`
	Encounter         *reference      `json:"encounter,omitempty"`
	EffectiveDateTime string          `json:"effectiveDateTime"`
	ValueQuantity     quantity        `json:"valueQuantity"`
}

type fhirCarePlan struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Category     []codeableConcept `json:"category"`
	Subject      reference         `json:"subject"`
	Period       period            `json:"period"`
}

type bundleEntry struct {
	FullURL  string `json:"fullUrl"`
	Resource any    `json:"resource"`
}

type bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []bundleEntry `json:"entry"`
}

// WriteFHIR renders one patient as a FHIR R4 collection bundle. The
// patient resource comes first, then one resource per event in record
// order; death is carried on the patient, not as an entry.
func WriteFHIR(w io.Writer, p *person.Person, rec *record.Record) error {
	b := bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Entry:        make([]bundleEntry, 0, rec.Len()+1),
	}
	b.Entry = append(b.Entry, bundleEntry{
		FullURL:  "urn:uuid:" + p.ID,
		Resource: patientResource(p),
	})

	for _, e := range rec.Events() {
		res, err := eventResource(p.ID, e)
		if err != nil {
			return err
		}
		if res == nil {
			continue
		}
		b.Entry = append(b.Entry, bundleEntry{FullURL: "urn:uuid:" + e.ID, Resource: res})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func patientResource(p *person.Person) fhirPatient {
	out := fhirPatient{
		ResourceType: "Patient",
		ID:           p.ID,
		Name:         []humanName{{Family: p.LastName, Given: []string{p.FirstName}}},
		Gender:       gender(p.Sex),
		BirthDate:    p.BirthDate.Format(time.DateOnly),
		Address:      []address{{City: p.City, State: p.State}},
	}
	if p.DeathDate != nil {
		out.DeceasedDateTime = p.DeathDate.Format(time.RFC3339)
	}
	return out
}

func gender(s person.Sex) string {
	if s == person.Male {
		return "male"
	}
	return "female"
}

func eventResource(patientID string, e record.Event) (any, error) {
	subject := ref(patientID)
	var encounter *reference
	if e.EncounterID != "" {
		r := ref(e.EncounterID)
		encounter = &r
	}

	switch e.Kind {
	case record.KindEncounter:
		status := "finished"
		if e.Open() {
			status = "in-progress"
		}
		return fhirEncounter{
			ResourceType: "Encounter",
			ID:           e.ID,
			Status:       status,
			Class:        coding{System: "http://terminology.hl7.org/CodeSystem/v3-ActCode", Code: e.Class},
			Type:         []codeableConcept{concept(e.Code)},
			Subject:      subject,
			Period:       eventPeriod(e),
		}, nil

	case record.KindCondition:
		out := fhirCondition{
			ResourceType:  "Condition",
			ID:            e.ID,
			Code:          concept(e.Code),
			Subject:       subject,
			Encounter:     encounter,
			OnsetDateTime: e.Start.Format(time.RFC3339),
		}
		if !e.Stop.IsZero() {
			out.AbatementDateTime = e.Stop.Format(time.RFC3339)
		}
		return out, nil

	case record.KindMedication:
		status := "stopped"
		if e.Open() {
			status = "active"
		}
		return fhirMedicationRequest{
			ResourceType:              "MedicationRequest",
			ID:                        e.ID,
			Status:                    status,
			MedicationCodeableConcept: concept(e.Code),
			Subject:                   subject,
			Encounter:                 encounter,
			AuthoredOn:                e.Start.Format(time.RFC3339),
		}, nil

	case record.KindProcedure:
		return fhirProcedure{
			ResourceType:    "Procedure",
			ID:              e.ID,
			Status:          "completed",
			Code:            concept(e.Code),
			Subject:         subject,
			Encounter:       encounter,
			PerformedPeriod: eventPeriod(e),
		}, nil

	case record.KindObservation:
		return fhirObservation{
			ResourceType:      "Observation",
			ID:                e.ID,
			Status:            "final",
			Code:              concept(e.Code),
			Subject:           subject,
			Encounter:         encounter,
			EffectiveDateTime: e.Start.Format(time.RFC3339),
			ValueQuantity:     quantity{Value: e.Value, Unit: e.Unit},
		}, nil

	case record.KindCarePlan:
		status := "completed"
		if e.Open() {
			status = "active"
		}
		return fhirCarePlan{
			ResourceType: "CarePlan",
			ID:           e.ID,
			Status:       status,
			Category:     []codeableConcept{concept(e.Code)},
			Subject:      subject,
			Period:       eventPeriod(e),
		}, nil

	case record.KindDeath:
		// Represented as deceasedDateTime on the Patient resource.
		return nil, nil

	default:
		return nil, fmt.Errorf("export: unknown event kind %q", e.Kind)
	}
}
