// Package schema defines the extraction fragment contract: the node and edge
// shapes an inference call must produce, and the validation that guards it.
package schema

import "encoding/json"

// Sentinel values. They stand for absent or hidden data and are valid domain
// values, never validation errors.
const (
	Unknown  = "Unknown"
	Redacted = "Redacted"
	// Missing is the numeric sentinel for both unknown and redacted numbers.
	Missing = -1
	// Ongoing is the end_date of a prescription that has not ended.
	Ongoing = "Ongoing"
)

// Patient is the subject of a case note.
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Ethnicity string `json:"ethnicity"`
}

type Medication struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Condition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Encounter struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type LabResult struct {
	ID       string  `json:"id"`
	TestName string  `json:"test_name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

// Prescribed links a patient to a medication.
type Prescribed struct {
	PatientID    string `json:"patient_id"`
	MedicationID string `json:"medication_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Dose         string `json:"dose"`
	Intensity    string `json:"intensity"`
}

// HasCondition links a patient to a diagnosis.
type HasCondition struct {
	PatientID      string `json:"patient_id"`
	ConditionID    string `json:"condition_id"`
	OccurrenceDate string `json:"occurrence_date"`
	Status         string `json:"status"`
}

// HadEncounter links a patient to a hospital visit.
type HadEncounter struct {
	PatientID      string `json:"patient_id"`
	EncounterID    string `json:"encounter_id"`
	OccurrenceDate string `json:"occurrence_date"`
}

// ResultedIn links an encounter to a lab result.
type ResultedIn struct {
	EncounterID string `json:"encounter_id"`
	LabID       string `json:"lab_id"`
}

// Fragment is one validated extraction result for a single case note.
type Fragment struct {
	Patients    []Patient    `json:"patient_nodes"`
	Medications []Medication `json:"medication_nodes"`
	Conditions  []Condition  `json:"condition_nodes"`
	Encounters  []Encounter  `json:"encounter_nodes"`
	LabResults  []LabResult  `json:"lab_nodes"`

	Prescribed   []Prescribed   `json:"prescribed_edges"`
	HasCondition []HasCondition `json:"condition_edges"`
	HadEncounter []HadEncounter `json:"encounter_edges"`
	ResultedIn   []ResultedIn   `json:"lab_result_edges"`

	Confidence    int    `json:"confidence"`
	Justification string `json:"justification"`
}

// Confidence bounds.
const (
	MinConfidence = 1
	MaxConfidence = 7
)

// NodeCount returns the number of nodes across all node collections.
func (f *Fragment) NodeCount() int {
	return len(f.Patients) + len(f.Medications) + len(f.Conditions) + len(f.Encounters) + len(f.LabResults)
}

// EdgeCount returns the number of edges across all edge collections.
func (f *Fragment) EdgeCount() int {
	return len(f.Prescribed) + len(f.HasCondition) + len(f.HadEncounter) + len(f.ResultedIn)
}

// UnmarshalJSON defaults end_date to Ongoing when the key is absent. An
// explicit value, including "", is kept.
func (p *Prescribed) UnmarshalJSON(b []byte) error {
	type plain Prescribed
	v := plain{EndDate: Ongoing}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Prescribed(v)
	return nil
}

// MarshalJSON writes absent collections as empty lists so a marshalled
// fragment always validates.
func (f Fragment) MarshalJSON() ([]byte, error) {
	type plain Fragment
	p := plain(f)
	if p.Patients == nil {
		p.Patients = []Patient{}
	}
	if p.Medications == nil {
		p.Medications = []Medication{}
	}
	if p.Conditions == nil {
		p.Conditions = []Condition{}
	}
	if p.Encounters == nil {
		p.Encounters = []Encounter{}
	}
	if p.LabResults == nil {
		p.LabResults = []LabResult{}
	}
	if p.Prescribed == nil {
		p.Prescribed = []Prescribed{}
	}
	if p.HasCondition == nil {
		p.HasCondition = []HasCondition{}
	}
	if p.HadEncounter == nil {
		p.HadEncounter = []HadEncounter{}
	}
	if p.ResultedIn == nil {
		p.ResultedIn = []ResultedIn{}
	}
	return json.Marshal(p)
}
