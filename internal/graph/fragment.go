package graph

import (
	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
)

// Assertion is one edge of a fragment, with its position inside the edge
// collection it came from.
type Assertion struct {
	Index        int
	Relationship Relationship
}

// FromFragment converts a fragment into entities and relationship
// assertions, in fragment order. Endpoint ids move into the relationship
// key; the fragment's confidence and justification are stamped on every
// relationship it asserts.
func FromFragment(f *schema.Fragment) ([]Entity, []Assertion) {
	var nodes []Entity
	for _, n := range f.Patients {
		nodes = append(nodes, entity(constants.LabelPatient, n.ID, map[string]any{
			"name": n.Name, "age": n.Age, "gender": n.Gender, "ethnicity": n.Ethnicity,
		}))
	}
	for _, n := range f.Medications {
		nodes = append(nodes, entity(constants.LabelMedication, n.ID, map[string]any{"name": n.Name}))
	}
	for _, n := range f.Conditions {
		nodes = append(nodes, entity(constants.LabelCondition, n.ID, map[string]any{"name": n.Name}))
	}
	for _, n := range f.Encounters {
		nodes = append(nodes, entity(constants.LabelEncounter, n.ID, map[string]any{"type": n.Type}))
	}
	for _, n := range f.LabResults {
		nodes = append(nodes, entity(constants.LabelLabResult, n.ID, map[string]any{
			"test_name": n.TestName, "value": n.Value, "unit": n.Unit,
		}))
	}

	var edges []Assertion
	add := func(i int, typ, srcLabel, srcID, dstLabel, dstID string, attrs map[string]any) {
		attrs["confidence"] = f.Confidence
		attrs["justification"] = f.Justification
		edges = append(edges, Assertion{Index: i, Relationship: Relationship{
			Type:       typ,
			Source:     EntityKey{Label: srcLabel, ID: srcID},
			Target:     EntityKey{Label: dstLabel, ID: dstID},
			Attributes: CoerceAttributes(attrs),
		}})
	}
	for i, e := range f.Prescribed {
		add(i, constants.RelPrescribed, constants.LabelPatient, e.PatientID, constants.LabelMedication, e.MedicationID, map[string]any{
			"start_date": e.StartDate, "end_date": e.EndDate, "dose": e.Dose, "intensity": e.Intensity,
		})
	}
	for i, e := range f.HasCondition {
		add(i, constants.RelHasCondition, constants.LabelPatient, e.PatientID, constants.LabelCondition, e.ConditionID, map[string]any{
			"occurrence_date": e.OccurrenceDate, "status": e.Status,
		})
	}
	for i, e := range f.HadEncounter {
		add(i, constants.RelHadEncounter, constants.LabelPatient, e.PatientID, constants.LabelEncounter, e.EncounterID, map[string]any{
			"occurrence_date": e.OccurrenceDate,
		})
	}
	for i, e := range f.ResultedIn {
		add(i, constants.RelResultedIn, constants.LabelEncounter, e.EncounterID, constants.LabelLabResult, e.LabID, map[string]any{})
	}
	return nodes, edges
}

func entity(label, id string, attrs map[string]any) Entity {
	return Entity{Key: EntityKey{Label: label, ID: id}, Attributes: CoerceAttributes(attrs)}
}
