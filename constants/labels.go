package constants

// Node labels of the clinical graph.
const (
	LabelPatient    = "Patient"
	LabelMedication = "Medication"
	LabelCondition  = "Condition"
	LabelEncounter  = "Encounter"
	LabelLabResult  = "LabResult"
)

// Relationship types of the clinical graph.
const (
	RelPrescribed   = "PRESCRIBED"
	RelHasCondition = "HAS_CONDITION"
	RelHadEncounter = "HAD_ENCOUNTER"
	RelResultedIn   = "RESULTED_IN"
)

// NodeLabels is the closed set of labels a fragment may assert.
var NodeLabels = []string{LabelPatient, LabelMedication, LabelCondition, LabelEncounter, LabelLabResult}

// RelationshipTypes is the closed set of relationship types a fragment may assert.
var RelationshipTypes = []string{RelPrescribed, RelHasCondition, RelHadEncounter, RelResultedIn}
