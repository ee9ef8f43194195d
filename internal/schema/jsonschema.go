package schema

// BuildFragmentJSONSchema returns the fragment JSON-Schema as a generic map.
// It is sent to the inference endpoint as the structured output constraint and
// compiled locally for validation.
func BuildFragmentJSONSchema() map[string]any {
	props := map[string]any{
		"patient_nodes": listOf("Exactly one patient node per summary", object(map[string]any{
			"id":        str("Unique patient identifier provided in the system prompt, e.g. 'P99'"),
			"name":      str("Full legal name of the patient"),
			"age":       integer("Numerical age; -1 if not mentioned or redacted"),
			"gender":    str("Gender; Male or Female"),
			"ethnicity": str("Patient ethnicity, e.g. 'Chinese', 'Malay', 'Indian'"),
		}, "id", "name", "age", "gender", "ethnicity")),
		"medication_nodes": listOf("All unique drugs mentioned", object(map[string]any{
			"id":   str("Generic or brand name used as a unique ID, e.g. 'Metformin'"),
			"name": str("Full medication name as found in the text"),
		}, "id", "name")),
		"condition_nodes": listOf("All unique diagnoses mentioned", object(map[string]any{
			"id":   str("Short clinical code or name, e.g. 'T2DM'"),
			"name": str("Full clinical name of the diagnosis"),
		}, "id", "name")),
		"encounter_nodes": listOf("The hospital visit details", object(map[string]any{
			"id":   str("Unique identifier for the hospital visit, e.g. 'E9901'"),
			"type": str("Setting of care, e.g. 'Inpatient', 'Outpatient', 'ER'"),
		}, "id", "type")),
		"lab_nodes": listOf("Specific lab values and measurements", object(map[string]any{
			"id":        str("Unique ID for this test result, e.g. 'L1'"),
			"test_name": str("Name of the lab test, e.g. 'HbA1c'"),
			"value":     number("Numerical result only; '8.2%' is 8.2"),
			"unit":      str("Measurement unit, e.g. '%', 'mg/dL'"),
		}, "id", "test_name", "value", "unit")),
		"prescribed_edges": listOf("Links patient to their medications", object(map[string]any{
			"patient_id":    str("Must match the patient node id"),
			"medication_id": str("Must match the medication node id"),
			"start_date":    str("Date medication was started (YYYY-MM-DD)"),
			"end_date":      str("Date ended (YYYY-MM-DD) or 'Ongoing'"),
			"dose":          str("Dosage amount, e.g. '500mg'"),
			"intensity":     str("Frequency or schedule, e.g. 'Once daily', 'BD'"),
		}, "patient_id", "medication_id", "start_date", "dose", "intensity")),
		"condition_edges": listOf("Links patient to their conditions", object(map[string]any{
			"patient_id":      str("Must match the patient node id"),
			"condition_id":    str("Must match the condition node id"),
			"occurrence_date": str("Date of diagnosis or onset (YYYY-MM-DD)"),
			"status":          str("Clinical status: 'Active', 'Resolved' or 'Chronic'"),
		}, "patient_id", "condition_id", "occurrence_date", "status")),
		"encounter_edges": listOf("Links patient to the hospital visit", object(map[string]any{
			"patient_id":      str("Must match the patient node id"),
			"encounter_id":    str("Must match the encounter node id"),
			"occurrence_date": str("Date of admission or visit (YYYY-MM-DD)"),
		}, "patient_id", "encounter_id", "occurrence_date")),
		"lab_result_edges": listOf("Links the encounter to specific lab results", object(map[string]any{
			"encounter_id": str("Must match the encounter node id"),
			"lab_id":       str("Must match the lab result node id"),
		}, "encounter_id", "lab_id")),
		"confidence": map[string]any{
			"type":        "integer",
			"minimum":     MinConfidence,
			"maximum":     MaxConfidence,
			"description": "Confidence score for the extraction",
		},
		"justification": str("Brief medical reasoning for these extractions"),
	}

	return map[string]any{
		"title":                "ClinicalFragment",
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required": []string{
			"patient_nodes", "medication_nodes", "condition_nodes", "encounter_nodes", "lab_nodes",
			"prescribed_edges", "condition_edges", "encounter_edges", "lab_result_edges",
			"confidence", "justification",
		},
	}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func listOf(desc string, item map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": item}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}
