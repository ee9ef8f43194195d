package llm

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt composes the fixed instruction block: completeness rules
// and the sentinel-value policy, plus the identifier the patient node must carry.
func BuildSystemPrompt(patientID string) string {
	parts := []string{
		"You are a medical knowledge graph extractor. Your goal is COMPLETE extraction.",
		"1. For each node, you MUST extract every attribute (for Patient: name, age, gender, ethnicity).",
		fmt.Sprintf("The Patient ID for this extraction is %s; use it as the patient node id and in every edge that references the patient.", patientID),
		"2. For each edge, you MUST populate every attribute the schema declares, such as start_date, occurrence_date, dose, intensity or status.",
		"3. Use the provided clinical note to fill in every field in the schema. Dates are YYYY-MM-DD.",
		"4. If a value is missing in the text, use 'Unknown' for strings or -1 for numbers, but do not omit the key.",
		"If a value is redacted, use 'Redacted' for strings or -1 for numbers.",
		"5. If there are no lab results, return an empty list for lab results.",
		"Return ONLY JSON that matches the provided JSON Schema.",
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt packages the raw case note.
func BuildUserPrompt(note string) string {
	return strings.TrimSpace(note)
}
