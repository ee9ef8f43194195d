package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFragment = `{
  "patient_nodes": [{"id": "P99", "name": "Redacted", "age": -1, "gender": "Female", "ethnicity": "Unknown"}],
  "medication_nodes": [{"id": "Metformin", "name": "Metformin"}],
  "condition_nodes": [{"id": "T2DM", "name": "Type 2 Diabetes Mellitus"}],
  "encounter_nodes": [{"id": "E1", "type": "Inpatient"}],
  "lab_nodes": [{"id": "L1", "test_name": "HbA1c", "value": 8.2, "unit": "%"}],
  "prescribed_edges": [{"patient_id": "P99", "medication_id": "Metformin", "start_date": "2023-05-01", "dose": "500mg", "intensity": "BD"}],
  "condition_edges": [{"patient_id": "P99", "condition_id": "T2DM", "occurrence_date": "Unknown", "status": "Chronic"}],
  "encounter_edges": [{"patient_id": "P99", "encounter_id": "E1", "occurrence_date": "2023-05-01"}],
  "lab_result_edges": [{"encounter_id": "E1", "lab_id": "L1"}],
  "confidence": 6,
  "justification": "HbA1c above target on metformin"
}`

func TestValidate_OK(t *testing.T) {
	frag, err := Validate([]byte(validFragment))
	require.NoError(t, err)

	require.Len(t, frag.Patients, 1)
	assert.Equal(t, "P99", frag.Patients[0].ID)
	assert.Equal(t, 5, frag.NodeCount())
	assert.Equal(t, 4, frag.EdgeCount())
	assert.Equal(t, 6, frag.Confidence)
	assert.Equal(t, Ongoing, frag.Prescribed[0].EndDate, "absent end_date defaults to Ongoing")
}

func TestValidate_SentinelsRoundTrip(t *testing.T) {
	frag, err := Validate([]byte(validFragment))
	require.NoError(t, err)

	assert.Equal(t, Redacted, frag.Patients[0].Name)
	assert.Equal(t, Missing, frag.Patients[0].Age)
	assert.Equal(t, Unknown, frag.Patients[0].Ethnicity)
	assert.Equal(t, Unknown, frag.HasCondition[0].OccurrenceDate)

	// re-encode and validate again: nothing is replaced
	b, err := json.Marshal(frag)
	require.NoError(t, err)
	again, err := Validate(b)
	require.NoError(t, err)
	assert.Equal(t, frag, again)
}

func TestValidate_EmptyLabsAllowed(t *testing.T) {
	raw := strings.Replace(validFragment, `[{"id": "L1", "test_name": "HbA1c", "value": 8.2, "unit": "%"}]`, `[]`, 1)
	raw = strings.Replace(raw, `[{"encounter_id": "E1", "lab_id": "L1"}]`, `[]`, 1)
	frag, err := Validate([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, frag.LabResults)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantPath string
	}{
		{
			name:     "age not an integer",
			raw:      strings.Replace(validFragment, `"age": -1`, `"age": "Unknown"`, 1),
			wantPath: "/patient_nodes/0/age",
		},
		{
			name:     "confidence out of range",
			raw:      strings.Replace(validFragment, `"confidence": 6`, `"confidence": 9`, 1),
			wantPath: "/confidence",
		},
		{
			name:     "lab value not numeric",
			raw:      strings.Replace(validFragment, `"value": 8.2`, `"value": "8.2%"`, 1),
			wantPath: "/lab_nodes/0/value",
		},
		{
			name:     "fractional age",
			raw:      strings.Replace(validFragment, `"age": -1`, `"age": 40.5`, 1),
			wantPath: "/patient_nodes/0/age",
		},
		{
			name:     "malformed json",
			raw:      `{"patient_nodes": [`,
			wantPath: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := Validate([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, frag)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantPath, ve.Path)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestValidate_MissingCollection(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(validFragment), &doc))
	delete(doc, "lab_nodes")
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = Validate(b)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "lab_nodes")
}

func TestValidate_ExtraKeysIgnored(t *testing.T) {
	raw := strings.Replace(validFragment, `"type": "Inpatient"`, `"type": "Inpatient", "ward": "3B"`, 1)
	raw = strings.Replace(raw, `"ethnicity": "Unknown"}`, `"ethnicity": "Unknown", "notes": "x"}`, 1)
	raw = strings.Replace(raw, `"confidence": 6`, `"confidence": 6, "model": "llama3"`, 1)

	frag, err := Validate([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Inpatient", frag.Encounters[0].Type)
	assert.Equal(t, "P99", frag.Patients[0].ID)
}

func TestValidate_IntegralFloats(t *testing.T) {
	raw := strings.Replace(validFragment, `"age": -1`, `"age": 40.0`, 1)
	raw = strings.Replace(raw, `"confidence": 6`, `"confidence": 6.0`, 1)

	frag, err := Validate([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 40, frag.Patients[0].Age)
	assert.Equal(t, 6, frag.Confidence)
}

func TestValidate_EndDateDefaultOnlyWhenAbsent(t *testing.T) {
	raw := strings.Replace(validFragment, `"start_date": "2023-05-01"`, `"start_date": "2023-05-01", "end_date": ""`, 1)
	frag, err := Validate([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "", frag.Prescribed[0].EndDate)

	raw = strings.Replace(validFragment, `"start_date": "2023-05-01"`, `"start_date": "2023-05-01", "end_date": "2023-09-30"`, 1)
	frag, err = Validate([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "2023-09-30", frag.Prescribed[0].EndDate)
}

func TestBuildFragmentJSONSchema_StrictForModel(t *testing.T) {
	s := BuildFragmentJSONSchema()
	assert.Equal(t, false, s["additionalProperties"])
}
