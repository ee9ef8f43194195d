package fragments

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFragment() *schema.Fragment {
	return &schema.Fragment{
		Patients:      []schema.Patient{{ID: "P3", Name: "Unknown", Age: -1, Gender: "Female", Ethnicity: "Indian"}},
		Conditions:    []schema.Condition{{ID: "HTN", Name: "Hypertension"}},
		HasCondition:  []schema.HasCondition{{PatientID: "P3", ConditionID: "HTN", OccurrenceDate: "2023-05-01", Status: "Active"}},
		Confidence:    5,
		Justification: "documented BP readings",
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	s := NewStore(t.TempDir())

	p1, err := s.Write("3", sampleFragment())
	require.NoError(t, err)
	b1, err := os.ReadFile(p1)
	require.NoError(t, err)

	p2, err := s.Write("3", sampleFragment())
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, "patient_3_graph.json", filepath.Base(p1))
	assert.Equal(t, b1, b2)
}

func TestDiscoverAndRead(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Write("2", sampleFragment())
	require.NoError(t, err)
	_, err = s.Write("1", sampleFragment())
	require.NoError(t, err)

	nested := filepath.Join(dir, "batch-b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	_, err = NewStore(nested).Write("9", sampleFragment())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	paths, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "9", FragmentID(paths[0]))
	assert.Equal(t, "1", FragmentID(paths[1]))
	assert.Equal(t, "2", FragmentID(paths[2]))

	frag, err := Read(paths[1])
	require.NoError(t, err)
	assert.Equal(t, sampleFragment().Patients, frag.Patients)
	assert.Equal(t, 5, frag.Confidence)
}

func TestDiscover_MissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "out"))

	paths, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRead_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "patient_x_graph.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"confidence": 0}`), 0o644))

	_, err := Read(p)
	var ve *schema.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestFileNameSanitizes(t *testing.T) {
	assert.Equal(t, "patient_a_b_graph.json", FileName("a/b"))
}
