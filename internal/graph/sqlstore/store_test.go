package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "graph.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteConformance(t *testing.T) {
	graphtest.Run(t, func(t *testing.T) graphtest.Store { return openTemp(t) })
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestAttributeRoundTripKeepsTypes(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	key := graph.EntityKey{Label: "LabResult", ID: "L1"}
	day := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertEntity(ctx, graph.Entity{Key: key, Attributes: map[string]any{
		"test_name": "HbA1c",
		"value":     6.5,
		"count":     3,
		"flag":      true,
		"taken":     "2021-03-04",
		"note":      nil,
	}}))

	got, ok, err := s.GetEntity(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HbA1c", got.Attributes["test_name"])
	assert.Equal(t, 6.5, got.Attributes["value"])
	assert.Equal(t, int64(3), got.Attributes["count"])
	assert.Equal(t, true, got.Attributes["flag"])
	assert.Equal(t, day, got.Attributes["taken"])
	assert.Nil(t, got.Attributes["note"])
	assert.Contains(t, got.Attributes, "note")
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, ok, err := s.GetEntity(ctx, graph.EntityKey{Label: "Patient", ID: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.GetRelationship(ctx, graph.EntityKey{Label: "Patient", ID: "a"}, "PRESCRIBED", graph.EntityKey{Label: "Medication", ID: "b"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := decodeValue("blob", "x")
	assert.Error(t, err)
}
