// Package graphtest holds a conformance suite for graph.Store implementations.
package graphtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is what the suite needs: the upsert contract plus counting.
type Store interface {
	graph.Store
	graph.StatsReader
}

// Reader lets the suite inspect stored attributes.
type Reader interface {
	GetEntity(ctx context.Context, key graph.EntityKey) (graph.Entity, bool, error)
	GetRelationship(ctx context.Context, source graph.EntityKey, typ string, target graph.EntityKey) (graph.Relationship, bool, error)
}

var (
	patient = graph.EntityKey{Label: "Patient", ID: "P1"}
	drug    = graph.EntityKey{Label: "Medication", ID: "Metformin"}
	ghost   = graph.EntityKey{Label: "Condition", ID: "Ghost"}
)

// Run exercises the upsert contract against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("entity upsert is idempotent and merges attributes", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		e := graph.Entity{Key: patient, Attributes: map[string]any{"name": "Unknown", "age": int64(-1)}}
		require.NoError(t, s.UpsertEntity(ctx, e))
		require.NoError(t, s.UpsertEntity(ctx, e))
		require.NoError(t, s.UpsertEntity(ctx, graph.Entity{Key: patient, Attributes: map[string]any{"gender": "Female"}}))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Entities)

		if r, ok := s.(Reader); ok {
			got, found, err := r.GetEntity(ctx, patient)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "Unknown", got.Attributes["name"])
			assert.Equal(t, int64(-1), got.Attributes["age"])
			assert.Equal(t, "Female", got.Attributes["gender"])
		}
	})

	t.Run("relationship upsert is keyed by source type target", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.UpsertEntity(ctx, graph.Entity{Key: patient, Attributes: map[string]any{}}))
		require.NoError(t, s.UpsertEntity(ctx, graph.Entity{Key: drug, Attributes: map[string]any{"name": "Metformin"}}))

		r := graph.Relationship{Type: "PRESCRIBED", Source: patient, Target: drug, Attributes: map[string]any{
			"start_date": graph.CoerceValue("2023-05-01"),
			"dose":       "500mg",
		}}
		require.NoError(t, s.UpsertRelationship(ctx, r))
		require.NoError(t, s.UpsertRelationship(ctx, r))
		r2 := graph.Relationship{Type: "PRESCRIBED", Source: patient, Target: drug, Attributes: map[string]any{"dose": "850mg"}}
		require.NoError(t, s.UpsertRelationship(ctx, r2))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Entities)
		assert.Equal(t, 1, st.Relationships)

		if rd, ok := s.(Reader); ok {
			got, found, err := rd.GetRelationship(ctx, patient, "PRESCRIBED", drug)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "850mg", got.Attributes["dose"])
			assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), got.Attributes["start_date"])
		}
	})

	t.Run("missing endpoint is reported not created", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.UpsertEntity(ctx, graph.Entity{Key: patient, Attributes: map[string]any{}}))

		err := s.UpsertRelationship(ctx, graph.Relationship{Type: "HAS_CONDITION", Source: patient, Target: ghost, Attributes: map[string]any{}})
		var missing *graph.MissingEndpointError
		require.True(t, errors.As(err, &missing), "got %v", err)
		assert.Equal(t, ghost, missing.Key)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Entities)
		assert.Equal(t, 0, st.Relationships)
	})
}
