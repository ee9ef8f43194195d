package neo4jstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph/graphtest"
)

func TestIdent(t *testing.T) {
	for _, ok := range []string{"Patient", "HAS_CONDITION", "_x1"} {
		_, err := ident(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "1abc", "Pat`ient", "a b", "x)-[r]->(y"} {
		_, err := ident(bad)
		assert.Error(t, err, bad)
	}
}

func TestToPropsCoercesDatesAndDropsNil(t *testing.T) {
	props := toProps(map[string]any{
		"start_date": "2023-05-01",
		"end_date":   "Ongoing",
		"age":        42,
		"gone":       nil,
	})
	assert.Equal(t, neo4j.DateOf(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)), props["start_date"])
	assert.Equal(t, "Ongoing", props["end_date"])
	assert.Equal(t, int64(42), props["age"])
	assert.NotContains(t, props, "gone")
}

func TestFromPropsRestoresDates(t *testing.T) {
	d := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	got := fromProps(map[string]any{"on": dbtype.Date(d), "name": "x"})
	assert.Equal(t, d, got["on"])
	assert.Equal(t, "x", got["name"])
}

func TestRelationshipQueryRejectsBadType(t *testing.T) {
	_, err := relationshipQuery(graph.Relationship{
		Type:   "BAD TYPE",
		Source: graph.EntityKey{Label: "Patient", ID: "P1"},
		Target: graph.EntityKey{Label: "Medication", ID: "m"},
	})
	assert.Error(t, err)

	q, err := relationshipQuery(graph.Relationship{
		Type:   "PRESCRIBED",
		Source: graph.EntityKey{Label: "Patient", ID: "P1"},
		Target: graph.EntityKey{Label: "Medication", ID: "m"},
	})
	require.NoError(t, err)
	assert.Contains(t, q, "MERGE (s)-[r:`PRESCRIBED`]->(t)")
}

// TestConformance runs against a live server when NEO4J_TEST_URI is set.
// The target database is wiped before every subtest.
func TestConformance(t *testing.T) {
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
	cfg := Config{
		URI:      uri,
		User:     os.Getenv("NEO4J_TEST_USER"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
	}

	graphtest.Run(t, func(t *testing.T) graphtest.Store {
		ctx := context.Background()
		s, err := Open(ctx, cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(ctx) })

		session := s.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)
		res, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
		require.NoError(t, err)
		_, err = res.Consume(ctx)
		require.NoError(t, err)
		return s
	})
}
