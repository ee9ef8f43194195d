package graph_test

import (
	"testing"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph/graphtest"
)

func TestMemoryStore(t *testing.T) {
	graphtest.Run(t, func(*testing.T) graphtest.Store {
		return graph.NewMemoryStore()
	})
}
