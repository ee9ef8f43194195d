// Package graph merges extraction fragments into a persistent graph through
// an idempotent upsert contract that every storage backend satisfies.
package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// EntityKey is the type-qualified identity of an entity, e.g. Patient:P99.
type EntityKey struct {
	Label string
	ID    string
}

func (k EntityKey) String() string { return k.Label + ":" + k.ID }

// Entity is a typed node. Attributes never contain the id.
type Entity struct {
	Key        EntityKey
	Attributes map[string]any
}

// Relationship is a typed edge, keyed by (source, type, target).
type Relationship struct {
	Type       string
	Source     EntityKey
	Target     EntityKey
	Attributes map[string]any
}

// Key returns the canonical relationship key.
func (r Relationship) Key() string {
	return r.Source.String() + "-[" + r.Type + "]->" + r.Target.String()
}

// Store is the upsert contract. Both operations are idempotent: applying the
// same call twice leaves the store as applying it once. Attribute maps are
// merged key by key into what is already stored.
type Store interface {
	UpsertEntity(ctx context.Context, e Entity) error
	// UpsertRelationship fails with *MissingEndpointError when either endpoint
	// does not exist; it never creates placeholder entities.
	UpsertRelationship(ctx context.Context, r Relationship) error
}

// Stats counts what a store holds.
type Stats struct {
	Entities      int
	Relationships int
}

// StatsReader is implemented by stores that can count their contents.
type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
}

// MissingEndpointError reports the endpoint that made a relationship dangle.
type MissingEndpointError struct {
	Key EntityKey
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("endpoint %s does not exist", e.Key)
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CoerceValue normalizes an attribute value for storage. Strings that are
// calendar dates in YYYY-MM-DD form become time.Time at UTC midnight; other
// strings, sentinels included, stay strings. Integers widen to int64 and
// floats to float64. The result depends only on the input value, so the
// same write always stores the same type.
func CoerceValue(v any) any {
	switch t := v.(type) {
	case string:
		if datePattern.MatchString(t) {
			if d, err := time.Parse(time.DateOnly, t); err == nil {
				return d
			}
		}
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return v
	}
}

// CoerceAttributes returns a coerced copy of attrs.
func CoerceAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = CoerceValue(v)
	}
	return out
}

// SortedKeys returns the attribute names in order.
func SortedKeys(attrs map[string]any) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
