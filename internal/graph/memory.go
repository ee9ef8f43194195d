package graph

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. A single mutex serializes writes.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]Entity
	rels     map[string]Relationship
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: map[string]Entity{},
		rels:     map[string]Relationship{},
	}
}

func (s *MemoryStore) UpsertEntity(_ context.Context, e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := e.Key.String()
	cur, ok := s.entities[k]
	if !ok {
		cur = Entity{Key: e.Key, Attributes: map[string]any{}}
	}
	for name, v := range e.Attributes {
		cur.Attributes[name] = CoerceValue(v)
	}
	s.entities[k] = cur
	return nil
}

func (s *MemoryStore) UpsertRelationship(_ context.Context, r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[r.Source.String()]; !ok {
		return &MissingEndpointError{Key: r.Source}
	}
	if _, ok := s.entities[r.Target.String()]; !ok {
		return &MissingEndpointError{Key: r.Target}
	}

	k := r.Key()
	cur, ok := s.rels[k]
	if !ok {
		cur = Relationship{Type: r.Type, Source: r.Source, Target: r.Target, Attributes: map[string]any{}}
	}
	for name, v := range r.Attributes {
		cur.Attributes[name] = CoerceValue(v)
	}
	s.rels[k] = cur
	return nil
}

func (s *MemoryStore) Stats(context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Entities: len(s.entities), Relationships: len(s.rels)}, nil
}

// GetEntity returns a copy of the entity stored under key.
func (s *MemoryStore) GetEntity(_ context.Context, key EntityKey) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[key.String()]
	if !ok {
		return Entity{}, false, nil
	}
	return Entity{Key: e.Key, Attributes: copyAttrs(e.Attributes)}, true, nil
}

// GetRelationship returns a copy of the relationship stored under (source, typ, target).
func (s *MemoryStore) GetRelationship(_ context.Context, source EntityKey, typ string, target EntityKey) (Relationship, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rels[Relationship{Type: typ, Source: source, Target: target}.Key()]
	if !ok {
		return Relationship{}, false, nil
	}
	r.Attributes = copyAttrs(r.Attributes)
	return r, true, nil
}

// Entities returns copies of all entities sorted by key.
func (s *MemoryStore) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, Entity{Key: e.Key, Attributes: copyAttrs(e.Attributes)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Relationships returns copies of all relationships sorted by key.
func (s *MemoryStore) Relationships() []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Relationship, 0, len(s.rels))
	for _, r := range s.rels {
		r.Attributes = copyAttrs(r.Attributes)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func copyAttrs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
