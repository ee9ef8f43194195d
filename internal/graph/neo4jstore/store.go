// Package neo4jstore implements graph.Store on Neo4j with MERGE upserts.
package neo4jstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// Open creates the driver and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	s := &Store{driver: driver, database: cfg.Database, logger: logger}
	s.ensureConstraints(ctx)
	logger.Info("graph.neo4j.opened", "uri", cfg.URI, "database", cfg.Database)
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// Ping verifies the driver can still reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// ensureConstraints is best-effort; a failure only costs lookup speed.
func (s *Store) ensureConstraints(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, label := range constants.NodeLabels {
		q := fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:`%s`) REQUIRE n.id IS UNIQUE", label, label)
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			s.logger.Warn("graph.neo4j.constraint_failed", "label", label, "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity) error {
	label, err := ident(e.Key.Label)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("MERGE (n:`%s` {id: $id})\nSET n += $props", label)
	params := map[string]any{"id": e.Key.ID, "props": toProps(e.Attributes)}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j: upsert %s: %w", e.Key, err)
	}
	return nil
}

func (s *Store) UpsertRelationship(ctx context.Context, r graph.Relationship) error {
	q, err := relationshipQuery(r)
	if err != nil {
		return err
	}
	params := map[string]any{"src": r.Source.ID, "dst": r.Target.ID, "props": toProps(r.Attributes)}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		hasSrc, _ := rec.Get("has_source")
		hasDst, _ := rec.Get("has_target")
		return [2]bool{hasSrc == true, hasDst == true}, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: upsert %s: %w", r.Key(), err)
	}
	found := out.([2]bool)
	if !found[0] {
		return &graph.MissingEndpointError{Key: r.Source}
	}
	if !found[1] {
		return &graph.MissingEndpointError{Key: r.Target}
	}
	return nil
}

// relationshipQuery merges the edge only when both endpoints already exist
// and reports which of them were found.
func relationshipQuery(r graph.Relationship) (string, error) {
	src, err := ident(r.Source.Label)
	if err != nil {
		return "", err
	}
	dst, err := ident(r.Target.Label)
	if err != nil {
		return "", err
	}
	typ, err := ident(r.Type)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("OPTIONAL MATCH (s:`%s` {id: $src})\n"+
		"OPTIONAL MATCH (t:`%s` {id: $dst})\n"+
		"FOREACH (_ IN CASE WHEN s IS NOT NULL AND t IS NOT NULL THEN [1] ELSE [] END |\n"+
		"  MERGE (s)-[r:`%s`]->(t)\n"+
		"  SET r += $props)\n"+
		"RETURN s IS NOT NULL AS has_source, t IS NOT NULL AS has_target", src, dst, typ), nil
}

// Stats counts nodes and relationships.
func (s *Store) Stats(ctx context.Context) (graph.Stats, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var st graph.Stats
		for _, c := range []struct {
			q   string
			dst *int
		}{
			{"MATCH (n) RETURN count(n) AS c", &st.Entities},
			{"MATCH ()-[r]->() RETURN count(r) AS c", &st.Relationships},
		} {
			res, err := tx.Run(ctx, c.q, nil)
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			n, _ := rec.Get("c")
			v, _ := n.(int64)
			*c.dst = int(v)
		}
		return st, nil
	})
	if err != nil {
		return graph.Stats{}, fmt.Errorf("neo4j: stats: %w", err)
	}
	return out.(graph.Stats), nil
}

// GetEntity loads one node's properties.
func (s *Store) GetEntity(ctx context.Context, key graph.EntityKey) (graph.Entity, bool, error) {
	label, err := ident(key.Label)
	if err != nil {
		return graph.Entity{}, false, err
	}
	q := fmt.Sprintf("MATCH (n:`%s` {id: $id}) RETURN properties(n) AS props", label)
	props, ok, err := s.readProps(ctx, q, map[string]any{"id": key.ID})
	if err != nil || !ok {
		return graph.Entity{}, ok, err
	}
	delete(props, "id")
	return graph.Entity{Key: key, Attributes: props}, true, nil
}

// GetRelationship loads one relationship's properties.
func (s *Store) GetRelationship(ctx context.Context, source graph.EntityKey, typ string, target graph.EntityKey) (graph.Relationship, bool, error) {
	rel := graph.Relationship{Type: typ, Source: source, Target: target}
	src, err := ident(source.Label)
	if err != nil {
		return rel, false, err
	}
	dst, err := ident(target.Label)
	if err != nil {
		return rel, false, err
	}
	t, err := ident(typ)
	if err != nil {
		return rel, false, err
	}
	q := fmt.Sprintf("MATCH (:`%s` {id: $src})-[r:`%s`]->(:`%s` {id: $dst}) RETURN properties(r) AS props", src, t, dst)
	props, ok, err := s.readProps(ctx, q, map[string]any{"src": source.ID, "dst": target.ID})
	if err != nil || !ok {
		return rel, ok, err
	}
	rel.Attributes = props
	return rel, true, nil
}

func (s *Store) readProps(ctx context.Context, q string, params map[string]any) (map[string]any, bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		v, _ := res.Record().Get("props")
		props, _ := v.(map[string]any)
		return fromProps(props), nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("neo4j: read: %w", err)
	}
	if out == nil {
		return nil, false, nil
	}
	return out.(map[string]any), true, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident guards labels and relationship types, which Cypher cannot bind as
// parameters.
func ident(s string) (string, error) {
	if !identPattern.MatchString(s) {
		return "", fmt.Errorf("neo4j: invalid identifier %q", s)
	}
	return s, nil
}

// toProps coerces attributes for Cypher. Neo4j cannot hold null properties,
// so nil values are dropped.
func toProps(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range graph.CoerceAttributes(attrs) {
		switch t := v.(type) {
		case nil:
			continue
		case time.Time:
			out[k] = neo4j.DateOf(t)
		default:
			out[k] = t
		}
	}
	return out
}

func fromProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if d, ok := v.(dbtype.Date); ok {
			out[k] = d.Time()
			continue
		}
		out[k] = v
	}
	return out
}
