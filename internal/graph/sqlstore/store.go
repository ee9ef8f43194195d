// Package sqlstore implements graph.Store on SQLite or Postgres using
// ON CONFLICT upserts, one transaction per entity or relationship.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
)

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const (
	tblEntities  = "graph_entities"
	tblEntAttrs  = "graph_entity_attrs"
	tblRels      = "graph_relationships"
	tblRelAttrs  = "graph_relationship_attrs"
	timestampFmt = time.RFC3339Nano
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS graph_entities (
		entity_key TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		natural_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_entities_label ON graph_entities (label)`,
	`CREATE TABLE IF NOT EXISTS graph_entity_attrs (
		entity_key TEXT NOT NULL REFERENCES graph_entities (entity_key),
		name       TEXT NOT NULL,
		kind       TEXT NOT NULL,
		value      TEXT NOT NULL,
		PRIMARY KEY (entity_key, name)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_relationships (
		rel_key    TEXT PRIMARY KEY,
		source_key TEXT NOT NULL REFERENCES graph_entities (entity_key),
		rel_type   TEXT NOT NULL,
		target_key TEXT NOT NULL REFERENCES graph_entities (entity_key),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (source_key, rel_type, target_key)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_relationship_attrs (
		rel_key TEXT NOT NULL REFERENCES graph_relationships (rel_key),
		name    TEXT NOT NULL,
		kind    TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY (rel_key, name)
	)`,
}

// Store is a relational graph.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	logger  *slog.Logger
	now     func() time.Time
	closeFn func()
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	var ph sq.PlaceholderFormat = sq.Question
	if dialect == Postgres {
		ph = sq.Dollar
	}
	return &Store{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(ph),
		logger:  logger,
		now:     time.Now,
	}
}

// Migrate creates the graph tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Debug("graph.sql.migrated", "dialect", s.dialect)
	return nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity) error {
	key := e.Key.String()
	now := s.now().UTC().Format(timestampFmt)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		q := s.sb.Insert(tblEntities).
			Columns("entity_key", "label", "natural_id", "created_at", "updated_at").
			Values(key, e.Key.Label, e.Key.ID, now, now).
			Suffix("ON CONFLICT (entity_key) DO UPDATE SET updated_at = excluded.updated_at")
		if err := s.exec(ctx, tx, q); err != nil {
			return fmt.Errorf("upsert entity: %w", err)
		}
		return s.upsertAttrs(ctx, tx, tblEntAttrs, "entity_key", key, e.Attributes)
	})
}

func (s *Store) UpsertRelationship(ctx context.Context, r graph.Relationship) error {
	key := r.Key()
	src, dst := r.Source.String(), r.Target.String()
	now := s.now().UTC().Format(timestampFmt)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, ep := range []graph.EntityKey{r.Source, r.Target} {
			ok, err := s.exists(ctx, tx, ep.String())
			if err != nil {
				return err
			}
			if !ok {
				return &graph.MissingEndpointError{Key: ep}
			}
		}

		q := s.sb.Insert(tblRels).
			Columns("rel_key", "source_key", "rel_type", "target_key", "created_at", "updated_at").
			Values(key, src, r.Type, dst, now, now).
			Suffix("ON CONFLICT (rel_key) DO UPDATE SET updated_at = excluded.updated_at")
		if err := s.exec(ctx, tx, q); err != nil {
			return fmt.Errorf("upsert relationship: %w", err)
		}
		return s.upsertAttrs(ctx, tx, tblRelAttrs, "rel_key", key, r.Attributes)
	})
}

func (s *Store) upsertAttrs(ctx context.Context, tx *sql.Tx, table, keyCol, key string, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	q := s.sb.Insert(table).Columns(keyCol, "name", "kind", "value")
	for _, name := range graph.SortedKeys(attrs) {
		kind, value, err := encodeValue(attrs[name])
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		q = q.Values(key, name, kind, value)
	}
	q = q.Suffix(fmt.Sprintf("ON CONFLICT (%s, name) DO UPDATE SET kind = excluded.kind, value = excluded.value", keyCol))
	if err := s.exec(ctx, tx, q); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, tx *sql.Tx, entityKey string) (bool, error) {
	query, args, err := s.sb.Select("1").From(tblEntities).Where(sq.Eq{"entity_key": entityKey}).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", entityKey, err)
	}
	return true, nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, q sq.InsertBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats counts stored entities and relationships.
func (s *Store) Stats(ctx context.Context) (graph.Stats, error) {
	var st graph.Stats
	for _, c := range []struct {
		table string
		dst   *int
	}{{tblEntities, &st.Entities}, {tblRels, &st.Relationships}} {
		query, args, err := s.sb.Select("COUNT(*)").From(c.table).ToSql()
		if err != nil {
			return st, err
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dst); err != nil {
			return st, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return st, nil
}

// GetEntity loads one entity with its attributes.
func (s *Store) GetEntity(ctx context.Context, key graph.EntityKey) (graph.Entity, bool, error) {
	query, args, err := s.sb.Select("1").From(tblEntities).Where(sq.Eq{"entity_key": key.String()}).ToSql()
	if err != nil {
		return graph.Entity{}, false, err
	}
	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.Entity{}, false, nil
		}
		return graph.Entity{}, false, err
	}
	attrs, err := s.loadAttrs(ctx, tblEntAttrs, "entity_key", key.String())
	if err != nil {
		return graph.Entity{}, false, err
	}
	return graph.Entity{Key: key, Attributes: attrs}, true, nil
}

// GetRelationship loads one relationship with its attributes.
func (s *Store) GetRelationship(ctx context.Context, source graph.EntityKey, typ string, target graph.EntityKey) (graph.Relationship, bool, error) {
	r := graph.Relationship{Type: typ, Source: source, Target: target}
	query, args, err := s.sb.Select("rel_key").From(tblRels).
		Where(sq.Eq{"source_key": source.String(), "rel_type": typ, "target_key": target.String()}).ToSql()
	if err != nil {
		return r, false, err
	}
	var key string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, false, nil
		}
		return r, false, err
	}
	if r.Attributes, err = s.loadAttrs(ctx, tblRelAttrs, "rel_key", key); err != nil {
		return r, false, err
	}
	return r, true, nil
}

func (s *Store) loadAttrs(ctx context.Context, table, keyCol, key string) (map[string]any, error) {
	query, args, err := s.sb.Select("name", "kind", "value").From(table).Where(sq.Eq{keyCol: key}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var name, kind, value string
		if err := rows.Scan(&name, &kind, &value); err != nil {
			return nil, err
		}
		v, err := decodeValue(kind, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", key, name, err)
		}
		out[name] = v
	}
	return out, rows.Err()
}
