package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/fragments"
	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
	"github.com/joseph-ayodele/clinicalgraph/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DanglingReference is an edge skipped because an endpoint does not exist.
type DanglingReference struct {
	FragmentID string
	EdgeType   string
	Index      int // position within the fragment's collection for EdgeType
	Source     EntityKey
	Target     EntityKey
	MissingKey EntityKey
}

func (d DanglingReference) String() string {
	return fmt.Sprintf("%s: %s[%d] %s->%s missing %s", d.FragmentID, d.EdgeType, d.Index, d.Source, d.Target, d.MissingKey)
}

// FragmentReport is the outcome of merging one fragment.
type FragmentReport struct {
	FragmentID string
	Path       string
	Nodes      int
	Edges      int
	Dangling   []DanglingReference
	Err        string // read or store failure; empty on success
}

// MergeReport aggregates a merge pass.
type MergeReport struct {
	Fragments []FragmentReport
	Nodes     int
	Edges     int
	Dangling  int
	Failed    int
	Elapsed   time.Duration
}

// Merger applies fragments to a Store.
type Merger struct {
	store   Store
	workers int
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Merger)

// WithWorkers sets how many fragments MergeFiles merges concurrently.
func WithWorkers(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Merger) {
		if t != nil {
			m.tracer = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMerger(store Store, opts ...Option) *Merger {
	m := &Merger{
		store:   store,
		workers: 1,
		tracer:  telemetry.Tracer(nil),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MergeFragment upserts every node, then every edge. An edge with a missing
// endpoint is skipped and reported; it does not stop the rest of the
// fragment. Any other store error is returned and ends the fragment early,
// leaving the upserts already applied in place.
func (m *Merger) MergeFragment(ctx context.Context, fragmentID string, frag *schema.Fragment) (FragmentReport, error) {
	rep := FragmentReport{FragmentID: fragmentID}
	ctx, span := m.tracer.Start(ctx, "graph.merge_fragment", trace.WithAttributes(attribute.String("fragment_id", fragmentID)))
	defer span.End()

	nodes, edges := FromFragment(frag)
	for _, n := range nodes {
		if err := m.store.UpsertEntity(ctx, n); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upsert entity")
			return rep, fmt.Errorf("upsert %s: %w", n.Key, err)
		}
		rep.Nodes++
	}

	for _, a := range edges {
		r := a.Relationship
		err := m.store.UpsertRelationship(ctx, r)
		var missing *MissingEndpointError
		switch {
		case err == nil:
			rep.Edges++
		case errors.As(err, &missing):
			d := DanglingReference{
				FragmentID: fragmentID,
				EdgeType:   r.Type,
				Index:      a.Index,
				Source:     r.Source,
				Target:     r.Target,
				MissingKey: missing.Key,
			}
			rep.Dangling = append(rep.Dangling, d)
			m.logger.Warn("graph.merge.dangling",
				"fragment_id", fragmentID,
				"edge_type", r.Type,
				"index", a.Index,
				"missing_key", missing.Key.String(),
			)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "upsert relationship")
			return rep, fmt.Errorf("upsert %s: %w", r.Key(), err)
		}
	}

	span.SetAttributes(
		attribute.Int("nodes", rep.Nodes),
		attribute.Int("edges", rep.Edges),
		attribute.Int("dangling", len(rep.Dangling)),
	)
	m.logger.Info("graph.merge.fragment_ok",
		"fragment_id", fragmentID,
		"nodes", rep.Nodes,
		"edges", rep.Edges,
		"dangling", len(rep.Dangling),
	)
	return rep, nil
}

// MergeFiles reads and merges fragment files. A fragment that cannot be read
// or merged is recorded in its report and the pass moves on. Reports come
// back in path order.
func (m *Merger) MergeFiles(ctx context.Context, paths []string) (MergeReport, error) {
	start := time.Now()
	reports := make([]FragmentReport, len(paths))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(m.workers)
	for i, p := range paths {
		if ctx.Err() != nil {
			break
		}
		i, p := i, p
		g.Go(func() error {
			rep := m.mergeFile(ctx, p)
			mu.Lock()
			reports[i] = rep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := MergeReport{Elapsed: time.Since(start)}
	for _, r := range reports {
		if r.Path == "" {
			continue // not started before cancellation
		}
		out.Fragments = append(out.Fragments, r)
		out.Nodes += r.Nodes
		out.Edges += r.Edges
		out.Dangling += len(r.Dangling)
		if r.Err != "" {
			out.Failed++
		}
	}
	sort.SliceStable(out.Fragments, func(a, b int) bool { return out.Fragments[a].Path < out.Fragments[b].Path })

	m.logger.Info("graph.merge.done",
		"fragments", len(out.Fragments),
		"nodes", out.Nodes,
		"edges", out.Edges,
		"dangling", out.Dangling,
		"failed", out.Failed,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, ctx.Err()
}

func (m *Merger) mergeFile(ctx context.Context, path string) FragmentReport {
	id := fragments.FragmentID(path)
	frag, err := fragments.Read(path)
	if err != nil {
		m.logger.Error("graph.merge.read_failed", "fragment_id", id, "path", path, "error", err)
		return FragmentReport{FragmentID: id, Path: path, Err: err.Error()}
	}
	rep, err := m.MergeFragment(ctx, id, frag)
	rep.Path = path
	if err != nil {
		m.logger.Error("graph.merge.failed", "fragment_id", id, "path", path, "error", err)
		rep.Err = err.Error()
	}
	return rep
}
