package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/clinicalgraph/internal/common"
	"github.com/joseph-ayodele/clinicalgraph/internal/extract"
	"github.com/joseph-ayodele/clinicalgraph/internal/fragments"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph/neo4jstore"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph/sqlstore"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
	"github.com/joseph-ayodele/clinicalgraph/internal/llm/ollama"
	"github.com/joseph-ayodele/clinicalgraph/internal/llm/openai"
	"github.com/joseph-ayodele/clinicalgraph/internal/notes"
	"github.com/joseph-ayodele/clinicalgraph/internal/pipeline"
	"github.com/joseph-ayodele/clinicalgraph/internal/queue"
)

// Deps carries the ambient collaborators every component receives.
type Deps struct {
	Logger *slog.Logger
	Tracer trace.Tracer
}

// GraphStore is what the CLI and daemon need from a backend.
type GraphStore interface {
	graph.Store
	graph.StatsReader
}

// NewProvider builds the configured inference client.
func NewProvider(cfg common.LLMConfig, deps Deps) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			NumCtx:      cfg.NumCtx,
			Stop:        cfg.Stop,
			Timeout:     cfg.Timeout,
		}, deps.Logger), nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Stop:        cfg.Stop,
			Timeout:     cfg.Timeout,
		}, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OpenGraphStore opens the configured backend. The returned func releases it.
func OpenGraphStore(ctx context.Context, cfg common.GraphConfig, deps Deps) (GraphStore, func(), error) {
	switch cfg.Backend {
	case common.BackendMemory:
		return graph.NewMemoryStore(), func() {}, nil
	case common.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.DSN, deps.Logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case common.BackendPostgres:
		s, err := sqlstore.OpenPostgres(ctx, sqlstore.PostgresConfig{
			DSN:             cfg.DSN,
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     5 * time.Second,
		}, deps.Logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case common.BackendNeo4j:
		s, err := neo4jstore.Open(ctx, neo4jstore.Config{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		}, deps.Logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
	}
}

// NewPipeline wires the queue, extractor and fragment store from cfg. The
// processor is built only when provider is non-nil and the merger only when
// store is non-nil.
func NewPipeline(cfg *common.Config, provider llm.Provider, store graph.Store, deps Deps, qopts ...queue.Option) *pipeline.Pipeline {
	jobStore := jobs.NewCSVStore(cfg.Queue.JobsPath, deps.Logger)
	frags := fragments.NewStore(cfg.Queue.OutputDir)

	p := &pipeline.Pipeline{
		Logger:          deps.Logger,
		Jobs:            jobStore,
		NotesDir:        cfg.Queue.NotesDir,
		CheckpointEvery: cfg.Queue.CheckpointEvery,
		Fragments:       frags,
	}
	if provider != nil {
		inv := extract.NewInvoker(provider,
			extract.WithTimeout(cfg.LLM.Timeout),
			extract.WithRequestsPerMinute(cfg.LLM.RequestsPerMinute),
			extract.WithTracer(deps.Tracer),
			extract.WithLogger(deps.Logger),
		)
		opts := append([]queue.Option{
			queue.WithWorkers(cfg.Queue.Workers),
			queue.WithTracer(deps.Tracer),
			queue.WithLogger(deps.Logger),
		}, qopts...)
		p.Processor = queue.NewProcessor(inv, notes.NewReader(notes.Config{}, deps.Logger), frags, jobStore, opts...)
	}
	if store != nil {
		p.Merger = graph.NewMerger(store,
			graph.WithWorkers(cfg.Graph.MergeWorkers),
			graph.WithTracer(deps.Tracer),
			graph.WithLogger(deps.Logger),
		)
	}
	return p
}
