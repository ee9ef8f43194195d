// Package cmd implements the kgx command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/clinicalgraph/internal/common"
	"github.com/joseph-ayodele/clinicalgraph/internal/telemetry"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	v        *viper.Viper
	cfgFile  string
	cfg      *common.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	shutdown telemetry.ShutdownFunc
}

// persistent flags and the config keys they override
var rootFlags = []struct {
	name, key, usage string
}{
	{"jobs", "queue.jobs_path", "queue file (CSV)"},
	{"notes", "queue.notes_dir", "case notes directory"},
	{"out-dir", "queue.output_dir", "fragment output directory"},
	{"backend", "graph.backend", "graph backend: memory, sqlite, postgres or neo4j"},
	{"dsn", "graph.dsn", "sqlite path or postgres URL"},
	{"llm-provider", "llm.provider", "inference provider: ollama or openai"},
	{"llm-url", "llm.base_url", "inference endpoint base URL"},
	{"model", "llm.model", "model name"},
	{"log-level", "telemetry.log_level", "debug, info, warn or error"},
	{"log-format", "telemetry.log_format", "json or text"},
	{"trace", "telemetry.trace_exporter", "trace exporter: none or stdout"},
}

// NewRootCommand builds the kgx command tree with a fresh configuration.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	common.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "kgx",
		Short: "Extract knowledge-graph fragments from clinical case notes and merge them",
		Long: `kgx drives the clinical knowledge-graph pipeline.

The job queue is a CSV file checkpointed as jobs finish, so an interrupted
run resumes where it stopped. Fragments land next to each other as
patient_<job_id>_graph.json and merge idempotently into the graph store.

Examples:
  kgx jobs sync --notes ./notes
  kgx extract --workers 2
  kgx merge --backend sqlite --dsn graph.db --report merge.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	for _, f := range rootFlags {
		pf.String(f.name, "", f.usage)
		_ = a.v.BindPFlag(f.key, pf.Lookup(f.name))
	}

	root.AddCommand(
		newJobsCmd(a),
		newExtractCmd(a),
		newMergeCmd(a),
		newReportCmd(a),
		newRunCmd(a),
		newGraphCmd(a),
		newNoteCmd(a),
	)
	return root
}

// Execute runs kgx with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}
	a.cfg = common.LoadConfig(a.v)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger = telemetry.NewLogger(a.cfg.Telemetry.LogLevel, a.cfg.Telemetry.LogFormat, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)

	tp, shutdown, err := telemetry.NewTracerProvider(a.cfg.Telemetry.TraceExporter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.tracer = telemetry.Tracer(tp)
	a.shutdown = shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return a.shutdown(ctx)
}

func (a *app) deps() Deps {
	return Deps{Logger: a.logger, Tracer: a.tracer}
}
