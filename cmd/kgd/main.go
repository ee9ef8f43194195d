package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/clinicalgraph/internal/cmd"
	"github.com/joseph-ayodele/clinicalgraph/internal/common"
	"github.com/joseph-ayodele/clinicalgraph/internal/ingest"
	"github.com/joseph-ayodele/clinicalgraph/internal/pipeline"
	"github.com/joseph-ayodele/clinicalgraph/internal/server"
	"github.com/joseph-ayodele/clinicalgraph/internal/telemetry"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	// Config: defaults, optional file, env
	v := viper.New()
	common.SetDefaults(v)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("read config %s: %v", path, err)
		}
	}
	cfg := common.LoadConfig(v)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Component logging and tracing
	slogger := telemetry.NewLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat, os.Stderr)
	tp, shutdown, err := telemetry.NewTracerProvider(cfg.Telemetry.TraceExporter, os.Stderr)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	deps := cmd.Deps{Logger: slogger, Tracer: telemetry.Tracer(tp)}

	provider, err := cmd.NewProvider(cfg.LLM, deps)
	if err != nil {
		log.Fatalf("llm provider: %v", err)
	}
	store, release, err := cmd.OpenGraphStore(ctx, cfg.Graph, deps)
	if err != nil {
		log.Fatalf("graph store: %v", err)
	}
	defer release()
	log.Infow("graph store ready", "backend", cfg.Graph.Backend)

	p := cmd.NewPipeline(cfg, provider, store, deps)

	// gRPC health + reflection
	srv := server.New(logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		if err := srv.Serve(ctx, lis); err != nil {
			log.Errorw("grpc serve", "error", err)
			stop()
		}
	}()

	// Watch notes; the initial scan triggers the first run.
	if err := os.MkdirAll(cfg.Queue.NotesDir, 0o755); err != nil {
		log.Fatalf("notes dir: %v", err)
	}
	batches, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Queue.NotesDir},
		InitialScan: true,
		Debounce:    cfg.Server.WatchDebounce,
		Logger:      slogger,
	})
	if err != nil {
		log.Fatalf("watch %s: %v", cfg.Queue.NotesDir, err)
	}
	log.Infow("watching notes", "dir", cfg.Queue.NotesDir, "debounce", cfg.Server.WatchDebounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down...")
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			log.Infow("notes changed", "files", len(batch))
			runOnce(ctx, p, srv, log)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			log.Warnw("watcher error", "error", err)
		}
	}
}

// runOnce reports NOT_SERVING while the queue cannot be checkpointed.
func runOnce(ctx context.Context, p *pipeline.Pipeline, srv *server.Server, log *zap.SugaredLogger) {
	res, err := p.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Infow("run interrupted", "processed", res.Extract.Processed)
			return
		}
		log.Errorw("run failed", "error", err)
		srv.SetServing(false)
		return
	}
	srv.SetServing(true)
	log.Infow("run complete",
		"run_id", res.Extract.RunID,
		"processed", res.Extract.Processed,
		"fragments", len(res.Merge.Fragments),
		"dangling", res.Merge.Dangling,
	)
}
