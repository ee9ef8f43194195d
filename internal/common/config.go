package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	LLM       LLMConfig
	Queue     QueueConfig
	Graph     GraphConfig
	Server    ServerConfig
	Telemetry TelemetryConfig
}

// LLMConfig holds inference-endpoint configuration. These are request-level
// settings; none of them is varied or retried per job.
type LLMConfig struct {
	Provider          string // ollama | openai
	BaseURL           string
	Model             string
	APIKey            string
	Temperature       float32
	NumCtx            int
	Stop              []string
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unpaced
}

// QueueConfig holds job-queue related configuration
type QueueConfig struct {
	JobsPath        string
	NotesDir        string
	OutputDir       string
	CheckpointEvery int
	Workers         int
}

// GraphConfig holds graph-store related configuration
type GraphConfig struct {
	Backend       string // memory | sqlite | postgres | neo4j
	DSN           string // sqlite path or postgres URL
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	MergeWorkers  int
}

// ServerConfig holds daemon-related configuration
type ServerConfig struct {
	GRPCAddr      string
	WatchDebounce time.Duration
}

// TelemetryConfig holds logging and tracing configuration
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string // json | text
	TraceExporter string // none | stdout
}

// Backends accepted by GraphConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
)

// envKeys maps config keys onto their environment variable names.
var envKeys = map[string]string{
	"llm.provider":             "LLM_PROVIDER",
	"llm.base_url":             "LLM_BASE_URL",
	"llm.model":                "LLM_MODEL",
	"llm.api_key":              "LLM_API_KEY",
	"llm.temperature":          "LLM_TEMPERATURE",
	"llm.num_ctx":              "LLM_NUM_CTX",
	"llm.stop":                 "LLM_STOP",
	"llm.timeout":              "LLM_TIMEOUT",
	"llm.requests_per_minute":  "LLM_REQUESTS_PER_MINUTE",
	"queue.jobs_path":          "JOBS_PATH",
	"queue.notes_dir":          "NOTES_DIR",
	"queue.output_dir":         "OUTPUT_DIR",
	"queue.checkpoint_every":   "CHECKPOINT_EVERY",
	"queue.workers":            "QUEUE_WORKERS",
	"graph.backend":            "GRAPH_BACKEND",
	"graph.dsn":                "GRAPH_DSN",
	"graph.neo4j_uri":          "NEO4J_URI",
	"graph.neo4j_user":         "NEO4J_USER",
	"graph.neo4j_password":     "NEO4J_PASSWORD",
	"graph.neo4j_database":     "NEO4J_DATABASE",
	"graph.merge_workers":      "GRAPH_MERGE_WORKERS",
	"server.grpc_addr":         "GRPC_ADDR",
	"server.watch_debounce":    "WATCH_DEBOUNCE",
	"telemetry.log_level":      "LOG_LEVEL",
	"telemetry.log_format":     "LOG_FORMAT",
	"telemetry.trace_exporter": "TRACE_EXPORTER",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "") // empty = provider default
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.num_ctx", 4096)
	v.SetDefault("llm.stop", []string{"<|end_of_text|>", "###"})
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("queue.jobs_path", "jobs.csv")
	v.SetDefault("queue.notes_dir", "notes")
	v.SetDefault("queue.output_dir", "graph_outputs")
	v.SetDefault("queue.checkpoint_every", 5)
	v.SetDefault("queue.workers", 1)

	v.SetDefault("graph.backend", BackendSQLite)
	v.SetDefault("graph.dsn", "clinicalgraph.db")
	v.SetDefault("graph.neo4j_uri", "neo4j://127.0.0.1:7687")
	v.SetDefault("graph.neo4j_user", "neo4j")
	v.SetDefault("graph.merge_workers", 1)

	v.SetDefault("server.grpc_addr", ":8080")
	v.SetDefault("server.watch_debounce", 2*time.Second)

	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "json")
	v.SetDefault("telemetry.trace_exporter", "none")

	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
}

// LoadConfig reads configuration from v (defaults, optional config file, env, bound flags).
func LoadConfig(v *viper.Viper) *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          strings.ToLower(v.GetString("llm.provider")),
			BaseURL:           v.GetString("llm.base_url"),
			Model:             v.GetString("llm.model"),
			APIKey:            v.GetString("llm.api_key"),
			Temperature:       float32(v.GetFloat64("llm.temperature")),
			NumCtx:            v.GetInt("llm.num_ctx"),
			Stop:              v.GetStringSlice("llm.stop"),
			Timeout:           v.GetDuration("llm.timeout"),
			RequestsPerMinute: v.GetInt("llm.requests_per_minute"),
		},
		Queue: QueueConfig{
			JobsPath:        v.GetString("queue.jobs_path"),
			NotesDir:        v.GetString("queue.notes_dir"),
			OutputDir:       v.GetString("queue.output_dir"),
			CheckpointEvery: v.GetInt("queue.checkpoint_every"),
			Workers:         v.GetInt("queue.workers"),
		},
		Graph: GraphConfig{
			Backend:       strings.ToLower(v.GetString("graph.backend")),
			DSN:           v.GetString("graph.dsn"),
			Neo4jURI:      v.GetString("graph.neo4j_uri"),
			Neo4jUser:     v.GetString("graph.neo4j_user"),
			Neo4jPassword: v.GetString("graph.neo4j_password"),
			Neo4jDatabase: v.GetString("graph.neo4j_database"),
			MergeWorkers:  v.GetInt("graph.merge_workers"),
		},
		Server: ServerConfig{
			GRPCAddr:      v.GetString("server.grpc_addr"),
			WatchDebounce: v.GetDuration("server.watch_debounce"),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      v.GetString("telemetry.log_level"),
			LogFormat:     v.GetString("telemetry.log_format"),
			TraceExporter: v.GetString("telemetry.trace_exporter"),
		},
	}
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Queue.CheckpointEvery < 1 {
		return NewAppError("CONFIG_ERROR", "CHECKPOINT_EVERY must be >= 1", ErrInvalidInput)
	}
	if c.Queue.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be >= 1", ErrInvalidInput)
	}
	if c.Queue.JobsPath == "" {
		return NewAppError("CONFIG_ERROR", "JOBS_PATH is required", ErrInvalidInput)
	}
	if c.Queue.OutputDir == "" {
		return NewAppError("CONFIG_ERROR", "OUTPUT_DIR is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "LLM_TIMEOUT must be positive", ErrInvalidInput)
	}
	switch c.Graph.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Graph.DSN == "" {
			return NewAppError("CONFIG_ERROR", "GRAPH_DSN is required for "+c.Graph.Backend, ErrInvalidInput)
		}
	case BackendNeo4j:
		if c.Graph.Neo4jURI == "" {
			return NewAppError("CONFIG_ERROR", "NEO4J_URI is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown GRAPH_BACKEND %q", c.Graph.Backend), ErrInvalidInput)
	}
	return nil
}
