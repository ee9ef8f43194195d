package extract

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/clinicalgraph/internal/common"
	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
	"github.com/joseph-ayodele/clinicalgraph/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const defaultTimeout = 5 * time.Minute

// Invoker issues exactly one inference request per call and never retries.
type Invoker struct {
	provider llm.Provider
	timeout  time.Duration
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithRequestsPerMinute paces calls to a shared endpoint. Zero disables pacing.
func WithRequestsPerMinute(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithTracer sets the tracer used for extract.invoke spans.
func WithTracer(t trace.Tracer) Option {
	return func(i *Invoker) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker creates an Invoker over the given inference provider.
func NewInvoker(p llm.Provider, opts ...Option) *Invoker {
	i := &Invoker{
		provider: p,
		timeout:  defaultTimeout,
		tracer:   telemetry.Tracer(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Extract turns one case note into a validated fragment. Every failure is a
// *Failure; the kinds are checked in order: invalid identifier (no request is
// made), timeout, system failure, parse failure.
func (i *Invoker) Extract(ctx context.Context, sourceText, jobIdentifier string) (*schema.Fragment, error) {
	reqID := uuid.New().String()
	log := i.logger.With("req_id", reqID, "job_id", common.JobIDFromContext(ctx), "patient_id", jobIdentifier)

	if !ValidIdentifier(jobIdentifier) {
		log.Error("extract.invoke.invalid_identifier")
		return nil, &Failure{Kind: KindInvalidIdentifier, Detail: "invalid patient identifier " + strconv.Quote(jobIdentifier)}
	}

	ctx, span := i.tracer.Start(ctx, "extract.invoke", trace.WithAttributes(
		attribute.String("patient_id", jobIdentifier),
		attribute.String("provider", i.provider.Name()),
	))
	defer span.End()

	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limiter")
			return nil, &Failure{Kind: KindSystem, Detail: "rate limiter wait", Err: err}
		}
	}

	start := time.Now()
	log.Info("extract.invoke.start", "provider", i.provider.Name(), "text_len", len(sourceText))

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := i.provider.Chat(callCtx, llm.ChatRequest{
		System: llm.BuildSystemPrompt(jobIdentifier),
		User:   llm.BuildUserPrompt(sourceText),
		Schema: schema.BuildFragmentJSONSchema(),
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(err)
		if isTimeout(callCtx, err) {
			span.SetStatus(codes.Error, string(KindTimeout))
			log.Error("extract.invoke.timeout", "error", err, "elapsed_ms", elapsed)
			return nil, &Failure{Kind: KindTimeout, Detail: "inference call exceeded " + i.timeout.String(), Err: err}
		}
		span.SetStatus(codes.Error, string(KindSystem))
		log.Error("extract.invoke.system_error", "error", err, "elapsed_ms", elapsed)
		return nil, &Failure{Kind: KindSystem, Detail: "inference call failed", Err: err}
	}

	frag, err := schema.Validate(llm.CleanContent(resp.Content))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindParse))
		log.Error("extract.invoke.parse_error", "error", err, "bytes", len(resp.Content), "elapsed_ms", elapsed)
		return nil, &Failure{Kind: KindParse, Detail: "response does not match fragment schema", Err: err}
	}

	span.SetAttributes(
		attribute.Int("nodes", frag.NodeCount()),
		attribute.Int("edges", frag.EdgeCount()),
	)
	log.Info("extract.invoke.ok",
		"model", resp.Model,
		"nodes", frag.NodeCount(),
		"edges", frag.EdgeCount(),
		"confidence", frag.Confidence,
		"elapsed_ms", elapsed,
	)
	return frag, nil
}

// isTimeout reports whether err stems from the call deadline or a transport
// timeout. Providers that only surface text are matched on wording.
func isTimeout(callCtx context.Context, err error) bool {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline")
}
