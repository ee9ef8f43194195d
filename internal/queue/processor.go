// Package queue drives the job queue through extraction and checkpoints it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/common"
	"github.com/joseph-ayodele/clinicalgraph/internal/extract"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
	"github.com/joseph-ayodele/clinicalgraph/internal/notes"
	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
	"github.com/joseph-ayodele/clinicalgraph/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Extractor turns note text into a validated fragment or an *extract.Failure.
type Extractor interface {
	Extract(ctx context.Context, sourceText, jobIdentifier string) (*schema.Fragment, error)
}

// NoteReader loads the text of a case note.
type NoteReader interface {
	Read(ctx context.Context, path string) (notes.Note, error)
}

// FragmentWriter persists a fragment at a path derived from the job id.
type FragmentWriter interface {
	Write(jobID string, frag *schema.Fragment) (string, error)
}

// Checkpointer durably persists the full job list.
type Checkpointer interface {
	Save(jobs []jobs.Job) error
}

// Summary describes one ProcessQueue run.
type Summary struct {
	RunID       string
	Total       int
	Skipped     int // already completed, or failed with WithPendingOnly
	Processed   int // reached a terminal state in this run
	ByStatus    map[constants.JobStatus]int
	Checkpoints int
	Interrupted bool
	Elapsed     time.Duration
}

// Processor owns the job list for the duration of a run. Extraction calls
// may run on a bounded worker pool, but job-list mutations and checkpoints
// happen on the calling goroutine, in queue order.
type Processor struct {
	extractor    Extractor
	reader       NoteReader
	writer       FragmentWriter
	checkpointer Checkpointer

	workers     int
	pendingOnly bool
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	onProgress  func(done, total int)
}

type Option func(*Processor)

// WithWorkers bounds the number of concurrent extraction calls.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPendingOnly restricts a run to pending jobs; failed jobs then need an
// explicit jobs.Requeue before they are attempted again.
func WithPendingOnly(on bool) Option {
	return func(p *Processor) { p.pendingOnly = on }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProgress registers a callback invoked after every committed job.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Processor) { p.onProgress = fn }
}

func NewProcessor(ex Extractor, reader NoteReader, writer FragmentWriter, cp Checkpointer, opts ...Option) *Processor {
	p := &Processor{
		extractor:    ex,
		reader:       reader,
		writer:       writer,
		checkpointer: cp,
		workers:      1,
		tracer:       telemetry.Tracer(nil),
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// outcome is the result of one job attempt, applied to the list on commit.
type outcome struct {
	pos        int
	status     constants.JobStatus
	outputPath string
	detail     string
	canceled   bool
}

// ProcessQueue processes every job that is not completed, mutating queue in
// place. The full list is checkpointed after every checkpointInterval
// terminal transitions and once more at the end of the run. A checkpoint
// failure aborts the run. Cancelling ctx stops dispatching new jobs; jobs cut
// short stay pending and the final checkpoint is still written.
func (p *Processor) ProcessQueue(ctx context.Context, queue []jobs.Job, checkpointInterval int) (Summary, error) {
	if checkpointInterval < 1 {
		return Summary{}, common.NewAppError("INVALID_ARGUMENT", "checkpoint interval must be >= 1", common.ErrInvalidInput)
	}

	start := time.Now()
	sum := Summary{
		RunID:    uuid.New().String(),
		Total:    len(queue),
		ByStatus: map[constants.JobStatus]int{},
	}
	ctx = common.WithRunID(ctx, sum.RunID)
	log := p.logger.With("run_id", sum.RunID)

	var todo []int
	for i, j := range queue {
		if j.Status == constants.JobStatusCompleted || (p.pendingOnly && j.Status.IsFailed()) {
			sum.Skipped++
			continue
		}
		todo = append(todo, i)
	}
	log.Info("queue.run.start",
		"jobs", len(queue),
		"todo", len(todo),
		"skipped", sum.Skipped,
		"workers", p.workers,
		"checkpoint_every", checkpointInterval,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Snapshot inputs so workers never read the list the committer writes.
	work := make([]jobs.Job, len(todo))
	for pos, idx := range todo {
		work[pos] = queue[idx]
	}

	// A slot is held from dispatch until commit, so at most p.workers jobs
	// are in flight or waiting in the reorder buffer. With one worker the
	// next job starts only after the previous one is committed.
	slots := make(chan struct{}, p.workers)
	results := make(chan outcome, len(todo))
	go func() {
		var g errgroup.Group
		g.SetLimit(p.workers)
	dispatch:
		for pos := range work {
			select {
			case slots <- struct{}{}:
			case <-runCtx.Done():
				break dispatch
			}
			if runCtx.Err() != nil {
				break
			}
			pos := pos
			g.Go(func() error {
				results <- p.runJob(runCtx, pos, work[pos])
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var (
		buffered  = map[int]outcome{}
		next      = 0
		sinceCkpt = 0
	)
	for r := range results {
		buffered[r.pos] = r
		for {
			o, ok := buffered[next]
			if !ok {
				break
			}
			delete(buffered, next)
			next++

			if o.canceled {
				<-slots
				continue
			}
			p.apply(&queue[todo[o.pos]], o)
			sum.Processed++
			sum.ByStatus[o.status]++
			sinceCkpt++
			log.Info("queue.progress", "done", sum.Processed, "todo", len(todo))
			if p.onProgress != nil {
				p.onProgress(sum.Processed, len(todo))
			}

			if sinceCkpt >= checkpointInterval {
				if err := p.checkpointer.Save(queue); err != nil {
					cancel()
					for range results {
					}
					log.Error("queue.run.aborted", "error", err, "processed", sum.Processed)
					sum.Elapsed = time.Since(start)
					return sum, fmt.Errorf("checkpoint after %d jobs: %w", sum.Processed, err)
				}
				sum.Checkpoints++
				sinceCkpt = 0
			}
			<-slots
		}
	}

	if err := p.checkpointer.Save(queue); err != nil {
		log.Error("queue.run.final_checkpoint_failed", "error", err)
		sum.Elapsed = time.Since(start)
		return sum, fmt.Errorf("final checkpoint: %w", err)
	}
	sum.Checkpoints++
	sum.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		sum.Interrupted = true
		log.Warn("queue.run.interrupted", "processed", sum.Processed, "todo", len(todo), "error", err)
		return sum, err
	}

	log.Info("queue.run.done",
		"processed", sum.Processed,
		"completed", sum.ByStatus[constants.JobStatusCompleted],
		"failed", sum.Processed-sum.ByStatus[constants.JobStatusCompleted],
		"checkpoints", sum.Checkpoints,
		"elapsed_ms", sum.Elapsed.Milliseconds(),
	)
	return sum, nil
}

func (p *Processor) apply(j *jobs.Job, o outcome) {
	j.Status = o.status
	j.LastUpdated = p.now().UTC()
	if o.status == constants.JobStatusCompleted {
		j.OutputPath = o.outputPath
		j.LastError = ""
		return
	}
	j.LastError = o.detail
}

// runJob attempts one job. It never panics and never returns an error: every
// problem becomes a terminal status, except cancellation of the run itself.
func (p *Processor) runJob(ctx context.Context, pos int, job jobs.Job) (out outcome) {
	out.pos = pos
	id := extract.DeriveIdentifier(job.JobID)
	ctx = common.WithJobID(ctx, job.JobID)
	log := p.logger.With("run_id", common.RunIDFromContext(ctx), "job_id", job.JobID, "patient_id", id)

	ctx, span := p.tracer.Start(ctx, "queue.job")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error("queue.job.panic", "panic", r)
			out = outcome{pos: pos, status: constants.JobStatusFailedParse, detail: fmt.Sprintf("panic: %v", r)}
		}
	}()

	log.Info("queue.job.start", "status", job.Status, "source_path", job.SourcePath)

	note, err := p.reader.Read(ctx, job.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{pos: pos, canceled: true}
		}
		log.Error("queue.job.read_failed", "error", err)
		return outcome{pos: pos, status: constants.JobStatusFailedParse, detail: "read note: " + err.Error()}
	}

	frag, err := p.extractor.Extract(ctx, note.Text, id)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("queue.job.canceled", "error", err)
			return outcome{pos: pos, canceled: true}
		}
		status := statusFor(err)
		log.Error("queue.job.failed", "status", status, "error", err)
		return outcome{pos: pos, status: status, detail: err.Error()}
	}

	path, err := p.writer.Write(job.JobID, frag)
	if err != nil {
		log.Error("queue.job.write_failed", "error", err)
		return outcome{pos: pos, status: constants.JobStatusFailedParse, detail: "write fragment: " + err.Error()}
	}

	log.Info("queue.job.completed", "output_path", path, "nodes", frag.NodeCount(), "edges", frag.EdgeCount())
	return outcome{pos: pos, status: constants.JobStatusCompleted, outputPath: path}
}

// statusFor maps failure kinds 1:1 onto failed_* states. Anything the
// invoker did not classify is failed_parse.
func statusFor(err error) constants.JobStatus {
	var f *extract.Failure
	if !errors.As(err, &f) {
		return constants.JobStatusFailedParse
	}
	switch f.Kind {
	case extract.KindInvalidIdentifier:
		return constants.JobStatusFailedBadID
	case extract.KindTimeout:
		return constants.JobStatusFailedTimeout
	case extract.KindSystem:
		return constants.JobStatusFailedSystem
	default:
		return constants.JobStatusFailedParse
	}
}
