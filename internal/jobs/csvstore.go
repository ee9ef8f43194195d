package jobs

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/utils"
)

// Column names of the queue file, in write order.
const (
	ColJobID       = "job_id"
	ColSourcePath  = "source_path"
	ColStatus      = "status"
	ColOutputPath  = "output_path"
	ColLastUpdated = "last_updated"
	ColCreatedAt   = "created_at"
	ColLastError   = "last_error"
)

var header = []string{ColJobID, ColSourcePath, ColStatus, ColOutputPath, ColLastUpdated, ColCreatedAt, ColLastError}

// legacyColumns maps column names of older queue files onto current ones.
var legacyColumns = map[string]string{
	"patient_id":           ColJobID,
	"filepath":             ColSourcePath,
	"jobstatus":            ColStatus,
	"llm_output_full_path": ColOutputPath,
	"date_created":         ColCreatedAt,
}

const timeLayout = time.RFC3339

// ErrDuplicateJobID is returned when a queue file lists the same job_id twice.
var ErrDuplicateJobID = errors.New("duplicate job_id")

// CSVStore reads and checkpoints the queue file. Columns are mapped by header
// name, so files without the optional trailing columns still load.
type CSVStore struct {
	path   string
	logger *slog.Logger
}

func NewCSVStore(path string, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{path: path, logger: logger}
}

func (s *CSVStore) Path() string { return s.path }

// Load reads the whole queue into memory.
func (s *CSVStore) Load() ([]Job, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	defer f.Close()

	jobs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", s.path, err)
	}
	s.logger.Debug("jobs.load.ok", "path", s.path, "jobs", len(jobs))
	return jobs, nil
}

// Save durably replaces the queue file with jobs.
func (s *CSVStore) Save(jobs []Job) error {
	var buf bytes.Buffer
	if err := Encode(&buf, jobs); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		s.logger.Error("jobs.checkpoint.failed", "path", s.path, "error", err)
		return fmt.Errorf("checkpoint queue: %w", err)
	}
	s.logger.Info("jobs.checkpoint.saved", "path", s.path, "jobs", len(jobs))
	return nil
}

// Decode parses a queue file.
func Decode(r io.Reader) ([]Job, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range head {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := legacyColumns[name]; ok {
			name = alias
		}
		idx[name] = i
	}
	for _, req := range []string{ColJobID, ColSourcePath, ColStatus} {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("missing required column %q", req)
		}
	}

	var (
		out  []Job
		seen = map[string]int{}
		line = 1
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		status, ok := constants.ParseJobStatus(cell(ColStatus))
		if !ok {
			return nil, fmt.Errorf("line %d: unknown status %q", line, cell(ColStatus))
		}
		j := Job{
			JobID:      cell(ColJobID),
			SourcePath: cell(ColSourcePath),
			Status:     status,
			OutputPath: cell(ColOutputPath),
			LastError:  cell(ColLastError),
		}
		if j.LastUpdated, err = parseTime(cell(ColLastUpdated)); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, ColLastUpdated, err)
		}
		if j.CreatedAt, err = parseTime(cell(ColCreatedAt)); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, ColCreatedAt, err)
		}
		if j.JobID != "" {
			if prev, dup := seen[j.JobID]; dup {
				return nil, fmt.Errorf("line %d: %w %q (first on line %d)", line, ErrDuplicateJobID, j.JobID, prev)
			}
			seen[j.JobID] = line
		}
		out = append(out, j)
	}
	return out, nil
}

// Encode writes jobs in queue-file format.
func Encode(w io.Writer, jobs []Job) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, j := range jobs {
		rec := []string{
			j.JobID,
			j.SourcePath,
			string(j.Status),
			j.OutputPath,
			formatTime(j.LastUpdated),
			formatTime(j.CreatedAt),
			j.LastError,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write job %q: %w", j.JobID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseTime accepts RFC3339 and the "YYYY-MM-DD HH:MM:SS[.ffffff]" form
// older queue files carry.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
