package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joseph-ayodele/clinicalgraph/constants"
)

var fileNumberRe = regexp.MustCompile(`File(\d+)`)

// SyncOptions controls Sync.
type SyncOptions struct {
	// Prune drops jobs whose source note no longer exists.
	Prune  bool
	Logger *slog.Logger
}

// Conflict is a discovered note whose derived job_id is already taken by a
// different source path. It is not queued.
type Conflict struct {
	JobID      string
	SourcePath string
	Existing   string
}

// SyncResult is the queue after Sync plus what changed.
type SyncResult struct {
	Jobs      []Job
	Added     []Job
	Orphans   []Job
	Conflicts []Conflict
}

// DeriveJobID returns the job id for a note file: the digits of a File<N>
// marker in the name, or the file stem.
func DeriveJobID(path string) string {
	base := filepath.Base(path)
	if m := fileNumberRe.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Sync discovers case notes under notesDir and appends a pending job for
// every note not already queued (matched by absolute source path). Existing
// rows keep their order and state. Jobs whose note disappeared are reported
// as orphans and kept unless opts.Prune is set.
func Sync(ctx context.Context, existing []Job, notesDir string, now time.Time, opts SyncOptions) (*SyncResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	root, err := filepath.Abs(notesDir)
	if err != nil {
		return nil, fmt.Errorf("notes dir: %w", err)
	}
	notes, err := discoverNotes(ctx, root)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	byPath := make(map[string]bool, len(existing))
	byID := make(map[string]string, len(existing))
	for _, j := range existing {
		if _, err := os.Stat(j.SourcePath); errors.Is(err, fs.ErrNotExist) {
			res.Orphans = append(res.Orphans, j)
			log.Warn("jobs.sync.orphan", "job_id", j.JobID, "source_path", j.SourcePath, "status", j.Status, "pruned", opts.Prune)
			if opts.Prune {
				continue
			}
		}
		// only kept jobs claim their path and id
		abs := absPath(j.SourcePath)
		byPath[abs] = true
		if j.JobID != "" {
			byID[j.JobID] = abs
		}
		res.Jobs = append(res.Jobs, j)
	}

	for _, p := range notes {
		if byPath[p] {
			continue
		}
		id := DeriveJobID(p)
		if other, taken := byID[id]; taken {
			res.Conflicts = append(res.Conflicts, Conflict{JobID: id, SourcePath: p, Existing: other})
			log.Error("jobs.sync.id_conflict", "job_id", id, "source_path", p, "existing", other)
			continue
		}
		j := Job{
			JobID:      id,
			SourcePath: p,
			Status:     constants.JobStatusPending,
			CreatedAt:  now.UTC(),
		}
		byPath[p] = true
		byID[id] = p
		res.Added = append(res.Added, j)
		res.Jobs = append(res.Jobs, j)
	}

	log.Info("jobs.sync.ok",
		"notes_dir", root,
		"notes", len(notes),
		"added", len(res.Added),
		"orphans", len(res.Orphans),
		"conflicts", len(res.Conflicts),
		"jobs", len(res.Jobs),
	)
	return res, nil
}

// discoverNotes returns absolute paths of every supported note below root, sorted.
func discoverNotes(ctx context.Context, root string) ([]string, error) {
	var out []string
	err := doublestar.GlobWalk(os.DirFS(root), "**/*", func(p string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !constants.IsNoteExt(filepath.Ext(p)) {
			return nil
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover notes in %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
