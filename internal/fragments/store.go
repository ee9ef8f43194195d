// Package fragments persists extraction fragments, one JSON file per job, and
// discovers them for the merge pass.
package fragments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/schema"
	"github.com/joseph-ayodele/clinicalgraph/internal/utils"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Store is a directory of fragment files named patient_<job_id>_graph.json.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Path returns the deterministic location of the fragment for jobID.
func (s *Store) Path(jobID string) string {
	return filepath.Join(s.dir, FileName(jobID))
}

// FileName returns the fragment file name for jobID.
func FileName(jobID string) string {
	return constants.FragmentPrefix + unsafeChars.ReplaceAllString(jobID, "_") + constants.FragmentSuffix
}

// FragmentID recovers the fragment id (the job id) from a fragment path.
func FragmentID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, constants.FragmentSuffix)
	return strings.TrimPrefix(base, constants.FragmentPrefix)
}

// Write stores frag for jobID, replacing any previous fragment atomically.
// Writing the same fragment twice yields identical bytes.
func (s *Store) Write(jobID string, frag *schema.Fragment) (string, error) {
	b, err := json.MarshalIndent(frag, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fragment: %w", err)
	}
	path := s.Path(jobID)
	if err := utils.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write fragment %s: %w", path, err)
	}
	return path, nil
}

// Discover returns every fragment file below the store directory, sorted.
// A directory that does not exist yet holds no fragments.
func (s *Store) Discover(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(s.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("fragment dir: %w", err)
	}
	var out []string
	err := doublestar.GlobWalk(os.DirFS(s.dir), constants.FragmentGlob, func(p string, d os.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		out = append(out, filepath.Join(s.dir, filepath.FromSlash(p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover fragments: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Read loads and re-validates the fragment at path.
func Read(path string) (*schema.Fragment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}
	frag, err := schema.Validate(b)
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", path, err)
	}
	return frag, nil
}
