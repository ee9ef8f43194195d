package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
)

const fragmentJSON = `{
  "patient_nodes": [{"id": "P1", "name": "Unknown", "age": 71, "gender": "Female", "ethnicity": "Malay"}],
  "medication_nodes": [{"id": "Amlodipine", "name": "Amlodipine"}],
  "condition_nodes": [{"id": "HTN", "name": "Hypertension"}],
  "encounter_nodes": [], "lab_nodes": [],
  "prescribed_edges": [{"patient_id": "P1", "medication_id": "Amlodipine", "start_date": "2021-06-01", "end_date": "Ongoing", "dose": "5mg", "intensity": "OD"}],
  "condition_edges": [
    {"patient_id": "P1", "condition_id": "HTN", "occurrence_date": "2021-06-01", "status": "Chronic"},
    {"patient_id": "P1", "condition_id": "CKD", "occurrence_date": "2021-06-01", "status": "Active"}
  ],
  "encounter_edges": [], "lab_result_edges": [],
  "confidence": 5, "justification": "clinic letter"
}`

type env struct {
	dir, notes, jobs, out string
	calls                 atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:   dir,
		notes: filepath.Join(dir, "notes"),
		jobs:  filepath.Join(dir, "jobs.csv"),
		out:   filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(e.notes, 0o755))
	for _, n := range []string{"File1.txt", "File2.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(e.notes, n), []byte("Seen in clinic. "+n), 0o644))
	}
	return e
}

func (e *env) ollama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test",
			"message": map[string]string{"role": "assistant", "content": fragmentJSON},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := [][2]string{{"--jobs", e.jobs}, {"--notes", e.notes}, {"--out-dir", e.out}, {"--backend", "memory"}, {"--log-level", "error"}}
	full := append([]string(nil), args...)
	for _, kv := range base {
		if !slices.Contains(args, kv[0]) {
			full = append(full, kv[0], kv[1])
		}
	}
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(full)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) load(t *testing.T) []jobs.Job {
	t.Helper()
	list, err := jobs.NewCSVStore(e.jobs, nil).Load()
	require.NoError(t, err)
	return list
}

func TestJobsSyncAndList(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "jobs", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "added 2")

	list := e.load(t)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].JobID)
	assert.Equal(t, constants.JobStatusPending, list[0].Status)

	out, err = e.run(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pending=2 total=2")

	out, err = e.run(t, "jobs", "list", "--json")
	require.NoError(t, err)
	var views []jobView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	assert.Len(t, views, 2)
}

func TestExtractThenMergeWithReport(t *testing.T) {
	e := newEnv(t)
	srv := e.ollama(t)

	_, err := e.run(t, "jobs", "sync")
	require.NoError(t, err)

	out, err := e.run(t, "extract", "--llm-url", srv.URL, "--checkpoint-every", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 processed")
	assert.Equal(t, int32(2), e.calls.Load())
	for _, j := range e.load(t) {
		assert.Equal(t, constants.JobStatusCompleted, j.Status)
		assert.FileExists(t, j.OutputPath)
	}

	// nothing left to do on a second run
	_, err = e.run(t, "extract", "--llm-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), e.calls.Load())

	reportPath := filepath.Join(e.dir, "merge.xlsx")
	out, err = e.run(t, "merge", "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 dangling")
	assert.Contains(t, out, "graph: 3 entities, 2 relationships")

	f, err := excelize.OpenFile(reportPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Dangling")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRequeueAndReport(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "jobs", "sync")
	require.NoError(t, err)

	store := jobs.NewCSVStore(e.jobs, nil)
	list := e.load(t)
	list[0].Status = constants.JobStatusFailedTimeout
	list[1].Status = constants.JobStatusFailedSystem
	require.NoError(t, store.Save(list))

	out, err := e.run(t, "jobs", "requeue", "--status", "failed_timeout")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 1 job(s)")
	list = e.load(t)
	assert.Equal(t, constants.JobStatusPending, list[0].Status)
	assert.Equal(t, constants.JobStatusFailedSystem, list[1].Status)

	_, err = e.run(t, "jobs", "requeue", "--status", "bogus")
	assert.Error(t, err)

	xlsx := filepath.Join(e.dir, "jobs.xlsx")
	_, err = e.run(t, "report", "jobs", "--out", xlsx)
	require.NoError(t, err)
	assert.FileExists(t, xlsx)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "jobs", "list", "--llm-provider", "bard")
	assert.Error(t, err)
}

func TestNoteAndGraphHealth(t *testing.T) {
	e := newEnv(t)
	srv := e.ollama(t)

	out, err := e.run(t, "note", filepath.Join(e.notes, "File1.txt"), "--llm-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"patient_nodes"`)
	_, statErr := os.Stat(e.jobs)
	assert.True(t, os.IsNotExist(statErr), "note must not create the queue file")

	dsn := filepath.Join(e.dir, "graph.db")
	out, err = e.run(t, "graph", "health", "--backend", "sqlite", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "graph health: OK (sqlite)")
	assert.Contains(t, out, "entities: 0")
}
