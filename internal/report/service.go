// Package report renders queue state and merge outcomes as XLSX workbooks.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
)

const (
	SheetJobs      = "Jobs"
	SheetSummary   = "Summary"
	SheetFragments = "Fragments"
	SheetDangling  = "Dangling"
)

// Service produces XLSX bytes for reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// JobsXLSX returns a workbook with one row per job plus a per-status summary.
func (s *Service) JobsXLSX(queue []jobs.Job) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	rows := make([][]any, 0, len(queue))
	for _, j := range queue {
		rows = append(rows, []any{
			j.JobID,
			string(j.Status),
			j.SourcePath,
			j.OutputPath,
			formatTime(j.LastUpdated),
			formatTime(j.CreatedAt),
			truncate(j.LastError, 240),
		})
	}
	if err := writeSheet(f, SheetJobs, []string{
		"Job ID", "Status", "Source Path", "Output Path", "Last Updated", "Created At", "Last Error",
	}, rows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(SheetJobs, "A", "B", 18)
	_ = f.SetColWidth(SheetJobs, "C", "D", 60)
	_ = f.SetColWidth(SheetJobs, "E", "F", 22)
	_ = f.SetColWidth(SheetJobs, "G", "G", 60)

	counts := jobs.Counts(queue)
	summary := make([][]any, 0, len(constants.AllStatuses))
	for _, st := range constants.AllStatuses {
		summary = append(summary, []any{string(st), counts[st]})
	}
	summary = append(summary, []any{"total", len(queue)})
	if err := writeSheet(f, SheetSummary, []string{"Status", "Jobs"}, summary); err != nil {
		return nil, err
	}

	out, err := finish(f, SheetJobs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("report.jobs.ok", "rows", len(queue), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// MergeXLSX returns a workbook with per-fragment counts and every dangling
// reference of a merge pass.
func (s *Service) MergeXLSX(rep graph.MergeReport) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	frows := make([][]any, 0, len(rep.Fragments))
	var drows [][]any
	for _, fr := range rep.Fragments {
		frows = append(frows, []any{fr.FragmentID, fr.Path, fr.Nodes, fr.Edges, len(fr.Dangling), fr.Err})
		for _, d := range fr.Dangling {
			drows = append(drows, []any{d.FragmentID, d.EdgeType, d.Index, d.Source.String(), d.Target.String(), d.MissingKey.String()})
		}
	}
	frows = append(frows, []any{"total", "", rep.Nodes, rep.Edges, rep.Dangling, fmt.Sprintf("%d failed", rep.Failed)})

	if err := writeSheet(f, SheetFragments, []string{
		"Fragment", "Path", "Nodes", "Edges", "Dangling", "Error",
	}, frows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(SheetFragments, "A", "A", 24)
	_ = f.SetColWidth(SheetFragments, "B", "B", 60)
	_ = f.SetColWidth(SheetFragments, "F", "F", 48)

	if err := writeSheet(f, SheetDangling, []string{
		"Fragment", "Edge Type", "Index", "Source", "Target", "Missing Key",
	}, drows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(SheetDangling, "A", "B", 22)
	_ = f.SetColWidth(SheetDangling, "D", "F", 32)

	out, err := finish(f, SheetFragments)
	if err != nil {
		return nil, err
	}
	s.logger.Info("report.merge.ok",
		"fragments", len(rep.Fragments),
		"dangling", rep.Dangling,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}

// finish drops the default sheet, activates first and serializes.
func finish(f *excelize.File, first string) ([]byte, error) {
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}
	if idx, _ := f.GetSheetIndex(first); idx != -1 {
		f.SetActiveSheet(idx)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
