package processor

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/CloudyKit/jet"
)

// Report summarises one batch run from its run-log records.
type Report struct {
	RunID     string
	Generated time.Time
	Processed int
	Merged    int
	Skipped   int
	Failed    int
	Written   int
	Records   []RunRecord
}

// BuildReport tallies the run-log records into per-status counts.
func BuildReport(runID string, records []RunRecord) *Report {
	rep := &Report{
		RunID:     runID,
		Generated: time.Now().UTC(),
		Records:   records,
	}
	for _, r := range records {
		switch r.Status {
		case StatusOK:
			switch r.Stage {
			case StageProcess:
				rep.Processed++
				if r.Merged {
					rep.Merged++
				}
			case StageWrite:
				rep.Written++
			}
		case StatusSkipped:
			rep.Skipped++
		case StatusFailed:
			rep.Failed++
		}
	}
	return rep
}

// RenderReport executes the jet template at templatePath with the
// report as root context and writes the result to w.
func RenderReport(w io.Writer, templatePath string, rep *Report) error {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), filepath.Dir(templatePath), "/")

	template, err := view.GetTemplate(filepath.Base(templatePath))
	if err != nil {
		return fmt.Errorf("processor: report template: %w", err)
	}

	vars := make(jet.VarMap)
	if err := template.Execute(w, vars, rep); err != nil {
		return fmt.Errorf("processor: render report: %w", err)
	}
	return nil
}
