package processor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportRecords() []RunRecord {
	return []RunRecord{
		{Stage: StageProcess, Status: StatusOK, Date: "2023-06-14", ProductURI: "S2A_MSIL2A_A", Merged: true},
		{Stage: StageProcess, Status: StatusOK, Date: "2023-06-19", ProductURI: "S2B_MSIL2A_B"},
		{Stage: StageWrite, Status: StatusOK, Date: "2023-06-14", ProductURI: "S2A_MSIL2A_A", Output: "/out/a_merged.tif"},
		{Stage: StageProcess, Status: StatusFailed, Date: "2023-06-24", ProductURI: "S2A_MSIL2A_C", Error: "band B02 not found"},
		{Stage: StageProcess, Status: StatusSkipped, Date: "2023-06-29", ProductURI: "S2B_MSIL2A_D"},
	}
}

func TestBuildReport(t *testing.T) {
	rep := BuildReport("run-xyz", reportRecords())

	assert.Equal(t, "run-xyz", rep.RunID)
	assert.False(t, rep.Generated.IsZero())
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Merged)
	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, rep.Records, 5)
}

func TestRenderReport(t *testing.T) {
	dir := t.TempDir()
	tpl := filepath.Join(dir, "report.jet")
	content := "run {{.RunID}}: {{.Processed}} processed, {{.Failed}} failed\n{{range .Records}}{{.Status}} {{.ProductURI}}\n{{end}}"
	require.NoError(t, os.WriteFile(tpl, []byte(content), 0o644))

	rep := BuildReport("run-xyz", []RunRecord{
		{Stage: StageProcess, Status: StatusOK, ProductURI: "S2A_MSIL2A_A"},
		{Stage: StageProcess, Status: StatusFailed, ProductURI: "S2B_MSIL2A_B"},
	})

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, tpl, rep))

	out := buf.String()
	assert.Contains(t, out, "run run-xyz")
	assert.Contains(t, out, "1 processed, 1 failed")
	assert.Contains(t, out, "ok S2A_MSIL2A_A")
	assert.Contains(t, out, "failed S2B_MSIL2A_B")
}

func TestRenderReportShippedTemplate(t *testing.T) {
	rep := BuildReport("run-xyz", reportRecords())

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, filepath.Join("..", "templates", "run_report.jet"), rep))

	out := buf.String()
	assert.Contains(t, out, "Batch run run-xyz")
	assert.Contains(t, out, "scenes processed: 2")
	assert.Contains(t, out, "scene failures:   1")
	assert.Contains(t, out, "[failed] stage=process date=2023-06-24 product=S2A_MSIL2A_C error=band B02 not found")
	assert.Contains(t, out, "-> /out/a_merged.tif")
}

func TestRenderReportMissingTemplate(t *testing.T) {
	var buf bytes.Buffer
	err := RenderReport(&buf, filepath.Join(t.TempDir(), "absent.jet"), BuildReport("run-xyz", nil))
	assert.Error(t, err)
}
