package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	appErrors "revit-server-backup/internal/errors"
)

func sampleReport() *RunReport {
	start := time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC)
	report := &RunReport{
		RunID:      "run-1",
		Policy:     "all",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Outcomes: []Outcome{
			{ModelID: "A.rvt", Status: StatusSucceeded, Stage: StageDone, Bytes: 2048},
			{ModelID: "B.rvt", Status: StatusSucceeded, Stage: StageDone, Warnings: []string{"stale"}},
			{ModelID: "C.rvt", Status: StatusSkippedNotFound, Stage: StageSelected},
		},
	}
	failed := Outcome{ModelID: "D.rvt"}
	failed.fail(StageSnapshotCreated, appErrors.NewSnapshotError("tool exited with status 3", nil))
	report.Outcomes = append(report.Outcomes, failed)
	report.Summarize()
	return report
}

func TestRunReport_Summarize(t *testing.T) {
	report := sampleReport()

	assert.Equal(t, Summary{Total: 4, Succeeded: 2, SkippedNotFound: 1, Failed: 1, Warnings: 1}, report.Summary)
	assert.True(t, report.HasFailures())
	assert.Equal(t, 90*time.Second, report.Duration())
}

func TestRunReport_DurationUnfinished(t *testing.T) {
	report := &RunReport{StartedAt: time.Now()}
	assert.Equal(t, time.Duration(0), report.Duration())
}

func TestOutcome_Fail(t *testing.T) {
	report := sampleReport()
	failed := report.Outcomes[3]

	assert.True(t, failed.Failed())
	assert.Equal(t, StageSnapshotCreated, failed.Stage)
	assert.Equal(t, appErrors.ErrorTypeSnapshot, failed.ErrorType)
	assert.Contains(t, failed.Reason, "tool exited with status 3")
	assert.NotNil(t, failed.Err)
}

func TestRunReport_ToJSON(t *testing.T) {
	data, err := sampleReport().ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])

	outcomes := decoded["outcomes"].([]interface{})
	require.Len(t, outcomes, 4)
	last := outcomes[3].(map[string]interface{})
	assert.Equal(t, "failed", last["status"])
	assert.Equal(t, "snapshot_created", last["stage"])
	assert.Equal(t, "snapshot", last["error_type"])
	assert.NotContains(t, last, "Err")

	summary := decoded["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["skipped_not_found"])
}

func TestRunReport_ToYAML(t *testing.T) {
	data, err := sampleReport().ToYAML()
	require.NoError(t, err)

	var decoded struct {
		RunID    string `yaml:"run_id"`
		Outcomes []struct {
			ModelID string `yaml:"model_id"`
			Status  string `yaml:"status"`
		} `yaml:"outcomes"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Outcomes, 4)
	assert.Equal(t, "skipped_not_found", decoded.Outcomes[2].Status)
}
