package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"revit-server-backup/internal/backup"
	"revit-server-backup/internal/catalog"
	"revit-server-backup/internal/config"
)

func newTestService(format OutputFormat) (*Service, *bytes.Buffer) {
	var buf bytes.Buffer
	svc := NewService(&DisplayConfig{
		ColorEnabled: false,
		OutputFormat: string(format),
		UseIcons:     false,
		Writer:       &buf,
	})
	return svc, &buf
}

func TestDisplayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DisplayConfig)
		wantErr string
	}{
		{name: "defaults are valid", modify: func(*DisplayConfig) {}},
		{name: "unknown format", modify: func(c *DisplayConfig) { c.OutputFormat = "xml" }, wantErr: "invalid output format 'xml'"},
		{name: "unknown theme", modify: func(c *DisplayConfig) { c.Theme = "neon" }, wantErr: "invalid theme 'neon'"},
		{name: "unknown table style", modify: func(c *DisplayConfig) { c.TableStyle = "fancy" }, wantErr: "invalid table style"},
		{name: "narrow table", modify: func(c *DisplayConfig) { c.MaxTableWidth = 10 }, wantErr: "max table width"},
		{
			name:    "verbose and quiet",
			modify:  func(c *DisplayConfig) { c.VerboseMode, c.QuietMode = true, true },
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDisplayConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTableFormatter_Render(t *testing.T) {
	tf := NewTableFormatter(nil, PlainTextTheme())
	tf.SetMaxWidth(-1)
	tf.SetHeaders([]string{"ID", "Size"})
	tf.SetColumnAlignment(1, AlignRight)
	tf.AddRow([]string{"a", "10"})
	tf.AddRow([]string{"long", "5"})

	expected := strings.Join([]string{
		"+------+------+",
		"| ID   | Size |",
		"+------+------+",
		"| a    |   10 |",
		"| long |    5 |",
		"+------+------+",
		"",
	}, "\n")
	assert.Equal(t, expected, tf.Render())
}

func TestTableFormatter_Truncates(t *testing.T) {
	tf := NewTableFormatter(nil, PlainTextTheme())
	tf.SetMaxWidth(20)
	tf.SetHeaders([]string{"Model"})
	tf.AddRow([]string{"ProjectA/Architecture/Central.rvt"})

	for _, line := range strings.Split(strings.TrimSpace(tf.Render()), "\n") {
		assert.LessOrEqual(t, visibleWidth(line), 20, line)
	}
	assert.Contains(t, tf.Render(), "...")
}

func TestTableFormatter_ColoredCellsKeepAlignment(t *testing.T) {
	colors := newColorSystem(DarkColorTheme(), true)
	tf := NewTableFormatter(nil, PlainTextTheme())
	tf.SetMaxWidth(-1)
	tf.SetStyle(CompactTableStyle)
	tf.AddRow([]string{colors.Colorize("ok", ColorGreen), "A.rvt"})
	tf.AddRow([]string{"fail", "B.rvt"})

	lines := strings.Split(strings.TrimRight(tf.Render(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, visibleWidth(lines[0]), visibleWidth(lines[1]))
}

func TestTableFormatter_Empty(t *testing.T) {
	assert.Empty(t, NewTableFormatter(nil, PlainTextTheme()).Render())
}

func TestIconSystem_Fallback(t *testing.T) {
	ascii := newIconSystem(false)
	unicode := newIconSystem(true)

	assert.Equal(t, "[FAIL]", ascii.RenderIcon("failed"))
	assert.Equal(t, "✗", unicode.RenderIcon("failed"))
	assert.Empty(t, ascii.RenderIcon("nonexistent"))
	assert.Equal(t, "[OK]", ascii.RenderIconWithColor("success", newColorSystem(DarkColorTheme(), false)))
}

func TestService_StatusMessages(t *testing.T) {
	svc, buf := newTestService(FormatTable)

	svc.Success("all good")
	svc.Warning("careful")
	svc.Error("broken")
	svc.Info("fyi")

	output := buf.String()
	assert.Contains(t, output, "[SUCCESS] all good")
	assert.Contains(t, output, "[WARNING] careful")
	assert.Contains(t, output, "[ERROR] broken")
	assert.Contains(t, output, "[INFO] fyi")
	assert.NotContains(t, output, "\x1b[")
}

func TestService_QuietSuppressesInfo(t *testing.T) {
	svc, buf := newTestService(FormatTable)
	svc.Config().QuietMode = true

	svc.PrintHeader("Title")
	svc.Info("fyi")
	svc.Error("broken")

	assert.Equal(t, "[ERROR] broken\n", buf.String())
}

func sampleReport() *backup.RunReport {
	start := time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC)
	report := &backup.RunReport{
		RunID:      "run-1",
		Policy:     "edited",
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Outcomes: []backup.Outcome{
			{ModelID: "ProjA/Arch.rvt", Status: backup.StatusSucceeded, Stage: backup.StageDone, Bytes: 3 * 1024 * 1024, RemoteID: "s3://bucket/ProjA/Arch.rvt"},
			{ModelID: "ProjA/MEP.rvt", Status: backup.StatusFailed, Stage: backup.StageSnapshotCreated, Reason: "tool exited with status 3"},
			{ModelID: "ProjB/Site.rvt", Status: backup.StatusSucceeded, Stage: backup.StageDone, Warnings: []string{"backup is stale"}},
		},
	}
	report.Summarize()
	return report
}

func TestService_RenderRunReportTable(t *testing.T) {
	svc, buf := newTestService(FormatTable)

	require.NoError(t, svc.RenderRunReport(sampleReport()))

	output := buf.String()
	assert.Contains(t, output, "Backup run run-1 (edited)")
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "3.0 MiB")
	assert.Contains(t, output, "tool exited with status 3")
	assert.Contains(t, output, "uploaded to s3://bucket/ProjA/Arch.rvt")
	assert.Contains(t, output, "1 warning(s): backup is stale")
	assert.Contains(t, output, "[ERROR] 3 models: 2 succeeded, 0 skipped, 1 failed, 1 with warnings (42s)")
}

func TestService_RenderRunReportSkipped(t *testing.T) {
	svc, buf := newTestService(FormatTable)
	report := &backup.RunReport{
		RunID:    "run-2",
		Policy:   "specific",
		Outcomes: []backup.Outcome{{ModelID: "Missing.rvt", Status: backup.StatusSkippedNotFound, Stage: backup.StageSelected}},
	}
	report.Summarize()

	require.NoError(t, svc.RenderRunReport(report))

	output := buf.String()
	assert.Contains(t, output, "[SKIP]")
	assert.Contains(t, output, "not found in catalog")
	assert.Contains(t, output, "[WARNING] 1 models: 0 succeeded, 1 skipped, 0 failed")
}

func TestService_RenderRunReportJSON(t *testing.T) {
	svc, buf := newTestService(FormatJSON)

	require.NoError(t, svc.RenderRunReport(sampleReport()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Len(t, decoded["outcomes"], 3)
}

func TestService_RenderModelRecords(t *testing.T) {
	records := []catalog.ModelRecord{
		{ID: "ProjA/Arch.rvt", LastEdit: time.Date(2024, 5, 9, 14, 30, 0, 0, time.Local)},
		{ID: "ProjA/Old.rvt"},
	}
	errs := []error{errors.New("ProjA/Broken.rvt: malformed modification timestamp")}

	t.Run("table", func(t *testing.T) {
		svc, buf := newTestService(FormatTable)
		require.NoError(t, svc.RenderModelRecords(records, errs))

		output := buf.String()
		assert.Contains(t, output, "2024-05-09 14:30:00")
		assert.Contains(t, output, "unknown")
		assert.Contains(t, output, "[WARNING] ProjA/Broken.rvt: malformed modification timestamp")
		assert.Contains(t, output, "2 models in catalog")
	})

	t.Run("yaml", func(t *testing.T) {
		svc, buf := newTestService(FormatYAML)
		require.NoError(t, svc.RenderModelRecords(records, errs))

		var decoded struct {
			Models []catalog.ModelRecord `yaml:"models"`
			Errors []string              `yaml:"errors"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded.Models, 2)
		assert.Equal(t, "ProjA/Arch.rvt", decoded.Models[0].ID)
		assert.Len(t, decoded.Errors, 1)
	})
}

func TestService_RenderHealth(t *testing.T) {
	svc, buf := newTestService(FormatTable)
	result := &config.HealthCheckResult{
		OverallHealth: config.HealthDegraded,
		ComponentStatus: map[string]string{
			"source": config.HealthHealthy,
			"target": config.HealthDegraded,
		},
		Issues:          []string{"target: insufficient write permissions"},
		Recommendations: []string{"Set snapshot_timeout"},
	}

	require.NoError(t, svc.RenderHealth(result))

	output := buf.String()
	assert.Less(t, strings.Index(output, "source"), strings.Index(output, "target"))
	assert.Contains(t, output, "[DEGRADED]")
	assert.Contains(t, output, "[ERROR] target: insufficient write permissions")
	assert.Contains(t, output, "[INFO] Set snapshot_timeout")
	assert.Contains(t, output, "[WARNING] Overall health: degraded")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "-", formatBytes(0))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 GiB", formatBytes(2*1024*1024*1024))
}

func TestProgressBar_Render(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(4, "working", &buf, nil, PlainTextTheme())
	bar.SetWidth(8)
	bar.SetUnicode(false)

	bar.Increment("")
	assert.Equal(t, "\r[##------]  25.0% (1/4) working", buf.String())

	buf.Reset()
	bar.SetShowPercent(false)
	bar.Finish("finished")
	assert.Equal(t, "\r[########] (4/4) finished\n", buf.String())
}

func TestRunProgress(t *testing.T) {
	svc, _ := newTestService(FormatTable)
	var buf bytes.Buffer
	progress := svc.NewRunProgress(&buf)

	progress.Start(2)
	progress.ModelFinished(backup.Outcome{ModelID: "ProjA/Arch.rvt", Status: backup.StatusSucceeded})
	progress.ModelFinished(backup.Outcome{ModelID: "Site.rvt", Status: backup.StatusFailed})
	progress.Finish()

	output := buf.String()
	assert.Contains(t, output, "(1/2) [OK] ProjA/Arch.rvt")
	assert.Contains(t, output, "(2/2) [FAIL] Site.rvt")
	assert.True(t, strings.HasSuffix(output, "done, 1 failed\n"))
	assert.NotContains(t, output, "█")
}

func TestRunProgress_EmptyRunDrawsNothing(t *testing.T) {
	svc, _ := newTestService(FormatTable)
	var buf bytes.Buffer
	progress := svc.NewRunProgress(&buf)

	progress.Start(0)
	progress.Finish()

	assert.Empty(t, buf.String())
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, "a-long...", truncateText("a-long-model-name", 9))
}
