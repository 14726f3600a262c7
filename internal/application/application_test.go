package application

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revit-server-backup/internal/backup"
	"revit-server-backup/internal/catalog"
	"revit-server-backup/internal/config"
	"revit-server-backup/internal/display"
	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
	"revit-server-backup/internal/selection"
)

// toolRunner stands in for the snapshot tool. It writes the destination file
// unless the model is listed in fail.
type toolRunner struct {
	fail map[string]bool
}

func (r *toolRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	id, dest := args[1], args[len(args)-2]
	if r.fail[id] {
		return []byte("Model is locked"), errors.New("exit status 3")
	}
	return []byte("done"), os.WriteFile(dest, []byte("rvt:"+id), 0644)
}

type environment struct {
	cfg    *config.Config
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func execSQL(t *testing.T, path string, statements ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

// newEnvironment lays out a model server with the given models, each edited
// one hour ago
func newEnvironment(t *testing.T, models ...string) *environment {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Source:     filepath.Join(root, "Projects"),
		Target:     filepath.Join(root, "Backups"),
		DBLocation: filepath.Join(root, "Projects", "ServerData.db3"),
		ServerName: "rs01",
		ToolPath:   filepath.Join(root, "RevitServerTool.exe"),
		TempFolder: filepath.Join(root, "Temp"),
		LogFormat:  "text",
	}
	cfg.SetDefaults()
	require.NoError(t, os.WriteFile(cfg.ToolPath, []byte("tool"), 0755))

	statements := []string{`CREATE TABLE ModelStorageTable (ModelPath TEXT)`}
	edited := time.Now().UTC().Add(-time.Hour).Format(catalog.TimestampLayout)
	for _, id := range models {
		statements = append(statements, `INSERT INTO ModelStorageTable (ModelPath) VALUES ('`+id+`')`)
		store, err := catalog.ModelStorePath(cfg.Source, id)
		require.NoError(t, err)
		execSQL(t, store,
			`CREATE TABLE ModelHistory (Time TEXT)`,
			`INSERT INTO ModelHistory (Time) VALUES ('`+edited+`')`)
	}
	execSQL(t, cfg.DBLocation, statements...)

	return &environment{cfg: cfg, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
}

func (e *environment) newApp(t *testing.T, runner *toolRunner) *Application {
	t.Helper()
	app, err := NewApplication(context.Background(), e.cfg, Options{
		Display:   &display.DisplayConfig{OutputFormat: string(display.FormatJSON), Writer: e.stdout},
		LogOutput: &bytes.Buffer{},
		Stderr:    e.stderr,
		RunID:     "run-test",
		Runner:    runner,
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApplication_RequiresConfig(t *testing.T) {
	_, err := NewApplication(context.Background(), nil, Options{})

	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))
}

func TestNewApplication_LogLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		normal  bool
		detail  bool
	}{
		{name: "normal level", normal: true},
		{name: "verbose level", verbose: true, normal: true, detail: true},
		{name: "quiet level", quiet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnvironment(t)
			env.cfg.Verbose = tt.verbose
			env.cfg.Quiet = tt.quiet

			app := env.newApp(t, &toolRunner{})
			assert.Equal(t, tt.normal, app.Logger().IsLevelEnabled(logging.LogLevelNormal))
			assert.Equal(t, tt.detail, app.Logger().IsLevelEnabled(logging.LogLevelVerbose))
			assert.Equal(t, "run-test", app.RunID())
		})
	}
}

func TestNewApplication_UnknownUploadProvider(t *testing.T) {
	env := newEnvironment(t)
	env.cfg.Upload = config.UploadConfig{Enabled: true, Provider: "ftp"}

	_, err := NewApplication(context.Background(), env.cfg, Options{LogOutput: &bytes.Buffer{}})

	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeUpload))
	assert.Contains(t, err.Error(), "unsupported upload provider")
}

func TestApplication_RunBackup(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt", "ProjA/MEP.rvt", "Site.rvt")
	app := env.newApp(t, &toolRunner{fail: map[string]bool{"ProjA/MEP.rvt": true}})

	policy, err := app.Policy(selection.PolicyAll, "")
	require.NoError(t, err)

	report, err := app.RunBackup(context.Background(), policy)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, backup.StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, backup.StatusFailed, report.Outcomes[1].Status)
	assert.Equal(t, backup.StageSnapshotCreated, report.Outcomes[1].Stage)
	assert.Equal(t, backup.StatusSucceeded, report.Outcomes[2].Status)
	assert.True(t, report.HasFailures())

	content, err := os.ReadFile(filepath.Join(env.cfg.Target, "ProjA", "Arch.rvt"))
	require.NoError(t, err)
	assert.Equal(t, "rvt:ProjA/Arch.rvt", string(content))
	assert.NoFileExists(t, filepath.Join(env.cfg.Target, "ProjA", "MEP.rvt"))

	// staged snapshots are removed on success and failure
	assert.NoFileExists(t, filepath.Join(env.cfg.TempFolder, "ProjA", "Arch.rvt"))
	assert.NoFileExists(t, filepath.Join(env.cfg.TempFolder, "ProjA", "MEP.rvt"))

	var rendered backup.RunReport
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &rendered))
	assert.Equal(t, "run-test", rendered.RunID)
	assert.Equal(t, 1, rendered.Summary.Failed)
}

func TestApplication_RunBackupWithLocalUpload(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt")
	mirror := filepath.Join(t.TempDir(), "Mirror")
	env.cfg.Upload = config.UploadConfig{
		Enabled:      true,
		Provider:     config.UploadProviderLocal,
		RemoteFolder: "RevitBackups",
		Local:        config.LocalConfig{BasePath: mirror},
		Compression:  config.CompressionConfig{Enabled: true, Algorithm: config.CompressionGzip},
	}
	env.cfg.SetDefaults()
	require.NoError(t, env.cfg.Validate())
	app := env.newApp(t, &toolRunner{})

	policy, err := app.Policy(selection.PolicySpecific, "ProjA/Arch.rvt")
	require.NoError(t, err)
	report, err := app.RunBackup(context.Background(), policy)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, backup.StatusSucceeded, outcome.Status, outcome.Reason)
	expected := filepath.Join(mirror, "RevitBackups", "ProjA", "Arch.rvt.gz")
	assert.Equal(t, expected, outcome.RemoteID)
	assert.FileExists(t, expected)

	entries, err := os.ReadDir(filepath.Join(env.cfg.TempFolder, uploadWorkDir))
	require.NoError(t, err)
	assert.Empty(t, entries, "packaging artifacts should be released")
}

func TestApplication_RunBackupSpecificNotFound(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt")
	app := env.newApp(t, &toolRunner{})

	policy, err := app.Policy(selection.PolicySpecific, "ProjA/Missing.rvt")
	require.NoError(t, err)
	report, err := app.RunBackup(context.Background(), policy)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, backup.StatusSkippedNotFound, report.Outcomes[0].Status)
	assert.False(t, report.HasFailures())
}

func TestApplication_RunBackupCatalogUnreadable(t *testing.T) {
	env := newEnvironment(t)
	require.NoError(t, os.Remove(env.cfg.DBLocation))
	app := env.newApp(t, &toolRunner{})

	_, err := app.RunBackup(context.Background(), selection.All{})

	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeCatalog))
	assert.Contains(t, env.stderr.String(), "Troubleshooting hints")
	assert.Contains(t, env.stderr.String(), env.cfg.DBLocation)
	assert.Empty(t, env.stdout.String())
}

func TestApplication_Policy(t *testing.T) {
	env := newEnvironment(t)
	app := env.newApp(t, &toolRunner{})

	policy, err := app.Policy("edited", "")
	require.NoError(t, err)
	edited, ok := policy.(selection.RecentlyEdited)
	require.True(t, ok)
	assert.Equal(t, config.DefaultEditWindow, edited.Window)

	_, err = app.Policy("specific", "")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))

	_, err = app.Policy("weekly", "")
	assert.Error(t, err)
}

func TestApplication_ListModels(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt", "Site.rvt")
	siteStore, err := catalog.ModelStorePath(env.cfg.Source, "Site.rvt")
	require.NoError(t, err)
	require.NoError(t, os.Remove(siteStore))
	app := env.newApp(t, &toolRunner{})

	require.NoError(t, app.ListModels(context.Background()))

	var listing struct {
		Models []catalog.ModelRecord `json:"models"`
		Errors []string              `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &listing))
	require.Len(t, listing.Models, 1)
	assert.Equal(t, "ProjA/Arch.rvt", listing.Models[0].ID)
	assert.Len(t, listing.Errors, 1)
}

func TestApplication_ListModelsCatalogMissing(t *testing.T) {
	env := newEnvironment(t)
	require.NoError(t, os.Remove(env.cfg.DBLocation))
	app := env.newApp(t, &toolRunner{})

	err := app.ListModels(context.Background())

	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeCatalog))
}

func TestApplication_CheckHealth(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt")
	app := env.newApp(t, &toolRunner{})

	result, err := app.CheckHealth()
	require.NoError(t, err)
	assert.Equal(t, config.HealthHealthy, result.OverallHealth, result.Issues)

	var rendered config.HealthCheckResult
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &rendered))
	assert.Equal(t, config.HealthHealthy, rendered.ComponentStatus["catalog"])
}

func TestApplication_AuditLog(t *testing.T) {
	env := newEnvironment(t, "Site.rvt")
	env.cfg.AuditLogFile = filepath.Join(t.TempDir(), "audit.log")
	app := env.newApp(t, &toolRunner{})

	_, err := app.RunBackup(context.Background(), selection.All{})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	data, err := os.ReadFile(env.cfg.AuditLogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"run-test"`)
	assert.Contains(t, string(data), `"resource":"Site.rvt"`)
}

func TestApplication_RunBackupDrawsProgress(t *testing.T) {
	env := newEnvironment(t, "ProjA/Arch.rvt", "Site.rvt")
	var progress bytes.Buffer
	app, err := NewApplication(context.Background(), env.cfg, Options{
		Display:   &display.DisplayConfig{OutputFormat: string(display.FormatJSON), Writer: env.stdout},
		LogOutput: &bytes.Buffer{},
		Stderr:    env.stderr,
		Runner:    &toolRunner{},
		Progress:  &progress,
	})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.RunBackup(context.Background(), selection.All{})

	require.NoError(t, err)
	assert.Contains(t, progress.String(), "(2/2)")
	assert.Contains(t, progress.String(), "done")
}

func TestApplication_VerboseRunSkipsProgress(t *testing.T) {
	env := newEnvironment(t, "Site.rvt")
	env.cfg.Verbose = true
	var progress bytes.Buffer
	app, err := NewApplication(context.Background(), env.cfg, Options{
		Display:   &display.DisplayConfig{OutputFormat: string(display.FormatJSON), Writer: env.stdout},
		LogOutput: &bytes.Buffer{},
		Stderr:    env.stderr,
		Runner:    &toolRunner{},
		Progress:  &progress,
	})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.RunBackup(context.Background(), selection.All{})

	require.NoError(t, err)
	assert.Empty(t, progress.String())
}
