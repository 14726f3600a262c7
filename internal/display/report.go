package display

import (
	"fmt"
	"sort"
	"time"

	"revit-server-backup/internal/backup"
	"revit-server-backup/internal/catalog"
	"revit-server-backup/internal/config"
)

// RenderRunReport prints the per-model outcomes of a run followed by the
// summary counts
func (s *Service) RenderRunReport(report *backup.RunReport) error {
	if report == nil {
		return nil
	}
	if s.config.IsStructured() {
		return s.printStructured(report)
	}

	s.PrintHeader(fmt.Sprintf("Backup run %s (%s)", report.RunID, report.Policy))

	if len(report.Outcomes) > 0 && !s.config.QuietMode {
		rows := make([][]string, 0, len(report.Outcomes))
		for _, o := range report.Outcomes {
			rows = append(rows, []string{
				s.statusCell(o.Status),
				o.ModelID,
				string(o.Stage),
				formatBytes(o.Bytes),
				o.Duration.Round(time.Millisecond).String(),
				s.outcomeDetail(o),
			})
		}
		s.PrintTable([]string{"Status", "Model", "Stage", "Size", "Duration", "Details"}, rows)
	}

	if s.config.VerboseMode {
		for _, o := range report.Outcomes {
			for _, w := range o.Warnings {
				s.Warning(fmt.Sprintf("%s: %s", o.ModelID, w))
			}
		}
	}

	sum := report.Summary
	line := fmt.Sprintf("%d models: %d succeeded, %d skipped, %d failed, %d with warnings (%s)",
		sum.Total, sum.Succeeded, sum.SkippedNotFound, sum.Failed, sum.Warnings,
		report.Duration().Round(time.Second))
	switch {
	case sum.Failed > 0:
		s.Error(line)
	case sum.Warnings > 0 || sum.SkippedNotFound > 0:
		s.Warning(line)
	default:
		s.Success(line)
	}
	return nil
}

func (s *Service) statusCell(status backup.Status) string {
	switch status {
	case backup.StatusSucceeded:
		return s.icons.RenderIconWithColor("success", s.colors)
	case backup.StatusSkippedNotFound:
		return s.icons.RenderIconWithColor("skipped", s.colors)
	default:
		return s.icons.RenderIconWithColor("failed", s.colors)
	}
}

func (s *Service) outcomeDetail(o backup.Outcome) string {
	switch {
	case o.Failed():
		return o.Reason
	case o.Status == backup.StatusSkippedNotFound:
		return "not found in catalog"
	case len(o.Warnings) > 0:
		return fmt.Sprintf("%d warning(s): %s", len(o.Warnings), o.Warnings[0])
	case o.RemoteID != "":
		return "uploaded to " + o.RemoteID
	default:
		return o.Target
	}
}

// RenderModelRecords prints the catalog's models with their last edit time.
// Record errors are listed after the table.
func (s *Service) RenderModelRecords(records []catalog.ModelRecord, errs []error) error {
	if s.config.IsStructured() {
		problems := make([]string, 0, len(errs))
		for _, err := range errs {
			problems = append(problems, err.Error())
		}
		return s.printStructured(struct {
			Models []catalog.ModelRecord `json:"models" yaml:"models"`
			Errors []string              `json:"errors,omitempty" yaml:"errors,omitempty"`
		}{Models: records, Errors: problems})
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		edited := "unknown"
		if !r.LastEdit.IsZero() {
			edited = r.LastEdit.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{r.ID, edited})
	}
	s.PrintTable([]string{"Model", "Last edit"}, rows)

	for _, err := range errs {
		s.Warning(err.Error())
	}
	s.Info(fmt.Sprintf("%d models in catalog", len(records)))
	return nil
}

// RenderHealth prints the component states of a health check
func (s *Service) RenderHealth(result *config.HealthCheckResult) error {
	if result == nil {
		return nil
	}
	if s.config.IsStructured() {
		return s.printStructured(result)
	}

	s.PrintHeader("Configuration health")

	components := make([]string, 0, len(result.ComponentStatus))
	for name := range result.ComponentStatus {
		components = append(components, name)
	}
	sort.Strings(components)

	rows := make([][]string, 0, len(components))
	for _, name := range components {
		state := result.ComponentStatus[name]
		rows = append(rows, []string{s.icons.RenderIconWithColor(state, s.colors), name, state})
	}
	s.PrintTable([]string{"", "Component", "State"}, rows)

	for _, issue := range result.Issues {
		s.Error(issue)
	}
	for _, rec := range result.Recommendations {
		s.Info(rec)
	}

	switch result.OverallHealth {
	case config.HealthHealthy:
		s.Success("Overall health: " + result.OverallHealth)
	case config.HealthDegraded:
		s.Warning("Overall health: " + result.OverallHealth)
	default:
		s.Error("Overall health: " + result.OverallHealth)
	}
	return nil
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
