package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"revit-server-backup/internal/logging"
)

// RunLogger provides structured logging for backup runs with a correlation ID
// on every entry and an optional audit trail file
type RunLogger struct {
	logger      *logging.Logger
	auditLogger *logrus.Logger
	auditFile   *os.File
	runID       string
}

// RunLoggerConfig holds configuration for run logging
type RunLoggerConfig struct {
	Logger       *logging.Logger
	AuditLogFile string
	RunID        string
}

// NewRunLogger creates a run logger. A run ID is generated when none is given.
func NewRunLogger(config RunLoggerConfig) (*RunLogger, error) {
	runID := config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	rl := &RunLogger{logger: logger, runID: runID}

	if config.AuditLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.AuditLogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditFile, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}

		auditLogger := logrus.New()
		auditLogger.SetOutput(auditFile)
		auditLogger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		auditLogger.SetLevel(logrus.InfoLevel)

		rl.auditLogger = auditLogger
		rl.auditFile = auditFile
	}

	return rl, nil
}

// RunID returns the correlation ID of this run
func (rl *RunLogger) RunID() string {
	return rl.runID
}

// Close closes the audit trail file
func (rl *RunLogger) Close() error {
	if rl.auditFile == nil {
		return nil
	}
	err := rl.auditFile.Close()
	rl.auditFile = nil
	return err
}

// LogRunStart logs the start of a run and returns a function that logs its end
func (rl *RunLogger) LogRunStart(policy string) func(*RunReport, error) {
	start := time.Now()

	rl.entry().WithField("policy", policy).Info("Backup run started")
	rl.logAudit("run", "start", "started", map[string]interface{}{"policy": policy})

	return func(report *RunReport, err error) {
		fields := logrus.Fields{
			"policy":   policy,
			"duration": time.Since(start).String(),
		}

		if err != nil {
			fields["error"] = err.Error()
			rl.entry().WithFields(fields).Error("Backup run failed")
			rl.logAudit("run", "finish", "failure", map[string]interface{}{
				"policy": policy,
				"error":  err.Error(),
			})
			return
		}

		summary := report.Summary
		fields["total"] = summary.Total
		fields["succeeded"] = summary.Succeeded
		fields["skipped"] = summary.SkippedNotFound
		fields["failed"] = summary.Failed
		fields["warnings"] = summary.Warnings

		result := "success"
		if summary.Failed > 0 {
			result = "partial_failure"
			rl.entry().WithFields(fields).Warn("Backup run finished with failures")
		} else {
			rl.entry().WithFields(fields).Info("Backup run finished")
		}

		rl.logAudit("run", "finish", result, map[string]interface{}{
			"policy":    policy,
			"total":     summary.Total,
			"succeeded": summary.Succeeded,
			"skipped":   summary.SkippedNotFound,
			"failed":    summary.Failed,
		})
	}
}

// LogStage logs a pipeline transition for one model
func (rl *RunLogger) LogStage(modelID string, stage Stage) {
	rl.entry().WithFields(logrus.Fields{
		"model": modelID,
		"stage": string(stage),
	}).Debug("Stage completed")
}

// LogWarning logs an advisory problem that does not fail the model
func (rl *RunLogger) LogWarning(modelID string, stage Stage, message string) {
	rl.entry().WithFields(logrus.Fields{
		"model": modelID,
		"stage": string(stage),
	}).Warn(message)
}

// LogOutcome logs the final result for one model
func (rl *RunLogger) LogOutcome(outcome Outcome) {
	fields := logrus.Fields{
		"model":    outcome.ModelID,
		"status":   string(outcome.Status),
		"stage":    string(outcome.Stage),
		"duration": outcome.Duration.String(),
	}
	if outcome.Bytes > 0 {
		fields["bytes"] = outcome.Bytes
	}
	if outcome.RemoteID != "" {
		fields["remote_id"] = outcome.RemoteID
	}
	if len(outcome.Warnings) > 0 {
		fields["warnings"] = len(outcome.Warnings)
	}

	entry := rl.entry().WithFields(fields)
	switch outcome.Status {
	case StatusFailed:
		entry.WithFields(logrus.Fields{
			"error":      outcome.Reason,
			"error_type": string(outcome.ErrorType),
		}).Error("Model backup failed")
	case StatusSkippedNotFound:
		entry.Warn("Model skipped, not found in catalog")
	default:
		entry.Info("Model backed up")
	}

	details := map[string]interface{}{
		"stage":    string(outcome.Stage),
		"duration": outcome.Duration.String(),
	}
	if outcome.Reason != "" {
		details["error"] = outcome.Reason
	}
	rl.logAudit(outcome.ModelID, "backup", string(outcome.Status), details)
}

func (rl *RunLogger) entry() *logrus.Entry {
	return rl.logger.WithField("run_id", rl.runID)
}

// logAudit writes an audit trail entry
func (rl *RunLogger) logAudit(resource, action, result string, details map[string]interface{}) {
	if rl.auditLogger == nil {
		return
	}

	rl.auditLogger.WithFields(logrus.Fields{
		"run_id":   rl.runID,
		"resource": resource,
		"action":   action,
		"result":   result,
		"details":  details,
	}).Info("Audit log entry")
}
