package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

type contextKey string

const runIDKey contextKey = "run_id"

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	file   *os.File
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	logger.SetOutput(output)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	logger.SetLevel(toLogrusLevel(config.Level))

	l := &Logger{logger: logger}

	// The log file receives everything the console does
	if config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", config.LogFile, err)
		}
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		logger.SetOutput(io.MultiWriter(output, file))
		l.file = file
	}

	return l, nil
}

// NewNopLogger creates a logger that discards everything. Useful in tests.
func NewNopLogger() *Logger {
	logger, _ := NewLogger(Config{Level: LogLevelQuiet, Output: io.Discard})
	return logger
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// WithContext returns a logger entry carrying the run id found in ctx
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.logger.WithContext(ctx)
	if runID := GetRunIDFromContext(ctx); runID != "" {
		entry = entry.WithField("run_id", runID)
	}
	return entry
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Domain operation logging methods

// LogCatalogQuery logs a query against a catalog or model history store
func (l *Logger) LogCatalogQuery(store string, rows int, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "catalog_query",
		"store":     store,
		"rows":      rows,
		"duration":  duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Catalog query failed")
		return
	}
	l.logger.WithFields(fields).Debug("Catalog query completed")
}

// LogToolInvocation logs a run of the vendor snapshot tool with its captured output
func (l *Logger) LogToolInvocation(model string, args []string, output string, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "snapshot_tool",
		"model":     model,
		"args":      args,
		"duration":  duration.String(),
	}

	if len(output) > 2000 {
		fields["output"] = output[:2000] + "... [truncated]"
		fields["output_length"] = len(output)
	} else if output != "" {
		fields["output"] = output
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Snapshot tool failed")
		return
	}
	l.logger.WithFields(fields).Debug("Snapshot tool completed")
}

// LogTransfer logs a copy of a snapshot to the backup target
func (l *Logger) LogTransfer(model, destination string, bytes int64, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation":   "transfer",
		"model":       model,
		"destination": destination,
		"bytes":       bytes,
		"duration":    duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Transfer failed")
		return
	}
	l.logger.WithFields(fields).Info("Transfer completed")
}

// LogVerification logs the result of a post-copy check. Failed checks are warnings only.
func (l *Logger) LogVerification(model, check string, ok bool, message string) {
	fields := logrus.Fields{
		"operation": "verification",
		"model":     model,
		"check":     check,
		"ok":        ok,
	}

	if !ok {
		l.logger.WithFields(fields).Warn(message)
		return
	}
	l.logger.WithFields(fields).Debug(message)
}

// LogUpload logs an upload to remote storage
func (l *Logger) LogUpload(provider, localPath, remoteID string, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "upload",
		"provider":  provider,
		"file":      localPath,
		"duration":  duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Upload failed")
		return
	}
	fields["remote_id"] = remoteID
	l.logger.WithFields(fields).Info("Upload completed")
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	switch level {
	case LogLevelQuiet, LogLevelNormal, LogLevelVerbose, LogLevelDebug:
		return l.logger.IsLevelEnabled(toLogrusLevel(level))
	default:
		return false
	}
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		logFields["status"] = "completed"
		logFields["duration"] = time.Since(startTime).String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelQuiet:
		return logrus.ErrorLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	case LogLevelDebug:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel maps the quiet/verbose CLI switches to a LogLevel
func ParseLevel(quiet, verbose, debug bool) LogLevel {
	switch {
	case debug:
		return LogLevelDebug
	case verbose:
		return LogLevelVerbose
	case quiet:
		return LogLevelQuiet
	default:
		return LogLevelNormal
	}
}

// ContextWithRunID returns a context carrying the run correlation id
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunIDFromContext extracts the run correlation id from ctx
func GetRunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}
