package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/mattn/go-sqlite3"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeCatalog represents an unreadable catalog store or a failed catalog query
	ErrorTypeCatalog ErrorType = "catalog"
	// ErrorTypeFormat represents an unparsable timestamp in a model history store
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeSnapshot represents a failure of the vendor snapshot tool
	ErrorTypeSnapshot ErrorType = "snapshot"
	// ErrorTypeTransfer represents a failed copy to the backup target
	ErrorTypeTransfer ErrorType = "transfer"
	// ErrorTypeVerification represents a stale or missing backup artifact
	ErrorTypeVerification ErrorType = "verification"
	// ErrorTypeCleanup represents a failure to reclaim staging storage
	ErrorTypeCleanup ErrorType = "cleanup"
	// ErrorTypeUpload represents a failure to package or upload to remote storage
	ErrorTypeUpload ErrorType = "upload"
	// ErrorTypeConfiguration represents invalid or incomplete configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewCatalogError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeCatalog, message, cause)
}

func NewFormatError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeFormat, message, cause)
}

func NewSnapshotError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeSnapshot, message, cause)
}

func NewTransferError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeTransfer, message, cause)
}

func NewVerificationWarning(message string, cause error) *AppError {
	return NewAppError(ErrorTypeVerification, message, cause)
}

func NewCleanupError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeCleanup, message, cause)
}

func NewUploadError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeUpload, message, cause)
}

func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, cause)
}

// ErrorClassifier turns low-level driver, process and filesystem errors into
// user-facing messages
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification.
// An AppError found in the chain keeps its type; the user message is filled in
// from the innermost recognised cause.
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.UserMessage == "" && appErr.Cause != nil {
			if inner := ec.classifyCause(appErr.Cause); inner != nil {
				appErr.UserMessage = inner.Message
			}
		}
		return appErr
	}

	if classified := ec.classifyCause(err); classified != nil {
		return classified
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

func (ec *ErrorClassifier) classifyCause(err error) *AppError {
	if sqliteErr := ec.classifySQLiteError(err); sqliteErr != nil {
		return sqliteErr
	}
	if procErr := ec.classifyProcessError(err); procErr != nil {
		return procErr
	}
	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}
	return ec.classifyFileSystemError(err)
}

// classifySQLiteError classifies SQLite driver errors
func (ec *ErrorClassifier) classifySQLiteError(err error) *AppError {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}

	switch sqliteErr.Code {
	case sqlite3.ErrCantOpen:
		return NewCatalogError("Database file cannot be opened - check the path and share permissions", err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	case sqlite3.ErrNotADB:
		return NewCatalogError("Database file is corrupt or is not a SQLite database", err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	case sqlite3.ErrCorrupt:
		return NewCatalogError("Database file is corrupt", err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return NewCatalogError("Database is locked by the model server", err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	case sqlite3.ErrPerm, sqlite3.ErrAuth:
		return NewCatalogError("Access to the database was denied", err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	default:
		return NewCatalogError(fmt.Sprintf("SQLite error: %s", sqliteErr.Error()), err).
			WithContext("sqlite_error_code", int(sqliteErr.Code))
	}
}

// classifyProcessError classifies failures of external commands
func (ec *ErrorClassifier) classifyProcessError(err error) *AppError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return NewSnapshotError(
			fmt.Sprintf("External tool exited with code %d", exitErr.ExitCode()), err).
			WithContext("exit_code", exitErr.ExitCode())
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return NewSnapshotError(
			fmt.Sprintf("External tool could not be started: %s", execErr.Name), err)
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrorTypeInterruption, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch {
		case errors.Is(pathErr.Err, syscall.ENOENT):
			return NewTransferError(
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.EACCES), errors.Is(pathErr.Err, syscall.EPERM):
			return NewTransferError(
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.ENOSPC):
			return NewTransferError("No space left on device", err)
		}
	}

	return nil
}

// IsType reports whether any AppError in the chain has the given type
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errorType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// FormatUserError formats an error for display to users. Without an explicit
// user message the innermost recognised cause is appended to the message.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.UserMessage == "" && appErr.Cause != nil {
			if inner := NewErrorClassifier().classifyCause(appErr.Cause); inner != nil {
				return fmt.Sprintf("%s: %s", appErr.Message, inner.Message)
			}
		}
		return appErr.GetUserMessage()
	}

	return "An unexpected error occurred. Please check the logs for more details."
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return NewAppError(appErr.Type, message, err)
	}

	classifiedErr := NewErrorClassifier().ClassifyError(err)
	classifiedErr.Message = message
	return classifiedErr
}
