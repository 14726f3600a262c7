package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"testing"

	"github.com/mattn/go-sqlite3"
)

func TestAppError(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := NewAppError(ErrorTypeSnapshot, "tool failed", cause)

	if appErr.Type != ErrorTypeSnapshot {
		t.Errorf("Expected type %v, got %v", ErrorTypeSnapshot, appErr.Type)
	}

	if appErr.Message != "tool failed" {
		t.Errorf("Expected message 'tool failed', got %v", appErr.Message)
	}

	if appErr.Cause != cause {
		t.Errorf("Expected cause %v, got %v", cause, appErr.Cause)
	}

	expectedError := "snapshot: tool failed (caused by: underlying error)"
	if appErr.Error() != expectedError {
		t.Errorf("Expected error string %v, got %v", expectedError, appErr.Error())
	}

	if !errors.Is(appErr, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestAppErrorWithoutCause(t *testing.T) {
	appErr := NewConfigurationError("source is required", nil)

	if appErr.Error() != "configuration: source is required" {
		t.Errorf("Unexpected error string %v", appErr.Error())
	}
}

func TestAppErrorWithContext(t *testing.T) {
	appErr := NewCatalogError("query failed", nil)
	appErr.WithContext("model", "Project/A.rvt").WithContext("attempt", 1)

	if appErr.Context["model"] != "Project/A.rvt" {
		t.Errorf("Expected context model=Project/A.rvt, got %v", appErr.Context["model"])
	}

	if appErr.Context["attempt"] != 1 {
		t.Errorf("Expected context attempt=1, got %v", appErr.Context["attempt"])
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected ErrorType
	}{
		{"catalog", NewCatalogError("x", nil), ErrorTypeCatalog},
		{"format", NewFormatError("x", nil), ErrorTypeFormat},
		{"snapshot", NewSnapshotError("x", nil), ErrorTypeSnapshot},
		{"transfer", NewTransferError("x", nil), ErrorTypeTransfer},
		{"verification", NewVerificationWarning("x", nil), ErrorTypeVerification},
		{"cleanup", NewCleanupError("x", nil), ErrorTypeCleanup},
		{"upload", NewUploadError("x", nil), ErrorTypeUpload},
		{"configuration", NewConfigurationError("x", nil), ErrorTypeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.expected {
				t.Errorf("Expected type %v, got %v", tt.expected, tt.err.Type)
			}
		})
	}
}

func TestErrorClassifier_ClassifySQLiteError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name            string
		code            sqlite3.ErrNo
		expectedMessage string
	}{
		{"cannot open", sqlite3.ErrCantOpen, "Database file cannot be opened - check the path and share permissions"},
		{"not a database", sqlite3.ErrNotADB, "Database file is corrupt or is not a SQLite database"},
		{"corrupt", sqlite3.ErrCorrupt, "Database file is corrupt"},
		{"busy", sqlite3.ErrBusy, "Database is locked by the model server"},
		{"locked", sqlite3.ErrLocked, "Database is locked by the model server"},
		{"permission", sqlite3.ErrPerm, "Access to the database was denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("query: %w", sqlite3.Error{Code: tt.code})
			appErr := classifier.ClassifyError(err)

			if appErr.Type != ErrorTypeCatalog {
				t.Errorf("Expected type %v, got %v", ErrorTypeCatalog, appErr.Type)
			}
			if appErr.Message != tt.expectedMessage {
				t.Errorf("Expected message %q, got %q", tt.expectedMessage, appErr.Message)
			}
			if appErr.Context["sqlite_error_code"] != int(tt.code) {
				t.Errorf("Expected sqlite_error_code %d, got %v", tt.code, appErr.Context["sqlite_error_code"])
			}
		})
	}
}

func TestErrorClassifier_ClassifyProcessError(t *testing.T) {
	classifier := NewErrorClassifier()

	err := &exec.Error{Name: "RevitServerTool.exe", Err: exec.ErrNotFound}
	appErr := classifier.ClassifyError(err)

	if appErr.Type != ErrorTypeSnapshot {
		t.Errorf("Expected type %v, got %v", ErrorTypeSnapshot, appErr.Type)
	}
	if appErr.Message != "External tool could not be started: RevitServerTool.exe" {
		t.Errorf("Unexpected message %q", appErr.Message)
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name            string
		err             error
		expectedMessage string
	}{
		{"deadline", context.DeadlineExceeded, "Operation timed out"},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), "Operation was canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.err)
			if appErr.Type != ErrorTypeInterruption {
				t.Errorf("Expected type %v, got %v", ErrorTypeInterruption, appErr.Type)
			}
			if appErr.Message != tt.expectedMessage {
				t.Errorf("Expected message %q, got %q", tt.expectedMessage, appErr.Message)
			}
		})
	}
}

func TestErrorClassifier_ClassifyFileSystemError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name            string
		err             error
		expectedMessage string
	}{
		{
			name:            "not found",
			err:             &os.PathError{Op: "open", Path: "/backup/a.rvt", Err: syscall.ENOENT},
			expectedMessage: "File or directory not found: /backup/a.rvt",
		},
		{
			name:            "permission denied",
			err:             &os.PathError{Op: "open", Path: "/backup/a.rvt", Err: syscall.EACCES},
			expectedMessage: "Permission denied: /backup/a.rvt",
		},
		{
			name:            "no space",
			err:             &os.PathError{Op: "write", Path: "/backup/a.rvt", Err: syscall.ENOSPC},
			expectedMessage: "No space left on device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.err)
			if appErr.Type != ErrorTypeTransfer {
				t.Errorf("Expected type %v, got %v", ErrorTypeTransfer, appErr.Type)
			}
			if appErr.Message != tt.expectedMessage {
				t.Errorf("Expected message %q, got %q", tt.expectedMessage, appErr.Message)
			}
		})
	}
}

func TestErrorClassifier_KeepsAppErrorType(t *testing.T) {
	classifier := NewErrorClassifier()

	cause := &os.PathError{Op: "open", Path: "/srv/Data/Model.db3", Err: syscall.ENOENT}
	original := NewCatalogError("model store unavailable", cause)

	appErr := classifier.ClassifyError(fmt.Errorf("lookup: %w", original))
	if appErr != original {
		t.Fatal("Expected the original AppError to be returned")
	}
	if appErr.Type != ErrorTypeCatalog {
		t.Errorf("Expected type %v, got %v", ErrorTypeCatalog, appErr.Type)
	}
	if appErr.GetUserMessage() != "File or directory not found: /srv/Data/Model.db3" {
		t.Errorf("Unexpected user message %q", appErr.GetUserMessage())
	}
}

func TestErrorClassifier_Unknown(t *testing.T) {
	classifier := NewErrorClassifier()

	if classifier.ClassifyError(nil) != nil {
		t.Error("Expected nil for nil error")
	}

	appErr := classifier.ClassifyError(errors.New("something odd"))
	if appErr.Type != ErrorTypeUnknown {
		t.Errorf("Expected type %v, got %v", ErrorTypeUnknown, appErr.Type)
	}
}

func TestIsType(t *testing.T) {
	inner := NewSnapshotError("exit 3", nil)
	outer := NewAppError(ErrorTypeUnknown, "model failed", inner)

	if !IsType(outer, ErrorTypeSnapshot) {
		t.Error("Expected snapshot type to be found in chain")
	}
	if IsType(outer, ErrorTypeTransfer) {
		t.Error("Did not expect transfer type in chain")
	}
	if IsType(errors.New("plain"), ErrorTypeSnapshot) {
		t.Error("Did not expect a plain error to match")
	}
}

func TestGetErrorType(t *testing.T) {
	if GetErrorType(NewUploadError("x", nil)) != ErrorTypeUpload {
		t.Error("Expected upload type")
	}
	if GetErrorType(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("Expected unknown type for plain error")
	}
}

func TestFormatUserError(t *testing.T) {
	if FormatUserError(nil) != "" {
		t.Error("Expected empty string for nil error")
	}

	appErr := NewTransferError("copy failed", nil)
	appErr.UserMessage = "Could not write to the backup share"
	if FormatUserError(appErr) != "Could not write to the backup share" {
		t.Errorf("Unexpected user message %q", FormatUserError(appErr))
	}

	if FormatUserError(errors.New("plain")) != "An unexpected error occurred. Please check the logs for more details." {
		t.Error("Expected generic message for plain error")
	}
}

func TestFormatUserError_ClassifiesInnermostCause(t *testing.T) {
	driverErr := sqlite3.Error{Code: sqlite3.ErrCorrupt}
	err := NewCatalogError("catalog store cannot be opened: /srv/ServerData.db3", fmt.Errorf("query: %w", driverErr))

	want := "catalog store cannot be opened: /srv/ServerData.db3: Database file is corrupt"
	if got := FormatUserError(err); got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if err.UserMessage != "" {
		t.Error("Formatting must not modify the error")
	}

	unrecognised := NewCatalogError("failed to scan model path", errors.New("converting NULL"))
	if got := FormatUserError(unrecognised); got != "failed to scan model path" {
		t.Errorf("Unexpected user message %q", got)
	}

	explicit := NewCatalogError("store busy", sqlite3.Error{Code: sqlite3.ErrBusy})
	explicit.UserMessage = "Try again later"
	if got := FormatUserError(explicit); got != "Try again later" {
		t.Errorf("Explicit user message must win, got %q", got)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Error("Expected nil for nil error")
	}

	wrapped := WrapError(NewCleanupError("rm failed", nil), "cleanup of staging area")
	if GetErrorType(wrapped) != ErrorTypeCleanup {
		t.Errorf("Expected cleanup type, got %v", GetErrorType(wrapped))
	}

	classified := WrapError(context.Canceled, "run interrupted")
	var appErr *AppError
	if !errors.As(classified, &appErr) {
		t.Fatal("Expected AppError")
	}
	if appErr.Type != ErrorTypeInterruption || appErr.Message != "run interrupted" {
		t.Errorf("Unexpected wrapped error %v", appErr)
	}
}
