// Package cleanup reclaims staging storage used while producing backups.
package cleanup

import (
	"fmt"
	"os"

	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
)

// Cleaner removes staged files and directories. Failures are logged and
// swallowed so cleanup never masks the outcome of the work before it.
type Cleaner struct {
	logger *logging.Logger
	remove func(string) error
}

// NewCleaner creates a new cleaner
func NewCleaner(logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cleaner{logger: logger, remove: os.RemoveAll}
}

// Clean deletes path whether it is a file or a directory tree. A path that
// does not exist is left alone. It returns the failure, if any, for callers
// that want to record it; the failure has already been logged.
func (c *Cleaner) Clean(path string) *appErrors.AppError {
	if path == "" {
		return nil
	}

	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return c.report(path, "cannot inspect staged path", err)
	}

	if info.IsDir() {
		err = c.remove(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return c.report(path, "failed to remove staged path", err)
	}

	c.logger.WithField("path", path).Debug("Staged path cleaned up")
	return nil
}

func (c *Cleaner) report(path, message string, cause error) *appErrors.AppError {
	cleanupErr := appErrors.NewCleanupError(fmt.Sprintf("%s: %s", message, path), cause).
		WithContext("path", path)
	c.logger.WithFields(map[string]interface{}{
		"path":  path,
		"error": cleanupErr.Error(),
	}).Error("Cleanup failed")
	return cleanupErr
}
