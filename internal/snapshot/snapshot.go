// Package snapshot drives the vendor server tool that materializes a local
// copy of a model.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
)

// CreateLocalCommand is the tool subcommand that writes a local model copy
const CreateLocalCommand = "createLocalRvt"

// Runner executes a command and returns its combined stdout and stderr
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes
type ExecRunner struct{}

// Run implements Runner
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Creator produces snapshots with the vendor tool. A failed invocation is
// reported once and never retried.
type Creator struct {
	toolPath   string
	serverName string
	timeout    time.Duration
	runner     Runner
	logger     *logging.Logger
}

// NewCreator creates a snapshot creator that runs the tool at toolPath.
// A zero timeout leaves each invocation unbounded.
func NewCreator(toolPath, serverName string, timeout time.Duration, logger *logging.Logger) *Creator {
	return NewCreatorWithRunner(toolPath, serverName, timeout, logger, ExecRunner{})
}

// NewCreatorWithRunner creates a snapshot creator with a custom command runner
func NewCreatorWithRunner(toolPath, serverName string, timeout time.Duration, logger *logging.Logger, runner Runner) *Creator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Creator{
		toolPath:   toolPath,
		serverName: serverName,
		timeout:    timeout,
		runner:     runner,
		logger:     logger,
	}
}

// Args returns the tool arguments for snapshotting id into destination
func (c *Creator) Args(id, destination string) []string {
	return []string{
		CreateLocalCommand, id,
		"-server", c.serverName,
		"-destination", destination,
		"-overwrite",
	}
}

// Create runs the tool to write a snapshot of model id at destination
func (c *Creator) Create(ctx context.Context, id, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return appErrors.NewSnapshotError(
			fmt.Sprintf("failed to create staging directory for %s", id), err).
			WithContext("model", id).
			WithContext("destination", destination)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(id, destination)
	start := time.Now()
	output, err := c.runner.Run(ctx, c.toolPath, args...)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		c.logger.LogToolInvocation(id, args, string(output), duration, err)
		return appErrors.NewSnapshotError(fmt.Sprintf("snapshot tool failed for %s", id), err).
			WithContext("model", id).
			WithContext("output", string(output))
	}

	// The tool can exit 0 without writing anything, e.g. for an unknown model
	if _, statErr := os.Stat(destination); statErr != nil {
		err = fmt.Errorf("tool exited successfully but produced no snapshot at %s: %w", destination, statErr)
		c.logger.LogToolInvocation(id, args, string(output), duration, err)
		return appErrors.NewSnapshotError(fmt.Sprintf("snapshot missing for %s", id), err).
			WithContext("model", id).
			WithContext("output", string(output))
	}

	c.logger.LogToolInvocation(id, args, string(output), duration, nil)
	return nil
}
