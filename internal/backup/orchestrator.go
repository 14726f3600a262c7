package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"revit-server-backup/internal/catalog"
	"revit-server-backup/internal/config"
	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
	"revit-server-backup/internal/selection"
	"revit-server-backup/internal/transfer"
)

// Snapshotter materializes a local snapshot of a model
type Snapshotter interface {
	Create(ctx context.Context, id, destination string) error
}

// Transferrer copies a snapshot to the backup target and checks the result
type Transferrer interface {
	CopyToTarget(src, dst string) (transfer.CopyResult, error)
	VerifyFreshness(dst string, maxAge time.Duration) transfer.Verification
	VerifyChecksum(dst, expected string) transfer.Verification
}

// Cleaner removes staged files. It reports but never raises failures.
type Cleaner interface {
	Clean(path string) *appErrors.AppError
}

// Uploader ships a finished backup to remote storage
type Uploader interface {
	Provider() string
	UploadBackup(ctx context.Context, modelID, localPath string) (string, error)
}

// Progress is told how many models a run selected and when each one is
// finished. ModelFinished may be called from several goroutines.
type Progress interface {
	Start(total int)
	ModelFinished(outcome Outcome)
	Finish()
}

// Dependencies are the collaborators an Orchestrator drives. Uploader and
// Progress are optional.
type Dependencies struct {
	Catalog   selection.Catalog
	Snapshots Snapshotter
	Transfer  Transferrer
	Cleaner   Cleaner
	Uploader  Uploader
	RunLogger *RunLogger
	Progress  Progress
}

// Orchestrator runs the per-model backup pipeline for every selected model.
// A failing model never stops the others.
type Orchestrator struct {
	cfg       config.Config
	catalog   selection.Catalog
	snapshots Snapshotter
	transfer  Transferrer
	cleaner   Cleaner
	uploader  Uploader
	runLogger *RunLogger
	progress  Progress
	logger    *logging.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator for cfg
func NewOrchestrator(cfg config.Config, deps Dependencies, logger *logging.Logger) (*Orchestrator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("orchestrator requires a catalog")
	case deps.Snapshots == nil:
		return nil, errors.New("orchestrator requires a snapshot creator")
	case deps.Transfer == nil:
		return nil, errors.New("orchestrator requires a transfer verifier")
	case deps.Cleaner == nil:
		return nil, errors.New("orchestrator requires a cleaner")
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	runLogger := deps.RunLogger
	if runLogger == nil {
		var err error
		if runLogger, err = NewRunLogger(RunLoggerConfig{Logger: logger}); err != nil {
			return nil, err
		}
	}

	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}

	return &Orchestrator{
		cfg:       cfg,
		catalog:   deps.Catalog,
		snapshots: deps.Snapshots,
		transfer:  deps.Transfer,
		cleaner:   deps.Cleaner,
		uploader:  deps.Uploader,
		runLogger: runLogger,
		progress:  deps.Progress,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RunID returns the correlation ID used for this orchestrator's runs
func (o *Orchestrator) RunID() string {
	return o.runLogger.RunID()
}

// Run selects models with policy and backs each one up. The returned error
// is non-nil only when selection itself fails; per-model failures are in the
// report.
func (o *Orchestrator) Run(ctx context.Context, policy selection.Policy) (*RunReport, error) {
	report := &RunReport{
		RunID:     o.runLogger.RunID(),
		Policy:    policy.Name(),
		StartedAt: o.now(),
	}
	finish := o.runLogger.LogRunStart(policy.Name())
	ctx = logging.ContextWithRunID(ctx, report.RunID)

	selected := o.logger.LogOperationStart("select_models", map[string]interface{}{
		"policy": policy.Name(),
		"run_id": report.RunID,
	})
	ids, err := policy.Select(ctx, o.catalog)
	selected(err)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			err = appErrors.WrapError(err, "model selection was interrupted")
		case !appErrors.IsType(err, appErrors.ErrorTypeCatalog):
			err = appErrors.NewCatalogError("failed to select models", err)
		}
		report.FinishedAt = o.now()
		report.Summarize()
		finish(report, err)
		return report, err
	}

	if specific, ok := policy.(selection.Specific); ok && len(ids) == 0 {
		outcome := Outcome{
			ModelID:   specific.ID,
			Status:    StatusSkippedNotFound,
			Stage:     StageSelected,
			StartedAt: o.now(),
		}
		o.runLogger.LogOutcome(outcome)
		report.Outcomes = []Outcome{outcome}
	} else {
		report.Outcomes = o.process(ctx, ids)
	}

	report.FinishedAt = o.now()
	report.Summarize()
	finish(report, nil)
	return report, nil
}

// process runs the pipeline for ids with bounded parallelism. Outcomes keep
// the order of ids.
func (o *Orchestrator) process(ctx context.Context, ids []string) []Outcome {
	outcomes := make([]Outcome, len(ids))
	if o.progress != nil {
		o.progress.Start(len(ids))
		defer o.progress.Finish()
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = o.processModel(ctx, id)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// processModel drives one model from Selected to Done. The staged snapshot is
// removed on every path once snapshot creation has been attempted. A model
// whose staging could not be removed stops short of Cleaned.
func (o *Orchestrator) processModel(ctx context.Context, id string) (outcome Outcome) {
	outcome = Outcome{ModelID: id, Stage: StageSelected, StartedAt: o.now()}
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		o.runLogger.LogOutcome(outcome)
		if o.progress != nil {
			o.progress.ModelFinished(outcome)
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome.fail(StageSelected, appErrors.NewAppError(appErrors.ErrorTypeInterruption,
			"run interrupted before the model was processed", err))
		return outcome
	}

	// identifiers come from the catalog and must stay below both roots
	stagePath, err := catalog.JoinModelPath(o.cfg.TempFolder, id)
	if err != nil {
		outcome.fail(StageSelected, err)
		return outcome
	}
	targetPath, err := catalog.JoinModelPath(o.cfg.Target, id)
	if err != nil {
		outcome.fail(StageSelected, err)
		return outcome
	}
	outcome.Target = targetPath

	// leftovers of an earlier interrupted run
	o.clean(&outcome, stagePath)

	defer func() {
		cleaned := o.clean(&outcome, stagePath)
		if outcome.Status == StatusSucceeded && cleaned {
			o.advance(&outcome, StageCleaned)
			o.advance(&outcome, StageDone)
		}
	}()

	if err := o.snapshots.Create(ctx, id, stagePath); err != nil {
		outcome.fail(StageSnapshotCreated, err)
		return outcome
	}
	o.advance(&outcome, StageSnapshotCreated)

	copyStart := time.Now()
	copied, err := o.transfer.CopyToTarget(stagePath, targetPath)
	o.logger.LogTransfer(id, targetPath, copied.Bytes, time.Since(copyStart), err)
	if err != nil {
		outcome.fail(StageTransferred, err)
		return outcome
	}
	outcome.Bytes = copied.Bytes
	outcome.SHA256 = copied.SHA256
	o.advance(&outcome, StageTransferred)

	o.verify(&outcome, targetPath, copied.SHA256)
	o.advance(&outcome, StageVerified)

	if o.uploader != nil {
		remoteID, err := o.uploader.UploadBackup(ctx, id, targetPath)
		if err != nil {
			outcome.fail(StageUploaded, err)
			return outcome
		}
		outcome.RemoteID = remoteID
		o.advance(&outcome, StageUploaded)
	}

	outcome.Status = StatusSucceeded
	return outcome
}

// verify runs the advisory post-copy checks. Problems become warnings on the
// outcome; the copy is never rolled back.
func (o *Orchestrator) verify(outcome *Outcome, targetPath, sum string) {
	freshness := o.transfer.VerifyFreshness(targetPath, o.cfg.FreshnessWindow)
	o.logger.LogVerification(outcome.ModelID, "freshness", freshness.OK(), freshness.Message)
	outcome.Verification = string(freshness.Status)
	if !freshness.OK() {
		o.warn(outcome, StageVerified, freshness.Message)
		return
	}

	checksum := o.transfer.VerifyChecksum(targetPath, sum)
	o.logger.LogVerification(outcome.ModelID, "checksum", checksum.OK(), checksum.Message)
	if !checksum.OK() {
		outcome.Verification = string(checksum.Status)
		o.warn(outcome, StageVerified, checksum.Message)
	}
}

func (o *Orchestrator) clean(outcome *Outcome, path string) bool {
	if err := o.cleaner.Clean(path); err != nil {
		o.warn(outcome, StageCleaned, fmt.Sprintf("Cleanup failed: %s", err.Error()))
		return false
	}
	return true
}

func (o *Orchestrator) warn(outcome *Outcome, stage Stage, message string) {
	outcome.Warnings = append(outcome.Warnings, message)
	o.runLogger.LogWarning(outcome.ModelID, stage, message)
}

func (o *Orchestrator) advance(outcome *Outcome, stage Stage) {
	outcome.Stage = stage
	o.runLogger.LogStage(outcome.ModelID, stage)
}
