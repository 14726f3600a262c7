// Package backup runs the backup pipeline for the models of a Revit Server.
//
// An Orchestrator asks a selection policy which models to back up and then,
// for each selected model, drives the pipeline
//
//	Selected → SnapshotCreated → Transferred → Verified → [Uploaded] → Cleaned → Done
//
// A failure at any stage ends that model's pipeline only. The outcome records
// the stage that was being attempted and the run continues with the next
// model. Verification problems and cleanup failures are recorded as warnings
// and never fail a model. The staged snapshot is removed on every path once
// snapshot creation has been attempted.
//
// Run returns an error only when the selection itself fails, since there is
// then nothing to iterate. Every other problem is reported per model in the
// RunReport, whose outcomes keep selection order even when models are
// processed in parallel.
//
// Example usage:
//
//	orchestrator, err := backup.NewOrchestrator(cfg, backup.Dependencies{
//		Catalog:   catalog.NewCatalog(cfg.DBLocation, cfg.Source, logger),
//		Snapshots: snapshot.NewCreator(cfg.ToolPath, cfg.ServerName, cfg.SnapshotTimeout, logger),
//		Transfer:  transfer.NewVerifier(),
//		Cleaner:   cleanup.NewCleaner(logger),
//	}, logger)
//	if err != nil {
//		return err
//	}
//
//	report, err := orchestrator.Run(ctx, selection.RecentlyEdited{Window: 24 * time.Hour})
//	if err != nil {
//		return fmt.Errorf("model selection failed: %w", err)
//	}
package backup
