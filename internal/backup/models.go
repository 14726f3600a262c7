package backup

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	appErrors "revit-server-backup/internal/errors"
)

// Stage is a step of the per-model pipeline
type Stage string

const (
	StageSelected        Stage = "selected"
	StageSnapshotCreated Stage = "snapshot_created"
	StageTransferred     Stage = "transferred"
	StageVerified        Stage = "verified"
	StageUploaded        Stage = "uploaded"
	StageCleaned         Stage = "cleaned"
	StageDone            Stage = "done"
)

// Status is the final result for one model
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusSkippedNotFound Status = "skipped_not_found"
	StatusFailed          Status = "failed"
)

// Outcome records what happened to one model during a run. For a failed
// model Stage is the stage that was being attempted.
type Outcome struct {
	ModelID   string              `json:"model_id" yaml:"model_id"`
	Status    Status              `json:"status" yaml:"status"`
	Stage     Stage               `json:"stage" yaml:"stage"`
	Reason    string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	ErrorType appErrors.ErrorType `json:"error_type,omitempty" yaml:"error_type,omitempty"`

	Bytes    int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	SHA256   string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	RemoteID string `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`

	Verification string   `json:"verification,omitempty" yaml:"verification,omitempty"`
	Warnings     []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	Err error `json:"-" yaml:"-"`
}

// Failed reports whether the model's pipeline failed
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func (o *Outcome) fail(stage Stage, err error) {
	o.Status = StatusFailed
	o.Stage = stage
	o.Err = err
	o.Reason = err.Error()
	o.ErrorType = appErrors.GetErrorType(err)
}

// Summary counts outcomes per status
type Summary struct {
	Total           int `json:"total" yaml:"total"`
	Succeeded       int `json:"succeeded" yaml:"succeeded"`
	SkippedNotFound int `json:"skipped_not_found" yaml:"skipped_not_found"`
	Failed          int `json:"failed" yaml:"failed"`
	Warnings        int `json:"warnings" yaml:"warnings"`
}

// RunReport is the result of one orchestrator run. Outcomes are in selection
// order.
type RunReport struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Policy     string    `json:"policy" yaml:"policy"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Outcomes   []Outcome `json:"outcomes" yaml:"outcomes"`
	Summary    Summary   `json:"summary" yaml:"summary"`
}

// Duration returns the wall clock time of the run
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFailures reports whether any model failed
func (r *RunReport) HasFailures() bool {
	return r.Summary.Failed > 0
}

// Summarize recomputes the per-status counts
func (r *RunReport) Summarize() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkippedNotFound:
			s.SkippedNotFound++
		case StatusFailed:
			s.Failed++
		}
		if len(o.Warnings) > 0 {
			s.Warnings++
		}
	}
	r.Summary = s
	return s
}

// ToJSON serializes the report to JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ToYAML serializes the report to YAML
func (r *RunReport) ToYAML() ([]byte, error) {
	return yaml.Marshal(r)
}
