package models

import "time"

// PipelineStatus drives the reachability/PoC pipeline scheduler. It is
// distinct from Status: PipelineStatus tracks automated analysis progress,
// Status tracks the human-facing disposition once analysis lands.
type PipelineStatus string

const (
	PipelinePending       PipelineStatus = "pending"
	PipelinePathSearching PipelineStatus = "path_searching"
	PipelinePoCGenerating PipelineStatus = "poc_generating"
	PipelineVerified      PipelineStatus = "verified"
	PipelineNotAffect     PipelineStatus = "not_affect"
)

// Status is the human-facing disposition of a ClientVuln once the
// automated pipeline has produced (or failed to produce) a result.
type Status string

const (
	StatusRecorded  Status = "recorded"
	StatusReported  Status = "reported"
	StatusConfirmed Status = "confirmed"
	StatusFixed     Status = "fixed"
	StatusNotAffect Status = "not_affect"
)

// ClientVuln is the per-project materialization of an UpstreamVuln: one
// row per (UpstreamVuln, Project) pair, carrying both the automated
// pipeline's findings and the dispositions a human applies afterward.
type ClientVuln struct {
	ID                  string
	UpstreamVulnID      string
	ProjectID           string
	PipelineStatus      PipelineStatus
	IsAffected          *bool
	ErrorMessage        *string
	AnalysisStartedAt   *time.Time
	AnalysisCompletedAt *time.Time
	Status              *Status
	RecordedAt          *time.Time
	ReportedAt          *time.Time
	NotAffectAt         *time.Time
	ConfirmedAt         *time.Time
	ConfirmedMsg        *string
	FixedAt             *time.Time
	FixedMsg            *string
	ConstraintExpr      *string
	ConstraintSource    *string
	ResolvedVersion     *string
	FixVersion          *string
	Verdict             *string
	ReachablePath       map[string]any
	PoCResults          map[string]any
	Report              map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
