package models

import "time"

// Severity is a small closed set used for both storage and display
// color-coding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// UpstreamVulnStatus tracks whether an UpstreamVuln is still being
// analyzed or has been published for impact matching.
type UpstreamVulnStatus string

const (
	UpstreamVulnStatusAnalyzing UpstreamVulnStatus = "analyzing"
	UpstreamVulnStatusPublished UpstreamVulnStatus = "published"
)

// UpstreamVuln is a candidate vulnerability identified in a Library,
// created as a placeholder before LLM analysis and filled in (or marked
// errored) afterward. See pkg/analyzer for the placeholder-before-call
// grounding: the row must exist before the call so a crashed analysis
// run still leaves an auditable, erroring record instead of vanishing.
type UpstreamVuln struct {
	ID                string
	EventID           string
	LibraryID         string
	CommitSHA         string
	VulnType          *string
	Severity          *Severity
	AffectedVersions  *string
	Summary           *string
	Reasoning         *string
	Status            UpstreamVulnStatus
	ErrorMessage      *string
	UpstreamPoC       map[string]any
	AffectedFunctions []string
	DetectedAt        time.Time
	PublishedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
