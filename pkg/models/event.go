package models

import "time"

// EventType is the kind of upstream activity an Event records.
type EventType string

const (
	EventTypeCommit  EventType = "commit"
	EventTypePRMerge EventType = "pr_merge"
	EventTypeTag     EventType = "tag"
	EventTypeIssue   EventType = "bug_issue"
)

// EventClassification is the LLM- or pre-filter-assigned category of an
// Event. Only security_bugfix ever advances to vulnerability analysis.
type EventClassification string

const (
	ClassificationSecurityBugfix EventClassification = "security_bugfix"
	ClassificationNormalBugfix   EventClassification = "normal_bugfix"
	ClassificationRefactor       EventClassification = "refactor"
	ClassificationFeature        EventClassification = "feature"
	ClassificationOther          EventClassification = "other"
)

// Event is one piece of upstream activity collected from a Library's repo:
// a commit, a merged PR, a tag, or a bug-labeled issue.
type Event struct {
	ID               string
	LibraryID        string
	Type             EventType
	Ref              string
	SourceURL        *string
	Author           *string
	EventAt          *time.Time
	Title            string
	Message          *string
	RelatedIssueRef  *string
	RelatedIssueURL  *string
	RelatedPRRef     *string
	RelatedPRURL     *string
	RelatedCommitSHA *string
	Classification   *EventClassification
	Confidence       *float64
	IsBugfix         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
