// Package models defines the plain Go types persisted by pkg/store. These
// are hand-written rather than code-generated: each type mirrors one table
// in internal/database/migrations and carries no ORM behavior of its own.
package models

import "time"

// Library is an upstream C/C++ project monitored for new commits, tags,
// pull requests, and bug issues.
type Library struct {
	ID               string
	Name             string
	RepoURL          string
	Platform         string
	Ecosystem        string
	DefaultBranch    string
	LatestTagVersion *string
	LatestCommitSHA  *string
	MonitoringSince  time.Time
	LastScannedAt    *time.Time
	CollectStatus    string
	CollectError     *string
	CollectDetail    map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CollectStatus values reported by the event collector.
const (
	CollectStatusHealthy   = "healthy"
	CollectStatusUnhealthy = "unhealthy"
)
