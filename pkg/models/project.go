package models

import "time"

// Project is a client codebase whose dependencies are checked against
// upstream vulnerabilities.
type Project struct {
	ID              string
	Name            string
	Organization    *string
	RepoURL         string
	Platform        string
	DefaultBranch   string
	PinnedRef       *string
	AutoSyncDeps    bool
	Contact         *string
	CurrentVersion  *string
	ScanStatus      string
	ScanError       *string
	MonitoringSince time.Time
	LastUpdateAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScanStatus values reported by dependency sync.
const (
	ScanStatusHealthy   = "healthy"
	ScanStatusUnhealthy = "unhealthy"
)
