package models

import "time"

// ProjectDependency pins one Library as a dependency of one Project.
// ConstraintSource records where the constraint came from (e.g. a
// manifest path), so the same library can be declared more than once
// under different build files without colliding on the unique index.
type ProjectDependency struct {
	ID               string
	ProjectID        string
	LibraryID        string
	ConstraintExpr   *string
	ResolvedVersion  *string
	ConstraintSource string
	NotifyEnabled    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
