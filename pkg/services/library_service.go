package services

import (
	"context"

	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// LibraryService coordinates Library onboarding, a single-repository
// operation with input validation and defaults in front of it. The
// pipeline engines read and update Library rows through store.LibraryRepo
// directly, not through this service.
type LibraryService struct {
	repo *store.LibraryRepo
}

// NewLibraryService builds a LibraryService over repo.
func NewLibraryService(repo *store.LibraryRepo) *LibraryService {
	return &LibraryService{repo: repo}
}

// Onboard registers a new tracked Library, or returns the existing row if
// the name was already onboarded with the same URL.
func (s *LibraryService) Onboard(ctx context.Context, name, repoURL, platform, ecosystem, defaultBranch string) (*models.Library, error) {
	if name == "" || repoURL == "" {
		return nil, store.NewValidationError("name", "name and repo_url are required")
	}
	lib := &models.Library{
		Name:          name,
		RepoURL:       repoURL,
		Platform:      defaultIfEmpty(platform, "github"),
		Ecosystem:     defaultIfEmpty(ecosystem, "c_cpp"),
		DefaultBranch: defaultIfEmpty(defaultBranch, "main"),
		CollectStatus: models.CollectStatusHealthy,
	}
	return s.repo.UpsertByName(ctx, lib)
}

func defaultIfEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
