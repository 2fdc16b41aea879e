package githubapi

import (
	"fmt"
	"net/url"
	"strings"
)

// OwnerRepo extracts the "owner" and "repo" path segments from a GitHub
// repository URL. Every engine that turns a Library.RepoURL or
// Project.RepoURL into API calls goes through this one parser.
func OwnerRepo(repoURL string) (owner, repo string, err error) {
	u, parseErr := url.Parse(repoURL)
	if parseErr != nil {
		return "", "", fmt.Errorf("invalid repo_url %q: %w", repoURL, parseErr)
	}
	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo_url %q does not contain an owner/repo path", repoURL)
	}
	return parts[0], parts[1], nil
}
