package githubapi

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Commit is the subset of GitHub's commit resource the collector and
// reachability's diff-based function extraction need.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
	HTMLURL string `json:"html_url"`
	Files   []CommitFile `json:"files"`
}

// CommitFile is one changed file in a commit or PR diff.
type CommitFile struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch"`
}

// PullRequest is the subset of GitHub's PR resource consumed here.
type PullRequest struct {
	Number  int        `json:"number"`
	Title   string      `json:"title"`
	Body    string      `json:"body"`
	State   string      `json:"state"`
	MergedAt *time.Time `json:"merged_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User    *struct {
		Login string `json:"login"`
	} `json:"user"`
	HTMLURL string `json:"html_url"`
}

// Tag is a repository tag.
type Tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Issue is the subset of GitHub's issue resource consumed here.
// PullRequest is non-nil when this "issue" is actually a PR wrapper, which
// the collector's bug_issue source excludes.
type Issue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
	User    *struct {
		Login string `json:"login"`
	} `json:"user"`
	HTMLURL     string `json:"html_url"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

// ContentFile is a single-file response from /contents/{path}.
type ContentFile struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ListCommits pages through /repos/{owner}/{repo}/commits, invoking onPage
// per page of decoded commits. sha selects the branch.
func (c *Client) ListCommits(ctx context.Context, owner, repo, sha, since string, pageCap int, onPage func([]Commit) (bool, error)) error {
	return paginateTyped[Commit](c, ctx, fmt.Sprintf("/repos/%s/%s/commits", owner, repo),
		buildQuery(map[string]string{"sha": sha, "since": since}), pageCap, onPage)
}

// ListClosedPRs pages through /repos/{owner}/{repo}/pulls?state=closed,
// newest-updated first. There is no "since" the server understands; the
// caller is responsible for skip-not-break filtering.
func (c *Client) ListClosedPRs(ctx context.Context, owner, repo string, pageCap int, onPage func([]PullRequest) (bool, error)) error {
	return paginateTyped[PullRequest](c, ctx, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo),
		buildQuery(map[string]string{"state": "closed", "sort": "updated", "direction": "desc"}), pageCap, onPage)
}

// ListTags pages through /repos/{owner}/{repo}/tags.
func (c *Client) ListTags(ctx context.Context, owner, repo string, pageCap int, onPage func([]Tag) (bool, error)) error {
	return paginateTyped[Tag](c, ctx, fmt.Sprintf("/repos/%s/%s/tags", owner, repo), nil, pageCap, onPage)
}

// ListBugIssues pages through /repos/{owner}/{repo}/issues?labels=bug.
func (c *Client) ListBugIssues(ctx context.Context, owner, repo, since string, pageCap int, onPage func([]Issue) (bool, error)) error {
	return paginateTyped[Issue](c, ctx, fmt.Sprintf("/repos/%s/%s/issues", owner, repo),
		buildQuery(map[string]string{"labels": "bug", "state": "all", "sort": "updated", "since": since}), pageCap, onPage)
}

// ProbeSecurityAdvisories issues a single best-effort GET against
// /repos/{owner}/{repo}/security-advisories. This is a health probe only;
// its result is never ingested as Events.
func (c *Client) ProbeSecurityAdvisories(ctx context.Context, owner, repo string) error {
	var out []any
	return c.Get(ctx, fmt.Sprintf("/repos/%s/%s/security-advisories", owner, repo), nil, &out)
}

// GetCommit fetches a single commit with its file diffs, used by agent
// tools and the reachability facade's diff-based function extraction.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var out Commit
	err := c.Get(ctx, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, sha), nil, &out)
	return &out, err
}

// GetPullRequest fetches a single PR by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var out PullRequest
	err := c.Get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil, &out)
	return &out, err
}

// GetPullRequestFiles fetches the changed files of a PR.
func (c *Client) GetPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]CommitFile, error) {
	var out []CommitFile
	err := c.Get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/files", owner, repo, number), nil, &out)
	return out, err
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var out Issue
	err := c.Get(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number), nil, &out)
	return &out, err
}

// GetContents fetches a single file's contents at a given ref.
func (c *Client) GetContents(ctx context.Context, owner, repo, path, ref string) (*ContentFile, error) {
	var out ContentFile
	err := c.Get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path), buildQuery(map[string]string{"ref": ref}), &out)
	return &out, err
}

func buildQuery(kv map[string]string) url.Values {
	q := url.Values{}
	for k, v := range kv {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}
