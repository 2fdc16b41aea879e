package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// sourceResult is one source's outcome: the events it produced (possibly
// empty) and an error string if it failed. Each source is isolated from
// the others' exceptions.
type sourceResult struct {
	name    string
	events  []*models.Event
	status  string
	err     error
}

// collectCommits walks /commits, stopping at the previously-seen SHA and
// excluding merge commits (parents >= 2).
func (e *Engine) collectCommits(ctx context.Context, lib *models.Library, owner, repo string, win window) sourceResult {
	var events []*models.Event
	seenSHA := ""
	if lib.LatestCommitSHA != nil {
		seenSHA = *lib.LatestCommitSHA
	}

	err := e.gh.ListCommits(ctx, owner, repo, lib.DefaultBranch, win.sinceISO, win.pageCap, func(commits []githubapi.Commit) (bool, error) {
		for _, c := range commits {
			if c.SHA == seenSHA {
				return false, nil // reached previously-seen SHA: stop
			}
			if len(c.Parents) >= 2 {
				continue // merge commit excluded
			}
			events = append(events, commitToEvent(lib.ID, c))
		}
		return true, nil
	})
	if err != nil {
		return sourceResult{name: "commits", err: err, status: "error: " + err.Error()}
	}
	return sourceResult{name: "commits", events: events, status: fmt.Sprintf("ok: %d events", len(events))}
}

// collectPRMerges walks /pulls?state=closed, newest-updated first. There is
// no "since" GitHub understands for this endpoint, so out-of-window rows
// are skipped, never used to break the scan.
func (e *Engine) collectPRMerges(ctx context.Context, lib *models.Library, owner, repo string, win window) sourceResult {
	var events []*models.Event

	err := e.gh.ListClosedPRs(ctx, owner, repo, win.pageCap, func(prs []githubapi.PullRequest) (bool, error) {
		for _, pr := range prs {
			if pr.MergedAt == nil {
				continue // unmerged: skip, don't break
			}
			if win.since != nil && pr.MergedAt.Before(*win.since) {
				continue // merged before window: skip, don't break
			}
			events = append(events, prToEvent(lib.ID, pr))
		}
		return true, nil
	})
	if err != nil {
		return sourceResult{name: "pr_merge", err: err, status: "error: " + err.Error()}
	}
	return sourceResult{name: "pr_merge", events: events, status: fmt.Sprintf("ok: %d events", len(events))}
}

// collectTags walks /tags, stopping at the previously-seen tag name.
func (e *Engine) collectTags(ctx context.Context, lib *models.Library, owner, repo string, win window) sourceResult {
	var events []*models.Event
	seenTag := ""
	if lib.LatestTagVersion != nil {
		seenTag = *lib.LatestTagVersion
	}

	err := e.gh.ListTags(ctx, owner, repo, win.pageCap, func(tags []githubapi.Tag) (bool, error) {
		for _, t := range tags {
			if t.Name == seenTag {
				return false, nil
			}
			events = append(events, tagToEvent(lib.ID, t))
		}
		return true, nil
	})
	if err != nil {
		return sourceResult{name: "tag", err: err, status: "error: " + err.Error()}
	}
	return sourceResult{name: "tag", events: events, status: fmt.Sprintf("ok: %d events", len(events))}
}

// collectBugIssues walks /issues?labels=bug, excluding issues that are
// actually PR wrappers (body carries a pull_request field).
func (e *Engine) collectBugIssues(ctx context.Context, lib *models.Library, owner, repo string, win window) sourceResult {
	var events []*models.Event

	err := e.gh.ListBugIssues(ctx, owner, repo, win.sinceISO, win.pageCap, func(issues []githubapi.Issue) (bool, error) {
		for _, iss := range issues {
			if iss.PullRequest != nil {
				continue // PR wrapper, excluded
			}
			events = append(events, issueToEvent(lib.ID, iss))
		}
		return true, nil
	})
	if err != nil {
		return sourceResult{name: "bug_issue", err: err, status: "error: " + err.Error()}
	}
	return sourceResult{name: "bug_issue", events: events, status: fmt.Sprintf("ok: %d events", len(events))}
}

// collectGHSAHealth probes /security-advisories purely as a health check;
// it never produces Events.
func (e *Engine) collectGHSAHealth(ctx context.Context, owner, repo string) sourceResult {
	if err := e.gh.ProbeSecurityAdvisories(ctx, owner, repo); err != nil {
		return sourceResult{name: "ghsa", err: err, status: "error: " + err.Error()}
	}
	return sourceResult{name: "ghsa", status: "ok: probed"}
}

func commitToEvent(libraryID string, c githubapi.Commit) *models.Event {
	var author *string
	if c.Author != nil {
		author = &c.Author.Login
	} else if c.Commit.Author.Name != "" {
		name := c.Commit.Author.Name
		author = &name
	}
	at := c.Commit.Author.Date
	msg := c.Commit.Message
	title, body := splitTitleBody(msg)
	url := c.HTMLURL
	return &models.Event{
		LibraryID: libraryID,
		Type:      models.EventTypeCommit,
		Ref:       c.SHA,
		SourceURL: &url,
		Author:    author,
		EventAt:   &at,
		Title:     title,
		Message:   body,
	}
}

func prToEvent(libraryID string, pr githubapi.PullRequest) *models.Event {
	var author *string
	if pr.User != nil {
		author = &pr.User.Login
	}
	at := pr.UpdatedAt
	if pr.MergedAt != nil {
		at = *pr.MergedAt
	}
	url := pr.HTMLURL
	body := pr.Body
	return &models.Event{
		LibraryID: libraryID,
		Type:      models.EventTypePRMerge,
		Ref:       fmt.Sprintf("%d", pr.Number),
		SourceURL: &url,
		Author:    author,
		EventAt:   &at,
		Title:     pr.Title,
		Message:   &body,
	}
}

func tagToEvent(libraryID string, t githubapi.Tag) *models.Event {
	return &models.Event{
		LibraryID: libraryID,
		Type:      models.EventTypeTag,
		Ref:       t.Name,
		Title:     t.Name,
		RelatedCommitSHA: &t.Commit.SHA,
	}
}

func issueToEvent(libraryID string, iss githubapi.Issue) *models.Event {
	var author *string
	if iss.User != nil {
		author = &iss.User.Login
	}
	at := iss.UpdatedAt
	url := iss.HTMLURL
	body := iss.Body
	return &models.Event{
		LibraryID: libraryID,
		Type:      models.EventTypeIssue,
		Ref:       fmt.Sprintf("%d", iss.Number),
		SourceURL: &url,
		Author:    author,
		EventAt:   &at,
		Title:     iss.Title,
		Message:   &body,
	}
}

// window carries the since/pageCap pair the collector resolves once per
// library per cycle.
type window struct {
	since    *time.Time
	sinceISO string
	pageCap  int
}

func resolveWindow(lib *models.Library) window {
	if lib.LastScannedAt == nil {
		since := time.Now().Add(-30 * 24 * time.Hour)
		return window{since: &since, sinceISO: since.UTC().Format(time.RFC3339), pageCap: githubapi.FirstCollectPageCap}
	}
	since := *lib.LastScannedAt
	return window{since: &since, sinceISO: since.UTC().Format(time.RFC3339), pageCap: githubapi.DefaultPageCap}
}

func splitTitleBody(msg string) (string, *string) {
	for i, r := range msg {
		if r == '\n' {
			title := msg[:i]
			body := msg[i+1:]
			trimmed := trimLeadingNewlines(body)
			if trimmed == "" {
				return title, nil
			}
			return title, &trimmed
		}
	}
	return msg, nil
}

func trimLeadingNewlines(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r') {
		s = s[1:]
	}
	return s
}
