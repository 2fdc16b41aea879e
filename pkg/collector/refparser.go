package collector

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// closesRe matches "Fixes #N" / "Closes #N" / "Resolves #N" anywhere in
// title+message, case-insensitively. The first match wins.
var closesRe = regexp.MustCompile(`(?i)\b(?:fixes|closes|resolves)\s+#(\d+)`)

// inlinePRRe matches the "(#N)" convention GitHub applies to squash-merge
// commit titles, scanned only in the title.
var inlinePRRe = regexp.MustCompile(`\(#(\d+)\)`)

// ApplyReferences fills RelatedIssueRef/RelatedIssueURL and
// RelatedPRRef/RelatedPRURL on e by scanning its title and message, given
// the owner/repo the event's library maps to (used to build the URL).
func ApplyReferences(e *models.Event, owner, repo string) {
	combined := e.Title
	if e.Message != nil {
		combined += "\n" + *e.Message
	}

	if m := closesRe.FindStringSubmatch(combined); m != nil {
		n := m[1]
		e.RelatedIssueRef = &n
		url := fmt.Sprintf("https://github.com/%s/%s/issues/%s", owner, repo, n)
		e.RelatedIssueURL = &url
	}

	if m := inlinePRRe.FindStringSubmatch(e.Title); m != nil {
		n := m[1]
		e.RelatedPRRef = &n
		url := fmt.Sprintf("https://github.com/%s/%s/pull/%s", owner, repo, n)
		e.RelatedPRURL = &url
	}
}

// parseIssueRefInt is a small helper tests use to assert ref parsing
// produced a valid integer (the stored ref itself stays a string — GitHub
// issue/PR numbers are opaque identifiers to the rest of the pipeline).
func parseIssueRefInt(ref *string) (int, bool) {
	if ref == nil {
		return 0, false
	}
	n, err := strconv.Atoi(*ref)
	return n, err == nil
}
