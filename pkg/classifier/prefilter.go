package classifier

import (
	"regexp"
	"strings"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// botAuthorPatterns are substrings of known automation account logins; the
// match is case-insensitive and partial since GitHub bot accounts vary in
// suffix (dependabot[bot], dependabot-preview[bot], ...).
var botAuthorPatterns = []string{
	"dependabot", "renovate", "greenkeeper", "snyk", "github-actions", "mergify",
}

// securityKeywordRe forces the LLM path whenever title+message carries any
// signal that the pre-filter itself must never resolve.
var securityKeywordRe = regexp.MustCompile(
	`(?i)cve-\d{4}-\d+|cwe-\d+|vulnerab|exploit|use.?after.?free|buffer.?over(flow|read|write)|out.?of.?bounds|auth.?bypass|denial.?of.?service`)

// conventionalPrefixRe matches a conventional-commit type prefix at the
// start of the title, optionally scoped ("fix(parser): ...").
var conventionalPrefixRe = regexp.MustCompile(`(?i)^(fix|feat|refactor|docs|test|ci|chore|build|perf)(\([^)]*\))?:\s*`)

// prefilterResult reports a deterministic pre-filter verdict. A zero value
// (hit=false) means "miss" — fall through to the LLM path.
type prefilterResult struct {
	hit            bool
	classification models.EventClassification
	confidence     float64
}

// prefilter applies the deterministic no-LLM-cost rules in priority
// order: event type, author, security keywords, then conventional commit
// prefix.
func prefilter(e *models.Event) prefilterResult {
	if e.Type == models.EventTypeTag {
		return prefilterResult{hit: true, classification: models.ClassificationOther, confidence: 0.95}
	}

	if e.Author != nil && isBotAuthor(*e.Author) {
		return prefilterResult{hit: true, classification: models.ClassificationOther, confidence: 0.90}
	}

	combined := e.Title
	if e.Message != nil {
		combined += "\n" + *e.Message
	}
	if securityKeywordRe.MatchString(combined) {
		return prefilterResult{}
	}

	if m := conventionalPrefixRe.FindStringSubmatch(e.Title); m != nil {
		switch strings.ToLower(m[1]) {
		case "fix":
			return prefilterResult{hit: true, classification: models.ClassificationNormalBugfix, confidence: 0.70}
		case "feat":
			return prefilterResult{hit: true, classification: models.ClassificationFeature, confidence: 0.80}
		case "refactor":
			return prefilterResult{hit: true, classification: models.ClassificationRefactor, confidence: 0.80}
		case "docs", "test", "ci", "chore", "build", "perf":
			return prefilterResult{hit: true, classification: models.ClassificationOther, confidence: 0.85}
		}
	}

	return prefilterResult{}
}

func isBotAuthor(author string) bool {
	lower := strings.ToLower(author)
	for _, p := range botAuthorPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
