package reachability

import (
	"regexp"
	"strings"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
)

// cExtensions are the file suffixes the diff-based fallback inspects; a
// security fix in a build file or test fixture carries no function-level
// signal worth extracting.
var cExtensions = []string{".c", ".cc", ".cpp", ".cxx", ".h", ".hpp", ".hh"}

// hunkHeaderRe matches a unified-diff hunk header's trailing context, the
// line the compiler/diff tool considers the enclosing scope.
var hunkHeaderRe = regexp.MustCompile(`^@@.*@@\s*(.+)$`)

// callSiteRe extracts the first "identifier(" token on a hunk header's
// context line — almost always the enclosing function's declaration.
var callSiteRe = regexp.MustCompile(`([A-Za-z_]\w*)\s*\(`)

// bareIdentifierRe falls back to a trailing bare identifier when no call
// parenthesis is present (e.g. a struct or label context line).
var bareIdentifierRe = regexp.MustCompile(`([A-Za-z_]\w*)\s*$`)

// ExtractFunctions derives a deduplicated list of function identifiers from
// a commit's changed C/C++ files, used when an UpstreamVuln carries no
// affected_functions.
func ExtractFunctions(files []githubapi.CommitFile) []string {
	seen := map[string]bool{}
	var out []string

	for _, f := range files {
		if !isCCppFile(f.Filename) {
			continue
		}
		for _, name := range extractFromPatch(f.Patch) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func isCCppFile(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range cExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func extractFromPatch(patch string) []string {
	var names []string
	for _, line := range strings.Split(patch, "\n") {
		m := hunkHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		context := strings.TrimSpace(m[1])
		if call := callSiteRe.FindStringSubmatch(context); call != nil {
			names = append(names, call[1])
			continue
		}
		if bare := bareIdentifierRe.FindStringSubmatch(context); bare != nil {
			names = append(names, bare[1])
		}
	}
	return names
}
