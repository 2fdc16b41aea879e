package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

func TestRenderNotification_ReachablePath(t *testing.T) {
	severity := models.SeverityCritical
	vulnType := "buffer_overflow"
	affectedVersions := "<2.1"
	summary := "A crafted input triggers an out-of-bounds write in parse_url."

	cv := &models.ClientVuln{
		ReachablePath: map[string]any{
			"found":      true,
			"strategy":   "fuzzer_reaches",
			"call_chain": []any{[]any{"main", "handle_request", "parse_url"}},
		},
	}
	vuln := &models.UpstreamVuln{
		CommitSHA:         "deadbeef",
		Severity:          &severity,
		VulnType:          &vulnType,
		AffectedVersions:  &affectedVersions,
		Summary:           &summary,
		AffectedFunctions: []string{"parse_url"},
	}
	lib := &models.Library{Name: "libexpat"}
	project := &models.Project{Name: "widget-service"}

	subject, body, err := renderNotification(cv, vuln, lib, project)
	require.NoError(t, err)
	require.Equal(t, "[critical] buffer_overflow vulnerability in libexpat affects widget-service", subject)
	require.Contains(t, body, "#7f1d1d")
	require.Contains(t, body, "parse_url")
	require.Contains(t, body, "Reachable from this project's entry points (fuzzer_reaches)")
	require.Contains(t, body, summary)
}

func TestRenderNotification_NotReachable(t *testing.T) {
	cv := &models.ClientVuln{
		ReachablePath: map[string]any{"found": false, "strategy": "exhausted"},
	}
	vuln := &models.UpstreamVuln{CommitSHA: "cafef00d"}
	lib := &models.Library{Name: "zlib"}
	project := &models.Project{Name: "archiver"}

	_, body, err := renderNotification(cv, vuln, lib, project)
	require.NoError(t, err)
	require.Contains(t, body, "No reachable path found (exhausted)")
	require.NotContains(t, body, "Reachable from this project's entry points")
}

func TestRenderNotification_UnknownSeverityUsesDefaultColor(t *testing.T) {
	cv := &models.ClientVuln{}
	vuln := &models.UpstreamVuln{CommitSHA: "abc123"}
	lib := &models.Library{Name: "libfoo"}
	project := &models.Project{Name: "consumer"}

	subject, body, err := renderNotification(cv, vuln, lib, project)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(subject, "[unknown] other vulnerability"))
	require.Contains(t, body, defaultSeverityColor)
	require.Contains(t, body, "No summary available.")
}
