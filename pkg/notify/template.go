package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// severityColor drives the email header's color, the reader's fastest
// triage cue.
var severityColor = map[models.Severity]string{
	models.SeverityCritical: "#7f1d1d",
	models.SeverityHigh:     "#b91c1c",
	models.SeverityMedium:   "#b45309",
	models.SeverityLow:      "#0f766e",
}

const defaultSeverityColor = "#374151"

// notificationData is the view model html/template renders. Every field
// reaching the template is already a plain string or slice, so template's
// automatic HTML-escaping covers all of it without a bespoke sanitizer.
type notificationData struct {
	Subject           string
	SeverityColor     string
	Severity          string
	VulnType          string
	Summary           string
	LibraryName       string
	ProjectName       string
	CommitSHA         string
	AffectedVersions  string
	FixVersion        string
	AffectedFunctions []string
	ReachableFound    bool
	ReachableStrategy string
	CallChainLines    []string
}

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #111827;">
  <div style="border-top: 4px solid {{.SeverityColor}}; padding: 16px; max-width: 640px;">
    <h2 style="margin: 0 0 4px;">{{.Subject}}</h2>
    <p style="color: {{.SeverityColor}}; font-weight: bold; text-transform: uppercase; margin: 0 0 16px;">
      {{.Severity}} severity — {{.VulnType}}
    </p>
    <table style="border-collapse: collapse; width: 100%; font-size: 14px;">
      <tr><td style="padding: 4px 8px; color: #6b7280;">Project</td><td style="padding: 4px 8px;">{{.ProjectName}}</td></tr>
      <tr><td style="padding: 4px 8px; color: #6b7280;">Library</td><td style="padding: 4px 8px;">{{.LibraryName}}</td></tr>
      <tr><td style="padding: 4px 8px; color: #6b7280;">Fix commit</td><td style="padding: 4px 8px;"><code>{{.CommitSHA}}</code></td></tr>
      {{if .AffectedVersions}}<tr><td style="padding: 4px 8px; color: #6b7280;">Affected versions</td><td style="padding: 4px 8px;">{{.AffectedVersions}}</td></tr>{{end}}
      {{if .FixVersion}}<tr><td style="padding: 4px 8px; color: #6b7280;">Fix version</td><td style="padding: 4px 8px;">{{.FixVersion}}</td></tr>{{end}}
    </table>
    <p style="margin: 16px 0;">{{.Summary}}</p>
    {{if .AffectedFunctions}}
    <p style="margin: 16px 0 4px; font-weight: bold;">Affected functions</p>
    <ul style="margin: 0; padding-left: 20px;">
      {{range .AffectedFunctions}}<li><code>{{.}}</code></li>{{end}}
    </ul>
    {{end}}
    <p style="margin: 16px 0 4px; font-weight: bold;">Reachability</p>
    {{if .ReachableFound}}
    <p style="margin: 0; color: #b91c1c;">Reachable from this project's entry points ({{.ReachableStrategy}}).</p>
    {{if .CallChainLines}}
    <pre style="background: #f3f4f6; padding: 8px; font-size: 12px; overflow-x: auto;">{{range .CallChainLines}}{{.}}
{{end}}</pre>
    {{end}}
    {{else}}
    <p style="margin: 0; color: #6b7280;">No reachable path found ({{.ReachableStrategy}}).</p>
    {{end}}
  </div>
</body>
</html>
`))

// renderNotification builds the subject and HTML body for one ClientVuln.
func renderNotification(cv *models.ClientVuln, vuln *models.UpstreamVuln, lib *models.Library, project *models.Project) (subject, body string, err error) {
	severity := "unknown"
	if vuln.Severity != nil {
		severity = string(*vuln.Severity)
	}
	vulnType := "other"
	if vuln.VulnType != nil {
		vulnType = *vuln.VulnType
	}
	summary := "No summary available."
	if vuln.Summary != nil && *vuln.Summary != "" {
		summary = *vuln.Summary
	}

	color := defaultSeverityColor
	if c, ok := severityColor[models.Severity(severity)]; ok {
		color = c
	}

	subject = fmt.Sprintf("[%s] %s vulnerability in %s affects %s", severity, vulnType, lib.Name, project.Name)

	data := notificationData{
		Subject:           subject,
		SeverityColor:     color,
		Severity:          severity,
		VulnType:          vulnType,
		Summary:           summary,
		LibraryName:       lib.Name,
		ProjectName:       project.Name,
		CommitSHA:         vuln.CommitSHA,
		AffectedVersions:  strOrEmpty(vuln.AffectedVersions),
		FixVersion:        strOrEmpty(cv.FixVersion),
		AffectedFunctions: sortedCopy(vuln.AffectedFunctions),
	}
	data.ReachableFound, data.ReachableStrategy, data.CallChainLines = reachabilitySummary(cv.ReachablePath)

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render notification template: %w", err)
	}
	return subject, buf.String(), nil
}

func reachabilitySummary(reachablePath map[string]any) (found bool, strategy string, chainLines []string) {
	if reachablePath == nil {
		return false, "unknown", nil
	}
	if v, ok := reachablePath["found"].(bool); ok {
		found = v
	}
	if v, ok := reachablePath["strategy"].(string); ok {
		strategy = v
	}
	chain, ok := reachablePath["call_chain"].([]any)
	if !ok {
		return found, strategy, nil
	}
	for _, p := range chain {
		path, ok := p.([]any)
		if !ok {
			continue
		}
		parts := make([]string, 0, len(path))
		for _, fn := range path {
			if s, ok := fn.(string); ok {
				parts = append(parts, s)
			}
		}
		chainLines = append(chainLines, fmt.Sprintf("%v", parts))
	}
	return found, strategy, chainLines
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
