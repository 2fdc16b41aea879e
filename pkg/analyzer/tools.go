package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/llmagent"
)

// buildTools assembles the vuln analyzer agent's tool surface: the commit
// diff under analysis and arbitrary file contents at that commit's ref, the
// minimum an LLM needs to reason about a fix's security implications.
func buildTools(gh *githubapi.Client, owner, repo string) map[string]llmagent.Tool {
	tools := map[string]llmagent.Tool{}

	tools["fetch_commit_diff"] = llmagent.Tool{
		Definition: llmagent.ToolDefinition{
			Name:        "fetch_commit_diff",
			Description: "Fetch the unified diff of a commit by its SHA.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"sha": map[string]any{"type": "string"}},
				"required":   []string{"sha"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, bool) {
			sha, _ := args["sha"].(string)
			c, err := gh.GetCommit(ctx, owner, repo, sha)
			if err != nil {
				return err.Error(), true
			}
			var sb strings.Builder
			for _, f := range c.Files {
				fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", f.Filename, f.Patch)
			}
			return sb.String(), false
		},
	}

	tools["fetch_file_contents"] = llmagent.Tool{
		Definition: llmagent.ToolDefinition{
			Name:        "fetch_file_contents",
			Description: "Fetch a file's contents at a given ref (branch, tag, or SHA).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
					"ref":  map[string]any{"type": "string"},
				},
				"required": []string{"path", "ref"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, bool) {
			path, _ := args["path"].(string)
			ref, _ := args["ref"].(string)
			f, err := gh.GetContents(ctx, owner, repo, path, ref)
			if err != nil {
				return err.Error(), true
			}
			if f.Encoding != "base64" {
				return f.Content, false
			}
			decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
			if err != nil {
				return f.Content, false
			}
			return string(decoded), false
		},
	}

	return tools
}
