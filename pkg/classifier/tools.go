package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/llmagent"
)

// buildTools assembles the classifier agent's tool surface: commit diffs, PR
// diffs, file contents at a ref, issue bodies, PR bodies.
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
			return formatFiles(c.Files), false
		},
	}

	tools["fetch_pr_diff"] = llmagent.Tool{
		Definition: llmagent.ToolDefinition{
			Name:        "fetch_pr_diff",
			Description: "Fetch the changed-file diffs of a pull request by number.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"number": map[string]any{"type": "integer"}},
				"required":   []string{"number"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, bool) {
			n, err := intArg(args, "number")
			if err != nil {
				return err.Error(), true
			}
			files, err := gh.GetPullRequestFiles(ctx, owner, repo, n)
			if err != nil {
				return err.Error(), true
			}
			return formatFiles(files), false
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
			return decodeContents(f), false
		},
	}

	tools["fetch_issue_body"] = llmagent.Tool{
		Definition: llmagent.ToolDefinition{
			Name:        "fetch_issue_body",
			Description: "Fetch an issue's title and body by number.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"number": map[string]any{"type": "integer"}},
				"required":   []string{"number"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, bool) {
			n, err := intArg(args, "number")
			if err != nil {
				return err.Error(), true
			}
			iss, err := gh.GetIssue(ctx, owner, repo, n)
			if err != nil {
				return err.Error(), true
			}
			return iss.Title + "\n\n" + iss.Body, false
		},
	}

	tools["fetch_pr_body"] = llmagent.Tool{
		Definition: llmagent.ToolDefinition{
			Name:        "fetch_pr_body",
			Description: "Fetch a pull request's title and body by number.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"number": map[string]any{"type": "integer"}},
				"required":   []string{"number"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, bool) {
			n, err := intArg(args, "number")
			if err != nil {
				return err.Error(), true
			}
			pr, err := gh.GetPullRequest(ctx, owner, repo, n)
			if err != nil {
				return err.Error(), true
			}
			return pr.Title + "\n\n" + pr.Body, false
		},
	}

	return tools
}

func formatFiles(files []githubapi.CommitFile) string {
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n\n", f.Filename, f.Patch))
	}
	return sb.String()
}

func decodeContents(f *githubapi.ContentFile) string {
	if f.Encoding != "base64" {
		return f.Content
	}
	clean := strings.ReplaceAll(f.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return f.Content
	}
	return string(decoded)
}

func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("missing or invalid %q argument", key)
	}
}
