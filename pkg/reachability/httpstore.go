package reachability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStore reaches the call-graph snapshot store over its REST surface.
// The store itself is owned by the static-analysis engine; this client
// covers exactly the five queries the facade consumes and nothing else.
type HTTPStore struct {
	baseURL     string
	httpClient  *http.Client
	buildClient *http.Client
}

// HTTPStoreConfig configures an HTTPStore.
type HTTPStoreConfig struct {
	BaseURL string
	// Timeout bounds every request except BuildSnapshot, which may take
	// minutes on a cold repository and gets BuildTimeout instead.
	Timeout      time.Duration
	BuildTimeout time.Duration
}

// NewHTTPStore builds an HTTPStore against cfg.BaseURL.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = 15 * time.Minute
	}
	return &HTTPStore{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		buildClient: &http.Client{Timeout: cfg.BuildTimeout},
	}
}

// FindSnapshot implements Store.
func (s *HTTPStore) FindSnapshot(ctx context.Context, repoURL, version string) (string, bool, error) {
	q := url.Values{"repo_url": {repoURL}, "version": {version}}
	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	status, err := s.getJSON(ctx, "/snapshots?"+q.Encode(), &out)
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.SnapshotID, out.SnapshotID != "", nil
}

// BuildSnapshot implements Store. The store may take minutes to clone and
// analyze a repository; a failure body is surfaced verbatim as the error
// reason.
func (s *HTTPStore) BuildSnapshot(ctx context.Context, repoURL, version string) (string, error) {
	body, err := json.Marshal(map[string]string{"repo_url": repoURL, "version": version})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/snapshots", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.buildClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("callgraph: build snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("callgraph: build snapshot for %s@%s: %s", repoURL, version, strings.TrimSpace(string(msg)))
	}

	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("callgraph: decode build response: %w", err)
	}
	return out.SnapshotID, nil
}

// ListFuzzerInfo implements Store.
func (s *HTTPStore) ListFuzzerInfo(ctx context.Context, snapshotID string) ([]FuzzerInfo, error) {
	var out []struct {
		Name          string   `json:"name"`
		EntryFunction string   `json:"entry_function"`
		Files         []string `json:"files"`
	}
	if _, err := s.getJSON(ctx, "/snapshots/"+url.PathEscape(snapshotID)+"/fuzzers", &out); err != nil {
		return nil, err
	}
	fuzzers := make([]FuzzerInfo, len(out))
	for i, f := range out {
		fuzzers[i] = FuzzerInfo{Name: f.Name, EntryFunction: f.EntryFunction, Files: f.Files}
	}
	return fuzzers, nil
}

// ReachableFunctionsByOneFuzzer implements Store.
func (s *HTTPStore) ReachableFunctionsByOneFuzzer(ctx context.Context, snapshotID, fuzzerName string, maxDepth *int) ([]ReachableFunction, error) {
	path := "/snapshots/" + url.PathEscape(snapshotID) + "/fuzzers/" + url.PathEscape(fuzzerName) + "/reachable"
	if maxDepth != nil {
		path += "?max_depth=" + strconv.Itoa(*maxDepth)
	}
	var out []struct {
		Name       string `json:"name"`
		FilePath   string `json:"file_path"`
		Depth      int    `json:"depth"`
		IsExternal bool   `json:"is_external"`
	}
	if _, err := s.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	funcs := make([]ReachableFunction, len(out))
	for i, f := range out {
		funcs[i] = ReachableFunction{Name: f.Name, FilePath: f.FilePath, Depth: f.Depth, IsExternal: f.IsExternal}
	}
	return funcs, nil
}

// ShortestPath implements Store. A 404 means no path exists and maps to a
// nil result, not an error.
func (s *HTTPStore) ShortestPath(ctx context.Context, snapshotID, fromName, toName string) (*PathResult, error) {
	q := url.Values{"from": {fromName}, "to": {toName}}
	var out struct {
		Length     int `json:"length"`
		PathsFound int `json:"paths_found"`
		Paths      []struct {
			Path []string `json:"path"`
		} `json:"paths"`
	}
	status, err := s.getJSON(ctx, "/snapshots/"+url.PathEscape(snapshotID)+"/shortest-path?"+q.Encode(), &out)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	result := &PathResult{Length: out.Length, PathsFound: out.PathsFound}
	for _, p := range out.Paths {
		result.Paths = append(result.Paths, p.Path)
	}
	return result, nil
}

// getJSON issues a GET against path and decodes the body into out,
// returning the status code so callers can special-case 404.
func (s *HTTPStore) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("callgraph: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("callgraph: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("callgraph: decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
