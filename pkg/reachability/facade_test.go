package reachability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// fakeStore scripts the call-graph store's answers per test.
type fakeStore struct {
	fuzzers   []FuzzerInfo
	reachable map[string][]ReachableFunction
	paths     map[string]*PathResult
}

func (f *fakeStore) FindSnapshot(ctx context.Context, repoURL, version string) (string, bool, error) {
	return "snap-" + version, true, nil
}

func (f *fakeStore) BuildSnapshot(ctx context.Context, repoURL, version string) (string, error) {
	return "snap-built-" + version, nil
}

func (f *fakeStore) ListFuzzerInfo(ctx context.Context, snapshotID string) ([]FuzzerInfo, error) {
	return f.fuzzers, nil
}

func (f *fakeStore) ReachableFunctionsByOneFuzzer(ctx context.Context, snapshotID, fuzzerName string, maxDepth *int) ([]ReachableFunction, error) {
	return f.reachable[fuzzerName], nil
}

func (f *fakeStore) ShortestPath(ctx context.Context, snapshotID, fromName, toName string) (*PathResult, error) {
	if f.paths == nil {
		return nil, nil
	}
	return f.paths[toName], nil
}

func vulnCols() []string {
	return []string{"id", "event_id", "library_id", "commit_sha", "vuln_type", "severity",
		"affected_versions", "summary", "reasoning", "status", "error_message", "upstream_poc",
		"affected_functions", "detected_at", "published_at", "created_at", "updated_at"}
}

func libCols() []string {
	return []string{"id", "name", "repo_url", "platform", "ecosystem", "default_branch",
		"latest_tag_version", "latest_commit_sha", "monitoring_since", "last_scanned_at",
		"collect_status", "collect_error", "collect_detail", "created_at", "updated_at"}
}

func projCols() []string {
	return []string{"id", "name", "organization", "repo_url", "platform", "default_branch",
		"pinned_ref", "auto_sync_deps", "contact", "current_version", "scan_status", "scan_error",
		"monitoring_since", "last_update_at", "created_at", "updated_at"}
}

// expectLoads wires the MarkPathSearching update and the three entity
// loads every processOne call issues before any strategy runs.
func expectLoads(mock sqlmock.Sqlmock, affectedFunctions string) {
	now := time.Now()
	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'path_searching'`).
		WithArgs("cv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM upstream_vulns WHERE id = \$1`).
		WithArgs("uv-1").
		WillReturnRows(sqlmock.NewRows(vulnCols()).
			AddRow("uv-1", "ev-1", "lib-1", "deadbeef", "buffer_overflow", "critical",
				"<2.1", "oob write in parse_url", "reasoning", "published", nil,
				[]byte("null"), []byte(affectedFunctions), now, now, now, now))
	mock.ExpectQuery(`SELECT .* FROM libraries WHERE id = \$1`).
		WithArgs("lib-1").
		WillReturnRows(sqlmock.NewRows(libCols()).
			AddRow("lib-1", "libfoo", "https://github.com/o/libfoo", "github", "c_cpp", "main",
				nil, nil, now, now, "healthy", nil, []byte("{}"), now, now))
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(projCols()).
			AddRow("proj-1", "app", nil, "https://github.com/o/app", "github", "main",
				nil, true, nil, "1.4.2", "healthy", nil, now, nil, now, now))
}

func testClientVuln() *models.ClientVuln {
	resolved := "2.0.3"
	return &models.ClientVuln{ID: "cv-1", UpstreamVulnID: "uv-1", ProjectID: "proj-1",
		PipelineStatus: models.PipelinePending, ResolvedVersion: &resolved}
}

// TestProcessOne_FuzzerReachFinalizesVerified: a fuzzer whose reachable
// set contains the target finalizes the vuln as verified/recorded with
// strategy fuzzer_reaches and the match depth.
func TestProcessOne_FuzzerReachFinalizesVerified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLoads(mock, `["parse_url"]`)
	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'verified'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	graph := &fakeStore{
		fuzzers: []FuzzerInfo{{Name: "fuzz_url", EntryFunction: "LLVMFuzzerTestOneInput"}},
		reachable: map[string][]ReachableFunction{
			"fuzz_url": {{Name: "url_escape", Depth: 1}, {Name: "parse_url", Depth: 3}},
		},
	}

	e := New(db, nil, graph, Config{}, nil)
	require.NoError(t, e.processOne(context.Background(), testClientVuln()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProcessOne_ShortestPathFallback: no fuzzer match, but a call path
// from main exists, so the vuln finalizes verified with strategy
// shortest_path.
func TestProcessOne_ShortestPathFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLoads(mock, `["parse_url"]`)
	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'verified'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	graph := &fakeStore{
		paths: map[string]*PathResult{
			"parse_url": {Length: 5, PathsFound: 1,
				Paths: [][]string{{"main", "run", "fetch", "resolve", "decode", "parse_url"}}},
		},
	}

	e := New(db, nil, graph, Config{}, nil)
	require.NoError(t, e.processOne(context.Background(), testClientVuln()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProcessOne_BothStrategiesExhaustedFinalizesNotAffect: no fuzzer
// reaches the target and no shortest path exists, so the vuln finalizes
// not_affect.
func TestProcessOne_BothStrategiesExhaustedFinalizesNotAffect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLoads(mock, `["parse_url"]`)
	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'not_affect'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := New(db, nil, &fakeStore{}, Config{}, nil)
	require.NoError(t, e.processOne(context.Background(), testClientVuln()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProcessOne_NoAffectedFunctionsShortCircuits: an empty
// affected_functions list triggers diff-based extraction; when the fix
// commit touches no C/C++ file, the vuln finalizes not_affect before any
// snapshot work.
func TestProcessOne_NoAffectedFunctionsShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha":   "deadbeef",
			"files": []map[string]string{{"filename": "README.md", "patch": "@@ -1 +1 @@"}},
		})
	}))
	defer srv.Close()
	gh := githubapi.NewClient(githubapi.Config{BaseURL: srv.URL, MaxRetries: 1, Timeout: 5 * time.Second})

	expectLoads(mock, `[]`)
	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'not_affect'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := New(db, gh, &fakeStore{}, Config{}, nil)
	require.NoError(t, e.processOne(context.Background(), testClientVuln()))
	require.NoError(t, mock.ExpectationsWereMet())
}
