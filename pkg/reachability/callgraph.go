package reachability

import "context"

// FuzzerInfo describes one fuzz target registered against a snapshot.
type FuzzerInfo struct {
	Name          string
	EntryFunction string
	Files         []string
}

// ReachableFunction is one function the call-graph store reports reachable
// from a fuzzer's entry point.
type ReachableFunction struct {
	Name       string
	FilePath   string
	Depth      int
	IsExternal bool
}

// PathResult is a non-empty shortest_path answer.
type PathResult struct {
	Length     int
	PathsFound int
	Paths      [][]string
}

// Store is the read-only call-graph snapshot store contract, an external
// collaborator owned by the static-analysis engine and described here only
// by the query surface the reachability facade consumes.
type Store interface {
	// FindSnapshot returns the snapshot id for (repoURL, version), or
	// found=false if none exists yet.
	FindSnapshot(ctx context.Context, repoURL, version string) (snapshotID string, found bool, err error)

	// BuildSnapshot builds a snapshot for (repoURL, version). May be slow;
	// may fail with a descriptive error.
	BuildSnapshot(ctx context.Context, repoURL, version string) (snapshotID string, err error)

	// ListFuzzerInfo lists the fuzz targets registered against a snapshot.
	ListFuzzerInfo(ctx context.Context, snapshotID string) ([]FuzzerInfo, error)

	// ReachableFunctionsByOneFuzzer lists every function reachable from
	// fuzzerName's entry point in snapshotID, optionally bounded by
	// maxDepth (nil for unbounded).
	ReachableFunctionsByOneFuzzer(ctx context.Context, snapshotID, fuzzerName string, maxDepth *int) ([]ReachableFunction, error)

	// ShortestPath returns the shortest call path from fromName to toName
	// in snapshotID, or nil if none exists.
	ShortestPath(ctx context.Context, snapshotID, fromName, toName string) (*PathResult, error)
}
