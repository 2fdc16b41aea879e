package reachability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStore_FindSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") == "1.4.2" {
			_ = json.NewEncoder(w).Encode(map[string]string{"snapshot_id": "snap-1"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL})

	id, found, err := s.FindSnapshot(context.Background(), "https://github.com/o/r", "1.4.2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "snap-1", id)

	_, found, err = s.FindSnapshot(context.Background(), "https://github.com/o/r", "9.9.9")
	require.NoError(t, err)
	require.False(t, found)
}

func TestHTTPStore_BuildSnapshotSurfacesFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("clone failed: repository not found"))
	}))
	defer srv.Close()

	s := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL})
	_, err := s.BuildSnapshot(context.Background(), "https://github.com/o/gone", "1.0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "clone failed: repository not found")
}

func TestHTTPStore_ShortestPathNotFoundIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL})
	path, err := s.ShortestPath(context.Background(), "snap-1", "main", "parse_url")
	require.NoError(t, err)
	require.Nil(t, path)
}

func TestHTTPStore_ReachableFunctions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/snapshots/snap-1/fuzzers/fuzz_url/reachable", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"name": "parse_url", "file_path": "src/url.c", "depth": 3, "is_external": false},
		})
	}))
	defer srv.Close()

	s := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL})
	funcs, err := s.ReachableFunctionsByOneFuzzer(context.Background(), "snap-1", "fuzz_url", nil)
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	require.Equal(t, "parse_url", funcs[0].Name)
	require.Equal(t, 3, funcs[0].Depth)
}
