package devharness

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anvildev/anvil/internal/graph"
	"github.com/anvildev/anvil/kit/genericsutil"
)

// DefaultCacheDir and CacheFileName name where the dev harness persists
// its graph snapshot between runs.
const (
	DefaultCacheDir = ".anvil"
	CacheFileName   = "build-cache.gob"
)

// SaveGraph persists a dependency graph snapshot to cacheDir so the next
// `cmd/anvildev` run can resume with a warm graph instead of a cold one.
// Only the graph survives a restart; the bundle cache always starts cold,
// so the first build of a new process still rebuilds everything.
func SaveGraph(cacheDir string, g *graph.Graph) error {
	cacheDir = genericsutil.OrDefault(cacheDir, DefaultCacheDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("devharness: create cache dir %s: %w", cacheDir, err)
	}

	f, err := os.Create(filepath.Join(cacheDir, CacheFileName))
	if err != nil {
		return fmt.Errorf("devharness: create graph snapshot: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(g.Serialize()); err != nil {
		return fmt.Errorf("devharness: encode graph snapshot: %w", err)
	}
	return nil
}

// LoadGraph reads a previously-saved graph snapshot. A missing file, a
// corrupt gob stream, and a snapshot version mismatch (handled inside
// graph.Deserialize) all yield a fresh empty graph rather than an error —
// a stale snapshot only costs one full rebuild.
func LoadGraph(cacheDir string) (*graph.Graph, error) {
	cacheDir = genericsutil.OrDefault(cacheDir, DefaultCacheDir)

	f, err := os.Open(filepath.Join(cacheDir, CacheFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return graph.New(), nil
		}
		return nil, err
	}
	defer f.Close()

	var snap graph.Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return graph.New(), nil
	}
	return graph.Deserialize(snap), nil
}
