// Package graph implements the dependency graph: a directed graph of
// intra-project imports, their reverse edges, and per-file NPM dependency
// sets, keyed by absolute file path.
//
// Edges are kept bidirectional eagerly — every mutating call leaves the
// imports/importedBy pair consistent, so traversals never need a repair
// pass after a load or an edit.
package graph

import (
	"sync"
	"time"

	"github.com/anvildev/anvil/internal/hashutil"
)

// version is bumped whenever the serialized record shape changes.
// A mismatched version on Deserialize yields a fresh empty graph.
const version = 1

// Node mirrors build.FileNode but keeps its edge sets as maps internally
// for O(1) membership tests during diffing.
type Node struct {
	Path            string
	Imports         map[string]struct{}
	ImportedBy      map[string]struct{}
	NPMDependencies map[string]struct{}
	ContentHash     string
	LastModified    time.Time
}

func newNode(path string) *Node {
	return &Node{
		Path:            path,
		Imports:         make(map[string]struct{}),
		ImportedBy:      make(map[string]struct{}),
		NPMDependencies: make(map[string]struct{}),
	}
}

// Graph is safe for concurrent use, though in practice it is mutated only
// from the orchestrator's serialized build path.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddFile creates or updates the node at path. On update, it diffs the old
// import set against the new one, removing now-obsolete reverse edges and
// adding new ones. Any newly-referenced import target that has no node yet
// gets a placeholder node; its empty content hash marks it as unobserved.
func (g *Graph) AddFile(path, content string, imports []string, npmDeps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, existed := g.nodes[path]
	if !existed {
		node = newNode(path)
		g.nodes[path] = node
	}

	newImports := make(map[string]struct{}, len(imports))
	for _, imp := range imports {
		newImports[imp] = struct{}{}
	}

	for old := range node.Imports {
		if _, stillImported := newImports[old]; !stillImported {
			if target, ok := g.nodes[old]; ok {
				delete(target.ImportedBy, path)
			}
		}
	}

	for imp := range newImports {
		target, ok := g.nodes[imp]
		if !ok {
			target = newNode(imp)
			g.nodes[imp] = target
		}
		target.ImportedBy[path] = struct{}{}
	}

	node.Imports = newImports

	npmSet := make(map[string]struct{}, len(npmDeps))
	for _, dep := range npmDeps {
		npmSet[dep] = struct{}{}
	}
	node.NPMDependencies = npmSet

	node.ContentHash = hashutil.Hash(content)
	node.LastModified = time.Now()
}

// RemoveFile deletes the node at path along with every incident edge on
// both sides.
func (g *Graph) RemoveFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeFileLocked(path)
}

func (g *Graph) removeFileLocked(path string) {
	node, ok := g.nodes[path]
	if !ok {
		return
	}

	for target := range node.Imports {
		if t, ok := g.nodes[target]; ok {
			delete(t.ImportedBy, path)
		}
	}
	for source := range node.ImportedBy {
		if s, ok := g.nodes[source]; ok {
			delete(s.Imports, path)
		}
	}

	delete(g.nodes, path)
}

// HasFileChanged reports whether path is absent from the graph or its
// stored hash differs from the hash of newContent.
func (g *Graph) HasFileChanged(path, newContent string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[path]
	if !ok {
		return true
	}
	return node.ContentHash != hashutil.Hash(newContent)
}

// GetAffectedFiles performs a BFS over reverse edges starting at
// changedPath, returning the visited set (including the seed). The visited
// set keeps traversal terminating on cyclic graphs.
func (g *Graph) GetAffectedFiles(changedPath string) map[string]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getAffectedFilesLocked(changedPath)
}

func (g *Graph) getAffectedFilesLocked(changedPath string) map[string]struct{} {
	visited := map[string]struct{}{changedPath: {}}
	queue := []string{changedPath}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for dependent := range node.ImportedBy {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}

	return visited
}

// GetAffectedFilesForChanges is the union of GetAffectedFiles over every
// path in paths.
func (g *Graph) GetAffectedFilesForChanges(paths []string) map[string]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	union := make(map[string]struct{})
	for _, p := range paths {
		for affected := range g.getAffectedFilesLocked(p) {
			union[affected] = struct{}{}
		}
	}
	return union
}

// HasNpmDependenciesChanged reports whether the union of every node's
// NPMDependencies differs from newSet by size or membership.
func (g *Graph) HasNpmDependenciesChanged(newSet map[string]struct{}) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	current := make(map[string]struct{})
	for _, node := range g.nodes {
		for dep := range node.NPMDependencies {
			current[dep] = struct{}{}
		}
	}

	if len(current) != len(newSet) {
		return true
	}
	for dep := range newSet {
		if _, ok := current[dep]; !ok {
			return true
		}
	}
	return false
}

// Node returns a copy-free read of the node at path, or nil if absent.
func (g *Graph) Node(path string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[path]
}

// Size returns the number of nodes and directed edges currently tracked.
func (g *Graph) Size() (nodes int, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes = len(g.nodes)
	for _, n := range g.nodes {
		edges += len(n.Imports)
	}
	return nodes, edges
}

// Reset empties the graph in place.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Node)
}

// Snapshot is the versioned, gob-friendly serialization shape returned by
// Serialize and consumed by Deserialize. It is exported so dev-harness
// persistence code (see internal/devharness) can decode it directly with
// encoding/gob without reaching into unexported graph internals.
type Snapshot struct {
	Version int
	Nodes   map[string]NodeSnapshot
}

// NodeSnapshot is one node's persisted edge/hash state.
type NodeSnapshot struct {
	Path            string
	Imports         []string
	ImportedBy      []string
	NPMDependencies []string
	ContentHash     string
	LastModified    time.Time
}

// Serialize produces a versioned snapshot suitable for gob persistence.
func (g *Graph) Serialize() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{Version: version, Nodes: make(map[string]NodeSnapshot, len(g.nodes))}
	for path, n := range g.nodes {
		s.Nodes[path] = NodeSnapshot{
			Path:            n.Path,
			Imports:         setToSlice(n.Imports),
			ImportedBy:      setToSlice(n.ImportedBy),
			NPMDependencies: setToSlice(n.NPMDependencies),
			ContentHash:     n.ContentHash,
			LastModified:    n.LastModified,
		}
	}
	return s
}

// Deserialize rebuilds a graph from a Snapshot previously returned by
// Serialize. A version mismatch yields a fresh empty graph rather than an
// error.
func Deserialize(s Snapshot) *Graph {
	if s.Version != version {
		return New()
	}

	g := New()
	for path, rn := range s.Nodes {
		n := newNode(path)
		n.ContentHash = rn.ContentHash
		n.LastModified = rn.LastModified
		for _, imp := range rn.Imports {
			n.Imports[imp] = struct{}{}
		}
		for _, dep := range rn.ImportedBy {
			n.ImportedBy[dep] = struct{}{}
		}
		for _, dep := range rn.NPMDependencies {
			n.NPMDependencies[dep] = struct{}{}
		}
		g.nodes[path] = n
	}
	return g
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
