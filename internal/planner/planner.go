// Package planner implements the incremental planner: the component that
// decides, given the current virtual filesystem and the engine's accumulated
// graph/cache state, which files actually need a rebuild. It composes
// internal/hashutil, internal/graph, and internal/cache rather than
// duplicating any of their bookkeeping.
package planner

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/cache"
	"github.com/anvildev/anvil/internal/graph"
	"github.com/anvildev/anvil/internal/hashutil"
)

// configPatterns are glob patterns whose change always forces a full
// rebuild.
var configPatterns = []string{
	"package.json",
	"tsconfig.json",
	"vite.config.*",
	"tailwind.config.*",
	"postcss.config.*",
	".env",
}

// Planner tracks previous-build state across calls. It is not safe for
// concurrent Analyze/Decide calls against different builds; the
// orchestrator serializes builds.
type Planner struct {
	mu sync.Mutex

	graph    *graph.Graph
	cache    *cache.Cache
	cssCache *cache.Cache

	previousHashes map[string]string
	firstBuild     bool

	rebuiltTotal int
	cachedTotal  int
	lastMetrics  build.MetricsStats
}

// New returns a Planner over the given graph and the two cache buckets
// (compiled JS bundles and compiled CSS share the key shape and the
// LRU/TTL policy but never evict each other), starting from empty
// previous-build state so the first analysis reports a full rebuild.
func New(g *graph.Graph, jsCache, cssCache *cache.Cache) *Planner {
	return &Planner{
		graph:          g,
		cache:          jsCache,
		cssCache:       cssCache,
		previousHashes: make(map[string]string),
		firstBuild:     true,
	}
}

// AnalyzeChanges diffs currentFiles against the previous build: which paths
// were added, modified, or deleted, the reverse-dependency closure of the
// changes, which unaffected paths can be served from cache, and whether the
// whole project must be rebuilt.
func (p *Planner) AnalyzeChanges(currentFiles build.VirtualFilesystem) build.ChangeAnalysis {
	p.mu.Lock()
	defer p.mu.Unlock()

	var added, modified []string
	currentHashes := make(map[string]string, len(currentFiles))

	for path, content := range currentFiles {
		h := hashutil.Hash(content)
		currentHashes[path] = h
		prev, existed := p.previousHashes[path]
		switch {
		case !existed:
			added = append(added, path)
		case prev != h:
			modified = append(modified, path)
		}
	}

	var deleted []string
	for path := range p.previousHashes {
		if _, ok := currentFiles[path]; !ok {
			deleted = append(deleted, path)
		}
	}

	changedPaths := make([]string, 0, len(added)+len(modified))
	changedPaths = append(changedPaths, added...)
	changedPaths = append(changedPaths, modified...)

	affected := p.graph.GetAffectedFilesForChanges(changedPaths)
	for _, d := range deleted {
		for f := range p.graph.GetAffectedFiles(d) {
			affected[f] = struct{}{}
		}
	}

	currentNPM := extractPackageJSONDeps(currentFiles["/package.json"])
	npmChanged := p.graph.HasNpmDependenciesChanged(currentNPM)

	requiresFull, reason := p.requiresFullRebuild(npmChanged, modified, deleted)

	var skippable []string
	for path := range currentFiles {
		if _, isAffected := affected[path]; isAffected {
			continue
		}
		if p.cache.HasBundle(path, currentFiles[path]) {
			skippable = append(skippable, path)
		}
	}

	p.previousHashes = currentHashes
	p.firstBuild = false

	return build.ChangeAnalysis{
		Added:               added,
		Modified:            modified,
		Deleted:             deleted,
		Skippable:           skippable,
		Affected:            affected,
		RequiresFullRebuild: requiresFull,
		Reason:              reason,
	}
}

func (p *Planner) requiresFullRebuild(npmChanged bool, modified, deleted []string) (bool, string) {
	if p.firstBuild {
		return true, "first build"
	}
	if npmChanged {
		return true, "NPM dependencies changed"
	}
	for _, path := range append(append([]string{}, modified...), deleted...) {
		if matchesConfigPattern(path) {
			return true, "Config file modified"
		}
	}
	return false, ""
}

func matchesConfigPattern(path string) bool {
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	for _, pattern := range configPatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// GetBuildDecisions turns a ChangeAnalysis into one verdict per current
// file, and emits deleted-file decisions that also purge the cache and
// graph.
func (p *Planner) GetBuildDecisions(currentFiles build.VirtualFilesystem, analysis build.ChangeAnalysis) []build.FileBuildDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	addedSet := toSet(analysis.Added)
	modifiedSet := toSet(analysis.Modified)

	decisions := make([]build.FileBuildDecision, 0, len(currentFiles)+len(analysis.Deleted))

	for path, content := range currentFiles {
		d := build.FileBuildDecision{Path: path}

		switch {
		case analysis.RequiresFullRebuild:
			d.Rebuild = true
			d.Reason = build.ReasonFullRebuild
		case addedSet[path]:
			d.Rebuild = true
			d.Reason = build.ReasonNew
		case modifiedSet[path]:
			d.Rebuild = true
			d.Reason = build.ReasonChanged
		case inAffected(analysis.Affected, path):
			d.Rebuild = true
			d.Reason = build.ReasonDependencyChanged
		default:
			if entry, ok := p.cache.GetBundle(path, content); ok {
				d.Rebuild = false
				d.Reason = build.ReasonCached
				d.HasCached = true
				d.CachedCode = entry.Code
				d.CachedCSS = entry.CSS
			} else {
				d.Rebuild = true
				d.Reason = build.ReasonChanged
			}
		}

		decisions = append(decisions, d)
	}

	for _, path := range analysis.Deleted {
		decisions = append(decisions, build.FileBuildDecision{Path: path, Rebuild: false, Reason: build.ReasonDeleted})
		p.cache.InvalidateBundle(path)
		p.cssCache.InvalidateBundle(path)
		p.graph.RemoveFile(path)
	}

	return decisions
}

// UpdateDependencyGraph records fresh dependency info learned from a
// successful per-file compile.
func (p *Planner) UpdateDependencyGraph(path, content string, imports, npmDeps []string) {
	p.graph.AddFile(path, content, imports, npmDeps)
}

// CacheBundle writes a compiled artifact into the bundle cache, and its
// compiled CSS (when present) into the parallel CSS bucket.
func (p *Planner) CacheBundle(path, content, code string, extra cache.Entry) {
	p.cache.SetBundle(path, content, code, extra)
	if extra.CSS != "" {
		p.cssCache.SetBundle(path, content, extra.CSS, cache.Entry{
			Imports:         extra.Imports,
			NPMDependencies: extra.NPMDependencies,
		})
	}
}

// CompleteBuild stamps incremental-build metrics. The time-saved figure is
// a flat 50ms-per-cached-file heuristic, not a measurement.
func (p *Planner) CompleteBuild(rebuiltN, cachedN int, wasFullRebuild bool) build.MetricsStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rebuiltTotal += rebuiltN
	p.cachedTotal += cachedN

	total := rebuiltN + cachedN
	var hitRate float64
	if total > 0 {
		hitRate = float64(cachedN) / float64(total)
	}

	p.lastMetrics = build.MetricsStats{
		RebuiltCount:        rebuiltN,
		CachedCount:         cachedN,
		CacheHitRate:        hitRate,
		TimeSavedEstimateMs: int64(cachedN) * 50,
		WasFullRebuild:      wasFullRebuild,
	}
	return p.lastMetrics
}

// Graph returns the underlying dependency graph, so callers that need to
// persist it across process restarts (see internal/devharness) don't have
// to duplicate the planner's bookkeeping.
func (p *Planner) Graph() *graph.Graph {
	return p.graph
}

// GetStats returns a snapshot combining the most recent build's metrics
// with the live graph and cache sizes.
func (p *Planner) GetStats() build.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes, edges := p.graph.Size()
	jsStats := p.cache.GetStats()
	cssStats := p.cssCache.GetStats()

	return build.Stats{
		Metrics: p.lastMetrics,
		Cache: build.CacheStats{
			JS: build.CacheBucketStats{
				Entries: jsStats.Entries,
				Hits:    jsStats.Hits,
				Misses:  jsStats.Misses,
			},
			CSS: build.CacheBucketStats{
				Entries: cssStats.Entries,
				Hits:    cssStats.Hits,
				Misses:  cssStats.Misses,
			},
		},
		Graph: build.GraphStats{Nodes: nodes, Edges: edges},
	}
}

// Reset clears all previous-build state, equivalent to a fresh Planner.
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previousHashes = make(map[string]string)
	p.firstBuild = true
	p.rebuiltTotal = 0
	p.cachedTotal = 0
	p.lastMetrics = build.MetricsStats{}
	p.graph.Reset()
	p.cache.Clear()
	p.cssCache.Clear()
}

func toSet(paths []string) map[string]bool {
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		out[p] = true
	}
	return out
}

func inAffected(affected map[string]struct{}, path string) bool {
	_, ok := affected[path]
	return ok
}

// packageJSON is the minimal shape needed to extract both dependency maps.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func extractPackageJSONDeps(content string) map[string]struct{} {
	out := map[string]struct{}{}
	if content == "" {
		return out
	}
	var pkg packageJSON
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return out
	}
	for name := range pkg.Dependencies {
		out[name] = struct{}{}
	}
	for name := range pkg.DevDependencies {
		out[name] = struct{}{}
	}
	return out
}
