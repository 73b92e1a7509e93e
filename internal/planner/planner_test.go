package planner

import (
	"testing"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/cache"
	"github.com/anvildev/anvil/internal/graph"
)

func newPlanner() *Planner {
	return New(graph.New(), cache.New(cache.Options{}), cache.New(cache.Options{}))
}

func TestFirstBuildRequiresFullRebuild(t *testing.T) {
	p := newPlanner()
	files := build.VirtualFilesystem{"/src/main.tsx": "export default () => 1"}

	analysis := p.AnalyzeChanges(files)
	if !analysis.RequiresFullRebuild || analysis.Reason != "first build" {
		t.Fatalf("expected first-build full rebuild, got %+v", analysis)
	}
	if len(analysis.Added) != 1 || analysis.Added[0] != "/src/main.tsx" {
		t.Fatalf("expected main.tsx to be added, got %v", analysis.Added)
	}
}

func TestSecondIdenticalBuildIsSkippable(t *testing.T) {
	p := newPlanner()
	files := build.VirtualFilesystem{
		"/src/lib.ts":   "export const x = 2",
		"/src/main.tsx": "import './lib'; export default () => 1",
	}

	p.AnalyzeChanges(files)
	p.UpdateDependencyGraph("/src/lib.ts", files["/src/lib.ts"], nil, nil)
	p.UpdateDependencyGraph("/src/main.tsx", files["/src/main.tsx"], []string{"./lib"}, nil)
	p.CacheBundle("/src/lib.ts", files["/src/lib.ts"], "compiled-lib", cache.Entry{})
	p.CacheBundle("/src/main.tsx", files["/src/main.tsx"], "compiled-main", cache.Entry{})

	analysis := p.AnalyzeChanges(files)
	if analysis.RequiresFullRebuild {
		t.Fatalf("expected no full rebuild on unchanged second build, got reason %q", analysis.Reason)
	}
	skippable := toSet(analysis.Skippable)
	if !skippable["/src/lib.ts"] || !skippable["/src/main.tsx"] {
		t.Fatalf("expected both files skippable, got %v", analysis.Skippable)
	}
}

func TestPackageJSONChangeForcesFullRebuild(t *testing.T) {
	p := newPlanner()
	files := build.VirtualFilesystem{
		"/package.json": `{"dependencies": {"react": "18.0.0"}}`,
	}
	p.AnalyzeChanges(files)

	files["/package.json"] = `{"dependencies": {"react": "18.0.0", "vue": "3.0.0"}}`
	analysis := p.AnalyzeChanges(files)
	if !analysis.RequiresFullRebuild || analysis.Reason != "NPM dependencies changed" {
		t.Fatalf("expected NPM-change full rebuild, got %+v", analysis)
	}
}

func TestDeletedFileInvalidatesCacheAndGraph(t *testing.T) {
	p := newPlanner()
	files := build.VirtualFilesystem{"/src/a.ts": "1"}
	analysis := p.AnalyzeChanges(files)
	p.UpdateDependencyGraph("/src/a.ts", files["/src/a.ts"], nil, nil)
	p.CacheBundle("/src/a.ts", files["/src/a.ts"], "code", cache.Entry{})
	_ = analysis

	delete(files, "/src/a.ts")
	analysis2 := p.AnalyzeChanges(files)
	if len(analysis2.Deleted) != 1 || analysis2.Deleted[0] != "/src/a.ts" {
		t.Fatalf("expected a.ts reported deleted, got %v", analysis2.Deleted)
	}

	decisions := p.GetBuildDecisions(files, analysis2)
	found := false
	for _, d := range decisions {
		if d.Path == "/src/a.ts" {
			found = true
			if d.Reason != build.ReasonDeleted {
				t.Fatalf("expected deleted reason, got %v", d.Reason)
			}
		}
	}
	if !found {
		t.Fatal("expected a decision entry for the deleted path")
	}
	if p.cache.HasBundle("/src/a.ts", "1") {
		t.Fatal("expected the deleted file's cache entry to be invalidated")
	}
	if p.graph.Node("/src/a.ts") != nil {
		t.Fatal("expected the deleted file's graph node to be removed")
	}
}

func TestCompleteBuildComputesHitRate(t *testing.T) {
	p := newPlanner()
	m := p.CompleteBuild(2, 8, false)
	if m.CacheHitRate != 0.8 {
		t.Fatalf("expected hit rate 0.8, got %v", m.CacheHitRate)
	}
	if m.TimeSavedEstimateMs != 400 {
		t.Fatalf("expected 400ms time saved, got %v", m.TimeSavedEstimateMs)
	}
}
