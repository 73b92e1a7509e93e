package orchestrator

import (
	"testing"
	"time"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/cache"
	"github.com/anvildev/anvil/internal/compilers"
	"github.com/anvildev/anvil/internal/cssagg"
	"github.com/anvildev/anvil/internal/graph"
	"github.com/anvildev/anvil/internal/planner"
	"github.com/anvildev/anvil/internal/worker"
)

func newTestOrchestrator() *Orchestrator {
	registry := compilers.NewRegistry()
	registry.Register(compilers.NewVueCompiler())
	registry.Register(compilers.NewTailwindCompiler(nil))

	agg := cssagg.New()
	pl := planner.New(graph.New(), cache.New(cache.Options{}), cache.New(cache.Options{}))
	mgr := worker.NewManager(5*time.Second, "", 0)

	return New(registry, agg, pl, mgr)
}

func TestBuildFirstRunTriggersWorker(t *testing.T) {
	o := newTestOrchestrator()
	opts := build.BuildOptions{
		Files: build.VirtualFilesystem{
			"/src/main.ts": "export const answer = 41 + 1;\nconsole.log(answer);\n",
		},
		Entry: "/src/main.ts",
		Mode:  build.ModeDevelopment,
	}

	out := o.Build(opts)
	if out.Code == "" {
		t.Fatalf("expected non-empty bundle code, got errors %+v", out.Errors)
	}
	if out.Hash == "" {
		t.Fatal("expected a non-empty hash")
	}
}

func TestBuildSecondIdenticalRunSkipsWorker(t *testing.T) {
	o := newTestOrchestrator()
	opts := build.BuildOptions{
		Files: build.VirtualFilesystem{
			"/src/main.ts": "export const answer = 41 + 1;\nconsole.log(answer);\n",
		},
		Entry: "/src/main.ts",
		Mode:  build.ModeDevelopment,
	}

	first := o.Build(opts)
	second := o.Build(opts)

	if first.Code != second.Code {
		t.Fatalf("expected identical rebuild to reuse prior code, got %q vs %q", first.Code, second.Code)
	}
}

func TestBuildVanillaHTMLInlinesAssets(t *testing.T) {
	o := newTestOrchestrator()
	opts := build.BuildOptions{
		Files: build.VirtualFilesystem{
			"/index.html": `<html><head><link rel="stylesheet" href="/style.css"></head><body><script src="/app.js"></script></body></html>`,
			"/style.css":  "body { margin: 0; }",
			"/app.js":     "console.log('hi');",
		},
		Entry: "/index.html",
		Mode:  build.ModeDevelopment,
	}

	out := o.Build(opts)
	if out.Code == "" {
		t.Fatal("expected non-empty inlined document")
	}
}

func TestResetClearsState(t *testing.T) {
	o := newTestOrchestrator()
	opts := build.BuildOptions{
		Files: build.VirtualFilesystem{"/src/main.ts": "export const answer = 42;\n"},
		Entry: "/src/main.ts",
	}
	o.Build(opts)
	o.Reset()

	if o.hasLastResult {
		t.Fatal("expected Reset to clear cached worker result")
	}
}

func TestBuildInvokesProgressAndPreviewCallbacks(t *testing.T) {
	o := newTestOrchestrator()

	var phases []int
	var previewHash string
	out := o.Build(build.BuildOptions{
		Files: build.VirtualFilesystem{"/src/main.ts": "export const answer = 42;\n"},
		Entry: "/src/main.ts",
		Mode:  build.ModeDevelopment,
		OnProgress: func(phase string, percent int) {
			phases = append(phases, percent)
		},
		OnPreviewReady: func(res build.BuildOutput) {
			previewHash = res.Hash
		},
	})

	want := []int{20, 60, 80, 100}
	if len(phases) != len(want) {
		t.Fatalf("expected %d progress callbacks, got %v", len(want), phases)
	}
	for i, pct := range want {
		if phases[i] != pct {
			t.Fatalf("expected phase %d at index %d, got %v", pct, i, phases)
		}
	}
	if previewHash == "" || previewHash != out.Hash {
		t.Fatalf("expected preview callback to see the final output hash %q, got %q", out.Hash, previewHash)
	}
}
