// Package orchestrator implements the build orchestrator, the engine's
// single public build contract: it runs framework compilers, asks the
// incremental planner what needs rebuilding, and — only if something
// does — dispatches one bundle worker request, then merges the results.
package orchestrator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/cache"
	"github.com/anvildev/anvil/internal/compilers"
	"github.com/anvildev/anvil/internal/cssagg"
	"github.com/anvildev/anvil/internal/graph"
	"github.com/anvildev/anvil/internal/hashutil"
	"github.com/anvildev/anvil/internal/planner"
	"github.com/anvildev/anvil/internal/resolver"
	"github.com/anvildev/anvil/internal/worker"
)

const (
	phaseBundlingStart = 20
	phaseBundlingMid   = 60
	phaseBundlingLate  = 80
	phaseComplete      = 100
)

// Orchestrator wires the registry, aggregator, planner, and worker manager
// behind one Build entry point.
type Orchestrator struct {
	registry   *compilers.Registry
	aggregator *cssagg.Aggregator
	planner    *planner.Planner
	manager    *worker.Manager

	mu            sync.Mutex
	hasLastResult bool
	lastWorkerOut build.WorkerBuildResult
}

// compileOutcome is one path's compile result, collected by the concurrent
// compile fan-out and consumed by the sequential merge pass that follows it.
type compileOutcome struct {
	compiled bool
	result   compilers.CompileResult
	err      error
}

// compileOne runs the matching compiler (if any) for a single file. It holds
// no orchestrator state and does no side effects, so it is safe to run
// concurrently across paths — every effect it would otherwise cause
// (aggregator/graph/cache writes) is applied later by Build's sequential
// merge pass instead.
func compileOne(registry *compilers.Registry, path, source string) compileOutcome {
	compiler := registry.Lookup(path)
	if compiler == nil {
		return compileOutcome{compiled: false}
	}
	if err := compiler.Init(); err != nil {
		return compileOutcome{err: err}
	}
	result, err := compiler.Compile(source, path)
	if err != nil {
		return compileOutcome{err: err}
	}
	return compileOutcome{compiled: true, result: result}
}

// New wires a fresh Orchestrator from its four collaborating singletons.
func New(registry *compilers.Registry, aggregator *cssagg.Aggregator, pl *planner.Planner, mgr *worker.Manager) *Orchestrator {
	return &Orchestrator{registry: registry, aggregator: aggregator, planner: pl, manager: mgr}
}

// Build runs one full build: compile framework files, plan, bundle if
// anything changed, merge CSS, and stamp metrics.
func (o *Orchestrator) Build(opts build.BuildOptions) build.BuildOutput {
	start := time.Now()
	report := func(phase string, pct int) {
		if opts.OnProgress != nil {
			opts.OnProgress(phase, pct)
		}
	}

	if strings.HasSuffix(strings.ToLower(opts.Entry), ".html") {
		out, err := buildVanillaHTML(opts.Files, opts.Entry)
		if err != nil {
			out.Errors = append(out.Errors, build.Diagnostic{Message: err.Error()})
		}
		out.BuildTimeMs = time.Since(start).Milliseconds()
		out.Hash = hashutil.Hash(out.Code + out.CSS)
		report("complete", phaseComplete)
		if opts.OnPreviewReady != nil {
			opts.OnPreviewReady(out)
		}
		return out
	}

	paths := make([]string, 0, len(opts.Files))
	for p := range opts.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var diagnostics []build.Diagnostic
	var warnings []build.Diagnostic
	overrides := make(map[string]string, len(paths))

	o.manager.Init()
	report("bundling", phaseBundlingStart)

	// Compilation itself fans out across paths with errgroup, but every
	// effect that must land in a deterministic path order is applied
	// afterward in a single sequential pass over `results`, so concurrency
	// never reorders what the aggregator or planner observe.
	results := make([]compileOutcome, len(paths))
	var eg errgroup.Group
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			results[i] = compileOne(o.registry, path, opts.Files[path])
			return nil
		})
	}
	eg.Wait()

	for i, path := range paths {
		outcome := results[i]
		source := opts.Files[path]

		if outcome.err != nil {
			diagnostics = append(diagnostics, build.Diagnostic{File: path, Message: outcome.err.Error()})
			continue
		}
		if !outcome.compiled {
			imports := resolver.ExtractImports(source)
			resolved := resolveImports(opts.Files, path, imports.Imports)
			o.planner.UpdateDependencyGraph(path, source, resolved, imports.NPMDependencies)
			o.planner.CacheBundle(path, source, source, cache.Entry{
				Imports:         resolved,
				NPMDependencies: imports.NPMDependencies,
			})
			continue
		}

		result := outcome.result
		for _, w := range result.Warnings {
			warnings = append(warnings, build.Diagnostic{File: path, Message: w})
		}
		if result.Code != "" {
			overrides[path] = result.Code
		}
		if result.HasCSS {
			o.aggregator.AddCSS(path, result.CSS, cssEntryType(result.CSSMetadata.Type), result.CSSMetadata.ScopeID)
		}

		imports := resolver.ExtractImports(result.Code)
		resolved := resolveImports(opts.Files, path, imports.Imports)
		o.planner.UpdateDependencyGraph(path, source, resolved, imports.NPMDependencies)
		o.planner.CacheBundle(path, source, result.Code, cache.Entry{
			CSS:             result.CSS,
			Imports:         resolved,
			NPMDependencies: imports.NPMDependencies,
		})
	}

	effectiveFiles := make(build.VirtualFilesystem, len(opts.Files))
	for path, content := range opts.Files {
		if override, ok := overrides[path]; ok {
			effectiveFiles[path] = override
		} else {
			effectiveFiles[path] = content
		}
	}

	report("bundling", phaseBundlingMid)

	analysis := o.planner.AnalyzeChanges(opts.Files)
	decisions := o.planner.GetBuildDecisions(opts.Files, analysis)

	needsRebuild := analysis.RequiresFullRebuild
	for _, d := range decisions {
		if d.Rebuild {
			needsRebuild = true
			break
		}
	}

	report("bundling", phaseBundlingLate)

	var workerOut build.WorkerBuildResult
	if needsRebuild {
		family := detectBootstrapFamily(opts.Files, opts.Entry)
		bootstrap := assembleBootstrap(family, opts.Entry)

		define := map[string]string{}
		payload := build.BuildPayload{
			Files:          effectiveFiles,
			BootstrapEntry: bootstrap,
			EntryDir:       dirOf(opts.Entry),
			Minify:         opts.Minify,
			Sourcemap:      opts.Mode == build.ModeDevelopment,
			Mode:           opts.Mode,
			Define:         define,
			JSX:            opts.JSX,
		}

		result, err := o.manager.Build(payload)
		if err != nil {
			diagnostics = append(diagnostics, build.Diagnostic{Message: err.Error()})
		} else {
			workerOut = result
			o.mu.Lock()
			o.lastWorkerOut = result
			o.hasLastResult = true
			o.mu.Unlock()
		}

		rebuilt, cached := countDecisions(decisions)
		o.planner.CompleteBuild(rebuilt, cached, analysis.RequiresFullRebuild)
	} else {
		o.mu.Lock()
		if o.hasLastResult {
			workerOut = o.lastWorkerOut
		}
		o.mu.Unlock()
		_, cached := countDecisions(decisions)
		o.planner.CompleteBuild(0, cached, false)
	}

	diagnostics = append(diagnostics, workerOut.Errors...)
	warnings = append(warnings, workerOut.Warnings...)

	cssOut := o.aggregator.Aggregate()
	if workerOut.CSS != "" {
		cssOut = cssOut + "\n" + workerOut.CSS
	}

	report("complete", phaseComplete)

	out := build.BuildOutput{
		Code:        workerOut.Code,
		CSS:         cssOut,
		Errors:      diagnostics,
		Warnings:    warnings,
		Hash:        hashutil.Hash(workerOut.Code + cssOut),
		BuildTimeMs: time.Since(start).Milliseconds(),
	}
	if opts.OnPreviewReady != nil {
		opts.OnPreviewReady(out)
	}
	return out
}

// Reset clears the aggregator, planner, graph, cache, and worker state.
func (o *Orchestrator) Reset() {
	o.aggregator.Clear()
	o.planner.Reset()
	o.manager.Dispose()
	o.mu.Lock()
	o.hasLastResult = false
	o.lastWorkerOut = build.WorkerBuildResult{}
	o.mu.Unlock()
}

// Graph returns the underlying dependency graph for persistence by callers
// like internal/devharness.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.planner.Graph()
}

// GetStats reports planner metrics plus per-bucket cache and graph sizes.
func (o *Orchestrator) GetStats() build.Stats {
	return o.planner.GetStats()
}

func countDecisions(decisions []build.FileBuildDecision) (rebuilt, cached int) {
	for _, d := range decisions {
		switch {
		case d.Reason == build.ReasonDeleted:
			continue
		case d.Rebuild:
			rebuilt++
		default:
			cached++
		}
	}
	return rebuilt, cached
}

func cssEntryType(t string) cssagg.EntryType {
	switch t {
	case "tailwind":
		return cssagg.TypeTailwind
	case "component":
		return cssagg.TypeComponent
	default:
		return cssagg.TypeBase
	}
}

// resolveImports maps extracted intra-project specifiers to absolute
// virtual-filesystem paths so the dependency graph's edges line up with the
// planner's path-keyed diffing. A specifier that doesn't resolve (target
// not in the file set yet) is kept verbatim; the graph records it as a
// placeholder node.
func resolveImports(files build.VirtualFilesystem, importer string, specs []string) []string {
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		if resolved, ok := resolver.ResolveImportPath(files, importer, spec); ok {
			out = append(out, resolved)
			continue
		}
		out = append(out, spec)
	}
	return out
}

func dirOf(entry string) string {
	idx := strings.LastIndexByte(entry, '/')
	if idx <= 0 {
		return "/"
	}
	return entry[:idx]
}
