package anvil

import (
	"log/slog"

	"github.com/anvildev/anvil/internal/cache"
	"github.com/anvildev/anvil/internal/compilers"
	"github.com/anvildev/anvil/internal/config"
	"github.com/anvildev/anvil/internal/cssagg"
	"github.com/anvildev/anvil/internal/graph"
	"github.com/anvildev/anvil/internal/obslog"
	"github.com/anvildev/anvil/internal/orchestrator"
	"github.com/anvildev/anvil/internal/planner"
	"github.com/anvildev/anvil/internal/worker"
)

// compile-time check that the built-in compilers satisfy the public
// contract.
var (
	_ FrameworkCompiler = (*compilers.VueCompiler)(nil)
	_ FrameworkCompiler = (*compilers.TailwindCompiler)(nil)
)

// Engine is the build engine's single entry point. It owns the dependency
// graph, bundle cache, CSS aggregator, and worker manager so callers never
// touch them directly.
type Engine struct {
	orchestrator *orchestrator.Orchestrator
	log          *slog.Logger
}

// EngineOption customizes Engine construction. With no options, the engine
// starts from a fresh, empty dependency graph and the built-in compilers.
type EngineOption func(*engineConfig)

type engineConfig struct {
	graph          *graph.Graph
	extraCompilers []FrameworkCompiler
}

// WithGraph seeds the Engine's dependency graph from a previously
// persisted snapshot (see internal/devharness), instead of starting
// empty. Used by the dev harness to resume across process restarts.
func WithGraph(g *graph.Graph) EngineOption {
	return func(c *engineConfig) {
		c.graph = g
	}
}

// WithCompiler registers an additional framework compiler after the
// built-in Vue and Tailwind ones. The registry consults compilers in
// registration order, so a custom compiler claiming .vue or .css never
// shadows the built-ins.
func WithCompiler(c FrameworkCompiler) EngineOption {
	return func(ec *engineConfig) {
		ec.extraCompilers = append(ec.extraCompilers, c)
	}
}

// New constructs an Engine with the built-in framework compilers registered
// (Vue SFC and Tailwind) and configuration sourced from cfg.
func New(cfg config.Config, opts ...EngineOption) *Engine {
	log := obslog.New("anvil")

	ec := &engineConfig{}
	for _, opt := range opts {
		opt(ec)
	}

	registry := compilers.NewRegistry()
	registry.Register(compilers.NewVueCompiler())
	registry.Register(compilers.NewTailwindCompiler(nil))
	for _, c := range ec.extraCompilers {
		registry.Register(c)
	}

	g := ec.graph
	if g == nil {
		g = graph.New()
	}
	jsCache := cache.New(cache.Options{
		MaxEntries: cfg.CacheMaxEntries,
		MaxMemory:  cfg.CacheMaxMemory,
		TTL:        cfg.CacheTTL,
	})
	cssCache := cache.New(cache.Options{
		MaxEntries: cfg.CacheMaxEntries,
		MaxMemory:  cfg.CacheMaxMemory,
		TTL:        cfg.CacheTTL,
	})
	agg := cssagg.New()
	pl := planner.New(g, jsCache, cssCache)
	mgr := worker.NewManager(cfg.HTTPTimeout, cfg.CDNBaseURL, cfg.HTTPMaxRetries)

	log.Info("engine initialized", "cacheMaxEntries", cfg.CacheMaxEntries, "cdnBaseURL", cfg.CDNBaseURL)

	return &Engine{orchestrator: orchestrator.New(registry, agg, pl, mgr), log: log}
}

// NewDefault constructs an Engine using config.Default().
func NewDefault() *Engine {
	return New(config.Default())
}

// Build runs a single build of the supplied virtual filesystem.
func (e *Engine) Build(opts BuildOptions) BuildOutput {
	out := e.orchestrator.Build(opts)
	e.log.Info("build complete", "entry", opts.Entry, "errors", len(out.Errors), "buildTimeMs", out.BuildTimeMs)
	return out
}

// Reset clears the dependency graph, bundle cache, CSS aggregator, and
// planner state.
func (e *Engine) Reset() {
	e.orchestrator.Reset()
	e.log.Info("engine reset")
}

// GetStats reports engine metrics, cache, and graph sizes.
func (e *Engine) GetStats() Stats {
	return e.orchestrator.GetStats()
}

// Graph returns the engine's dependency graph, for callers (the dev
// harness) that persist it across process restarts.
func (e *Engine) Graph() *graph.Graph {
	return e.orchestrator.Graph()
}
