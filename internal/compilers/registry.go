// Package compilers implements the framework compiler registry: pluggable
// transformers that pre-process source files into bundler-consumable
// outputs and emit CSS metadata. The compiler contract itself is declared
// in the build package so callers outside this module can implement it;
// the aliases here keep this package self-contained to read. The registry
// is a small ordered slice dispatched by extension.
package compilers

import "github.com/anvildev/anvil/build"

type (
	// CSSMetadata describes CSS emitted alongside a compiled file, destined
	// for the CSS aggregator.
	CSSMetadata = build.CSSMetadata

	// CompileResult is one compiler invocation's output.
	CompileResult = build.CompileResult

	// FrameworkCompiler is the sole polymorphic surface of the build
	// engine. Extensions are matched in registration order by CanHandle;
	// the first compiler to claim a path wins.
	FrameworkCompiler = build.FrameworkCompiler
)

// Registry dispatches compilation by extension, consulting compilers in
// registration order.
type Registry struct {
	compilers []FrameworkCompiler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a compiler to the dispatch order.
func (r *Registry) Register(c FrameworkCompiler) {
	r.compilers = append(r.compilers, c)
}

// Lookup returns the first compiler whose CanHandle(path) is true, or nil.
func (r *Registry) Lookup(path string) FrameworkCompiler {
	for _, c := range r.compilers {
		if c.CanHandle(path) {
			return c
		}
	}
	return nil
}

// Compilers returns the registered compilers in dispatch order.
func (r *Registry) Compilers() []FrameworkCompiler {
	return r.compilers
}
