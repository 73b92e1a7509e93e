// Package anvil implements an incremental, in-process build engine: given a
// virtual filesystem of TypeScript/JSX/Vue/Tailwind/HTML sources, it produces
// a runnable preview bundle without touching a real filesystem or shelling
// out to a subprocess. The heavy lifting — dependency tracking, bundle
// caching, framework compilation, and module resolution — lives under
// internal/; this package exposes the single Engine entry point.
//
// The underlying data model is declared in the build package; the aliases
// here let callers work entirely against this package.
package anvil

import "github.com/anvildev/anvil/build"

type (
	// VirtualFilesystem maps an absolute, normalized path (leading slash,
	// forward slashes) to file text. It is supplied fresh by the caller on
	// every build request and is never mutated or persisted by the engine.
	VirtualFilesystem = build.VirtualFilesystem

	// JSXMode selects how esbuild should handle JSX syntax.
	JSXMode = build.JSXMode

	// BuildMode distinguishes a development build from a production preview
	// build. It sets process.env.NODE_ENV, and a development build carries an
	// inline sourcemap; minification is controlled separately by
	// BuildOptions.Minify.
	BuildMode = build.BuildMode

	// JSXConfig carries the JSX transform options threaded through to
	// esbuild.
	JSXConfig = build.JSXConfig

	// BuildOptions is the input to a single Engine.Build call.
	BuildOptions = build.BuildOptions

	// Diagnostic is a single compiler/resolver/worker error or warning.
	Diagnostic = build.Diagnostic

	// BuildOutput is the result of a single build.
	BuildOutput = build.BuildOutput

	// FrameworkCompiler is the engine's extension point: implement it and
	// register with WithCompiler to pre-process additional file types.
	FrameworkCompiler = build.FrameworkCompiler

	// CompileResult is one FrameworkCompiler invocation's output.
	CompileResult = build.CompileResult

	// CSSMetadata describes CSS emitted alongside a compiled file.
	CSSMetadata = build.CSSMetadata

	// Stats is the Engine.GetStats() return shape.
	Stats = build.Stats

	// CacheStats, CacheBucketStats, GraphStats, and MetricsStats are the
	// Stats sub-reports.
	CacheStats       = build.CacheStats
	CacheBucketStats = build.CacheBucketStats
	GraphStats       = build.GraphStats
	MetricsStats     = build.MetricsStats
)

const (
	JSXTransform = build.JSXTransform
	JSXAutomatic = build.JSXAutomatic

	ModeDevelopment = build.ModeDevelopment
	ModeProduction  = build.ModeProduction
)
