// Package build declares the build engine's shared data model: the virtual
// filesystem, build options and outputs, dependency-graph and cache shapes,
// the planner's analysis types, the worker payload, and the framework
// compiler contract. It has no dependencies beyond the standard library so
// every engine package can import it freely.
package build

import "time"

// VirtualFilesystem maps an absolute, normalized path (leading slash,
// forward slashes) to file text. It is supplied fresh by the caller on every
// build request and is never mutated or persisted by the engine.
type VirtualFilesystem map[string]string

// JSXMode selects how esbuild should handle JSX syntax.
type JSXMode string

const (
	JSXTransform JSXMode = "transform"
	JSXAutomatic JSXMode = "automatic"
)

// BuildMode distinguishes a development build from a production preview
// build. It sets process.env.NODE_ENV, and a development build carries an
// inline sourcemap; minification is controlled separately by
// BuildOptions.Minify.
type BuildMode string

const (
	ModeDevelopment BuildMode = "development"
	ModeProduction  BuildMode = "production"
)

// JSXConfig carries the JSX transform options threaded through to esbuild.
type JSXConfig struct {
	JSX             JSXMode
	JSXImportSource string
}

// BuildOptions is the input to a single Engine.Build call.
type BuildOptions struct {
	Files  VirtualFilesystem
	Entry  string
	Mode   BuildMode
	Minify bool
	JSX    JSXConfig

	// OnProgress, when non-nil, is invoked at fixed phases of the build:
	// bundling(20) -> bundling(60) -> bundling(80) -> complete(100). An
	// HTML entry takes the inlining path and reports only complete(100).
	OnProgress func(phase string, percent int)

	// OnPreviewReady, when non-nil, receives the finished output at the
	// complete phase, just before Build returns it.
	OnPreviewReady func(BuildOutput)
}

// Diagnostic is a single compiler/resolver/worker error or warning.
type Diagnostic struct {
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// BuildOutput is the result of a single build.
type BuildOutput struct {
	Code        string
	CSS         string
	Errors      []Diagnostic
	Warnings    []Diagnostic
	Hash        string
	BuildTimeMs int64
}

// FileNode is a vertex of the dependency graph.
type FileNode struct {
	Path            string
	Imports         map[string]struct{}
	ImportedBy      map[string]struct{}
	NPMDependencies map[string]struct{}
	ContentHash     string
	LastModified    time.Time
}

// CSSEntryType classifies the origin of a CSS fragment for aggregation
// ordering: base stylesheets first, then Tailwind output, then per-component
// styles.
type CSSEntryType int

const (
	CSSTypeBase CSSEntryType = iota
	CSSTypeTailwind
	CSSTypeComponent
)

// CSSEntry is one aggregated CSS fragment, keyed by its normalized source
// path.
type CSSEntry struct {
	Source  string
	CSS     string
	Type    CSSEntryType
	ScopeID string
	Order   int
}

// CachedBundle is a compiled artifact keyed by (path, contentHash) in the
// bundle cache.
type CachedBundle struct {
	Code            string
	CSS             string
	SourceMap       string
	Imports         []string
	NPMDependencies []string
	InsertedAt      time.Time
	LastAccessed    time.Time
	ByteSize        int
}

// ChangeAnalysis is the incremental planner's diff of the current file set
// against the previous build.
type ChangeAnalysis struct {
	Added               []string
	Modified            []string
	Deleted             []string
	Skippable           []string
	Affected            map[string]struct{}
	RequiresFullRebuild bool
	Reason              string
}

// BuildDecisionReason enumerates why a given file was or wasn't rebuilt.
type BuildDecisionReason string

const (
	ReasonNew               BuildDecisionReason = "new"
	ReasonChanged           BuildDecisionReason = "changed"
	ReasonDependencyChanged BuildDecisionReason = "dependency-changed"
	ReasonCached            BuildDecisionReason = "cached"
	ReasonDeleted           BuildDecisionReason = "deleted"
	ReasonFullRebuild       BuildDecisionReason = "full-rebuild"
)

// FileBuildDecision is the planner's per-file verdict: rebuild, serve from
// cache, or drop.
type FileBuildDecision struct {
	Path       string
	Rebuild    bool
	Reason     BuildDecisionReason
	CachedCode string
	CachedCSS  string
	HasCached  bool
}

// BuildPayload is what the orchestrator sends to the bundle worker.
type BuildPayload struct {
	Files          VirtualFilesystem
	BootstrapEntry string
	EntryDir       string
	Minify         bool
	Sourcemap      bool
	Mode           BuildMode
	Define         map[string]string
	JSX            JSXConfig
}

// WorkerBuildResult is the bundle worker's raw output before the
// orchestrator merges it with aggregated CSS.
type WorkerBuildResult struct {
	Code        string
	CSS         string
	Errors      []Diagnostic
	Warnings    []Diagnostic
	BuildTimeMs int64
}

// CacheBucketStats reports hit/miss counters for one cache bucket
// (JS bundles or compiled CSS).
type CacheBucketStats struct {
	Entries int
	Hits    int
	Misses  int
}

// CacheStats aggregates both cache buckets.
type CacheStats struct {
	JS  CacheBucketStats
	CSS CacheBucketStats
}

// GraphStats summarizes dependency-graph size.
type GraphStats struct {
	Nodes int
	Edges int
}

// MetricsStats carries the planner's incremental-build metrics from the
// most recent completed build.
type MetricsStats struct {
	RebuiltCount        int
	CachedCount         int
	CacheHitRate        float64
	TimeSavedEstimateMs int64
	WasFullRebuild      bool
}

// Stats is the Engine.GetStats() return shape.
type Stats struct {
	Metrics MetricsStats
	Cache   CacheStats
	Graph   GraphStats
}

// CSSMetadata describes CSS emitted alongside a compiled file, destined
// for the CSS aggregator.
type CSSMetadata struct {
	Type    string // "base" | "tailwind" | "component"
	ScopeID string
}

// CompileResult is one compiler invocation's output.
type CompileResult struct {
	Code        string
	CSS         string
	HasCSS      bool
	Warnings    []string
	CSSMetadata CSSMetadata
}

// FrameworkCompiler is the engine's sole polymorphic surface: a pluggable
// transformer that pre-processes source files into bundler-consumable
// outputs and emits CSS metadata. Register additional implementations with
// anvil.WithCompiler.
type FrameworkCompiler interface {
	Name() string
	Extensions() []string
	CanHandle(path string) bool

	// Init performs any lazy, idempotent one-time setup (e.g. loading a
	// parser). Subsequent calls after the first successful one are no-ops.
	Init() error

	Compile(source, path string) (CompileResult, error)
}
