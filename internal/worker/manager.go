package worker

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/hashutil"
)

// ErrDisposed is Build's error when, after the worker answers, the manager
// is found disposed or its generation has changed. Build and Dispose take
// the same mutex, so a Dispose
// waits for an in-flight Build to finish, and Build calls queued behind a
// Dispose are not rejected: they bring up a fresh worker.
var ErrDisposed = errors.New("worker manager: disposed")

// Manager owns at most one Worker. Build holds mu for the full duration of
// a build, including the underlying esbuild.Build call, so concurrent
// callers are genuinely serialized one-at-a-time through the worker rather
// than merely having their bookkeeping serialized around a concurrent call;
// esbuild has no mid-build cancel, so a superseded request still runs to
// completion. A request whose payload is identical to the immediately
// preceding one short-circuits on the memoized last result instead of
// re-invoking esbuild.
type Manager struct {
	httpTimeout   time.Duration
	cdnBaseURL    string
	cdnMaxRetries int

	idSeq atomic.Uint64

	mu           sync.Mutex
	w            *Worker
	initialized  bool
	disposed     bool
	generation   uint64
	lastKey      string
	lastResult   build.WorkerBuildResult
	lastHasValue bool
}

// NewManager returns a manager wrapping a fresh Worker. cdnBaseURL and
// cdnMaxRetries pass straight through to the Worker's CDN plugin
// (config.Config's CDNBaseURL/HTTPMaxRetries).
func NewManager(httpTimeout time.Duration, cdnBaseURL string, cdnMaxRetries int) *Manager {
	return &Manager{
		httpTimeout:   httpTimeout,
		cdnBaseURL:    cdnBaseURL,
		cdnMaxRetries: cdnMaxRetries,
		w:             New(httpTimeout, cdnBaseURL, cdnMaxRetries),
	}
}

// IsSupported reports whether background execution is available. In this
// native Go host it always is — there is no environment without goroutine
// support the way a browser might lack Worker — kept as a method so callers
// written against the worker contract still compile unchanged.
func (m *Manager) IsSupported() bool { return true }

// Init is idempotent: concurrent callers converge on the same underlying
// worker initialization. After a Dispose, the next Init (or Build) brings
// up a fresh worker.
func (m *Manager) Init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked()
}

func (m *Manager) initLocked() {
	if m.disposed {
		m.w = New(m.httpTimeout, m.cdnBaseURL, m.cdnMaxRetries)
		m.disposed = false
		m.initialized = false
		m.lastHasValue = false
	}
	if !m.initialized {
		m.w.Init()
		m.initialized = true
	}
}

// NextID generates a unique correlation id for a caller's build request.
func (m *Manager) NextID() string {
	return "build-" + strconv.FormatUint(m.idSeq.Add(1), 36)
}

// Build serializes one build through the owned worker, re-initializing it
// first if a Dispose intervened. A request whose payload is identical to
// the immediately preceding one (same generation, same content key) returns
// the cached result without re-invoking esbuild. mu is held across the
// esbuild.Build call itself, so two goroutines never invoke the worker
// concurrently.
func (m *Manager) Build(payload build.BuildPayload) (build.WorkerBuildResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initLocked()

	gen := m.generation
	key := payloadKey(payload)
	if m.lastHasValue && m.lastKey == key {
		return m.lastResult, nil
	}

	req := Request{ID: m.NextID(), Type: RequestBuild, Payload: payload}
	resp := m.w.Send(req)

	var result build.WorkerBuildResult
	switch resp.Type {
	case ResponseBuildResult:
		result = resp.Result
	default:
		result = build.WorkerBuildResult{Errors: []build.Diagnostic{{Message: resp.Error}}}
	}

	if m.disposed || m.generation != gen {
		return build.WorkerBuildResult{}, ErrDisposed
	}
	m.lastKey = key
	m.lastResult = result
	m.lastHasValue = true
	return result, nil
}

// Dispose terminates the worker, bumps the generation, and drops the
// memoized last result. It takes the same mutex as Build, so it waits for
// an in-flight Build to finish and does not cancel Build calls still
// queued. The next Init or Build brings up a fresh worker with a cold CDN
// cache.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
	m.initialized = false
	m.generation++
	m.lastHasValue = false
	m.w.Dispose()
}

// payloadKey builds a deterministic content key for coalescing: the sorted
// file contents plus the bootstrap entry and the flags that affect output.
func payloadKey(p build.BuildPayload) string {
	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		b.WriteString(path)
		b.WriteByte('\x00')
		b.WriteString(p.Files[path])
		b.WriteByte('\x00')
	}
	b.WriteString(p.BootstrapEntry)
	b.WriteByte('\x00')
	b.WriteString(p.EntryDir)
	b.WriteByte('\x00')
	b.WriteString(string(p.Mode))
	if p.Minify {
		b.WriteString(":minify")
	}
	if p.Sourcemap {
		b.WriteString(":sourcemap")
	}

	return hashutil.Hash(b.String())
}
