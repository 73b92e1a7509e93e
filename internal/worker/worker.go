package worker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/anvildev/anvil/build"
	"github.com/anvildev/anvil/internal/resolver"
)

// envelope pairs one request with the channel its response flows back on.
type envelope struct {
	req    Request
	respCh chan Response
}

// Worker is a single serving goroutine owning an esbuild invocation path
// and the CDN plugin's module cache. Requests flow over a channel; each
// response is correlated back to its sender by the request id. There is no
// incremental-rebuild state between builds — the bootstrap entry differs
// on every request, so each build is one stateless esbuild.Build call —
// but the CDN module cache lives for the serving goroutine's lifetime and
// dies with it on dispose.
type Worker struct {
	cdnTimeout    time.Duration
	cdnBaseURL    string
	cdnMaxRetries int

	mu    sync.Mutex
	reqCh chan envelope
	done  chan struct{}
}

// New returns an uninitialized Worker. Call Init before Build. cdnTimeout
// bounds each esm.sh fetch the CDN plugin performs; cdnBaseURL and
// cdnMaxRetries are threaded straight through to resolver.NewCDNPlugin
// (config.Config's CDNBaseURL/HTTPMaxRetries).
func New(cdnTimeout time.Duration, cdnBaseURL string, cdnMaxRetries int) *Worker {
	return &Worker{cdnTimeout: cdnTimeout, cdnBaseURL: cdnBaseURL, cdnMaxRetries: cdnMaxRetries}
}

// Init starts the serving goroutine and performs the init handshake,
// waiting for the unsolicited ready message and then an init_done. Calling
// Init on a running worker is a no-op; calling it after Dispose starts a
// fresh goroutine with a cold CDN module cache.
func (w *Worker) Init() {
	w.mu.Lock()
	if w.reqCh != nil {
		w.mu.Unlock()
		return
	}
	reqCh := make(chan envelope)
	done := make(chan struct{})
	readyCh := make(chan Response, 1)
	w.reqCh, w.done = reqCh, done
	w.mu.Unlock()

	go w.serve(reqCh, done, readyCh)
	<-readyCh
	w.Send(Request{ID: "init", Type: RequestInit})
}

// Send dispatches one protocol message to the serving goroutine and blocks
// for its correlated response. A worker that was never initialized, or
// whose goroutine has exited, answers with a ResponseError instead of
// blocking forever.
func (w *Worker) Send(req Request) Response {
	w.mu.Lock()
	reqCh, done := w.reqCh, w.done
	w.mu.Unlock()

	if reqCh == nil {
		return Response{ID: req.ID, Type: ResponseError, Error: "worker not initialized"}
	}

	respCh := make(chan Response, 1)
	select {
	case reqCh <- envelope{req: req, respCh: respCh}:
		return <-respCh
	case <-done:
		return Response{ID: req.ID, Type: ResponseError, Error: "worker disposed"}
	}
}

// Build is the convenience wrapper around Send for build requests: protocol
// errors come back as diagnostics on the result rather than a separate
// channel callers must check.
func (w *Worker) Build(payload build.BuildPayload) build.WorkerBuildResult {
	resp := w.Send(Request{ID: "build", Type: RequestBuild, Payload: payload})
	switch resp.Type {
	case ResponseBuildResult:
		return resp.Result
	default:
		return build.WorkerBuildResult{
			Errors: []build.Diagnostic{{Message: resp.Error}},
		}
	}
}

// Dispose sends the dispose message, which tears down the serving goroutine
// and its CDN module cache, and waits for the acknowledgement.
func (w *Worker) Dispose() {
	w.mu.Lock()
	reqCh, done := w.reqCh, w.done
	w.reqCh, w.done = nil, nil
	w.mu.Unlock()

	if reqCh == nil {
		return
	}

	respCh := make(chan Response, 1)
	select {
	case reqCh <- envelope{req: Request{ID: "dispose", Type: RequestDispose}, respCh: respCh}:
		<-respCh
	case <-done:
	}
}

// serve is the worker loop: it posts ready once, then answers requests
// until a dispose arrives. A panic inside a handler is converted into a
// ResponseBuildError for a build request, or a ResponseError otherwise, so
// nothing escapes the worker silently.
func (w *Worker) serve(reqCh chan envelope, done chan struct{}, readyCh chan Response) {
	cdn := resolver.NewCDNPlugin(w.cdnTimeout, w.cdnBaseURL, w.cdnMaxRetries)
	readyCh <- Response{Type: ResponseReady}

	for env := range reqCh {
		env.respCh <- w.safeHandle(cdn, env.req)
		if env.req.Type == RequestDispose {
			close(done)
			return
		}
	}
}

func (w *Worker) safeHandle(cdn *resolver.CDNPlugin, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			kind := ResponseError
			if req.Type == RequestBuild {
				kind = ResponseBuildError
			}
			resp = Response{ID: req.ID, Type: kind, Error: fmt.Sprint(r)}
		}
	}()
	return w.handle(cdn, req)
}

func (w *Worker) handle(cdn *resolver.CDNPlugin, req Request) Response {
	switch req.Type {
	case RequestInit:
		return Response{ID: req.ID, Type: ResponseInitDone}
	case RequestBuild:
		return Response{ID: req.ID, Type: ResponseBuildResult, Result: w.bundle(cdn, req.Payload)}
	case RequestDispose:
		return Response{ID: req.ID, Type: ResponseDisposed}
	}
	return Response{ID: req.ID, Type: ResponseError, Error: fmt.Sprintf("unknown request type %q", req.Type)}
}

// bundle runs one esbuild invocation: a synthetic stdin entry carrying the
// bootstrap code, the virtual-fs and esm-sh plugins in that order,
// write=false, logLevel=warning.
func (w *Worker) bundle(cdn *resolver.CDNPlugin, payload build.BuildPayload) build.WorkerBuildResult {
	start := time.Now()

	define := make(map[string]string, len(payload.Define)+1)
	for k, v := range payload.Define {
		define[k] = v
	}
	if _, ok := define["process.env.NODE_ENV"]; !ok {
		if payload.Mode == build.ModeProduction {
			define["process.env.NODE_ENV"] = `"production"`
		} else {
			define["process.env.NODE_ENV"] = `"development"`
		}
	}

	sourcemap := esbuild.SourceMapNone
	if payload.Sourcemap {
		sourcemap = esbuild.SourceMapInline
	}

	result := esbuild.Build(esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   payload.BootstrapEntry,
			ResolveDir: payload.EntryDir,
			Sourcefile: "/__bootstrap__.tsx",
			Loader:     esbuild.LoaderTSX,
		},
		Bundle:            true,
		Format:            esbuild.FormatESModule,
		Target:            esbuild.ES2020,
		Write:             false,
		LogLevel:          esbuild.LogLevelWarning,
		MinifyWhitespace:  payload.Minify,
		MinifyIdentifiers: payload.Minify,
		MinifySyntax:      payload.Minify,
		Sourcemap:         sourcemap,
		Define:            define,
		JSX:               jsxModeFor(payload.JSX),
		JSXImportSource:   payload.JSX.JSXImportSource,
		Plugins: []esbuild.Plugin{
			resolver.VirtualFSPlugin(payload.Files),
			cdn.Plugin(),
		},
	})

	out := build.WorkerBuildResult{
		Errors:      mapMessages(result.Errors),
		Warnings:    mapMessages(result.Warnings),
		BuildTimeMs: time.Since(start).Milliseconds(),
	}

	for _, f := range result.OutputFiles {
		switch {
		case out.Code == "" && (strings.HasSuffix(f.Path, ".js") || strings.Contains(f.Path, "stdin") || f.Path == "<stdout>"):
			out.Code = string(f.Contents)
		case out.CSS == "" && strings.HasSuffix(f.Path, ".css"):
			out.CSS = string(f.Contents)
		}
	}

	return out
}

func jsxModeFor(cfg build.JSXConfig) esbuild.JSX {
	if cfg.JSX == build.JSXAutomatic {
		return esbuild.JSXAutomatic
	}
	return esbuild.JSXTransform
}

func mapMessages(msgs []esbuild.Message) []build.Diagnostic {
	out := make([]build.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := build.Diagnostic{Message: m.Text}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
			d.Snippet = m.Location.LineText
		}
		out = append(out, d)
	}
	return out
}
