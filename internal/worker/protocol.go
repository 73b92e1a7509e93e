// Package worker implements the bundle worker and its manager: a build
// execution context isolated from the orchestrator's call path, reached
// only through a typed request/response protocol so the caller never
// touches esbuild state directly.
//
// A browser host would ship this as a Web Worker speaking postMessage;
// there is no such isolation boundary in a single Go process, but the
// message shapes and correlation-id discipline are kept intact so the
// request/response contract holds regardless of host.
package worker

import "github.com/anvildev/anvil/build"

// RequestType enumerates the worker's inbound message kinds.
type RequestType string

const (
	RequestInit    RequestType = "init"
	RequestBuild   RequestType = "build"
	RequestDispose RequestType = "dispose"
)

// ResponseType enumerates the worker's outbound message kinds.
type ResponseType string

const (
	ResponseInitDone    ResponseType = "init_done"
	ResponseBuildResult ResponseType = "build_result"
	ResponseBuildError  ResponseType = "build_error"
	ResponseError       ResponseType = "error"
	ResponseReady       ResponseType = "ready"
	ResponseDisposed    ResponseType = "disposed"
)

// Request is one correlated inbound message.
type Request struct {
	ID      string
	Type    RequestType
	Payload build.BuildPayload // only populated for RequestBuild
}

// Response is one correlated outbound message. ID is echoed from the
// triggering Request except for ResponseReady, which is posted unsolicited
// once the worker loads.
type Response struct {
	ID     string
	Type   ResponseType
	Result build.WorkerBuildResult // only populated for ResponseBuildResult
	Error  string                  // populated for ResponseBuildError/ResponseError
}
