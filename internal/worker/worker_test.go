package worker

import (
	"testing"
	"time"

	"github.com/anvildev/anvil/build"
)

func TestWorkerBuildBeforeInitReturnsError(t *testing.T) {
	w := New(5*time.Second, "", 0)
	out := w.Build(build.BuildPayload{
		Files:          build.VirtualFilesystem{"/src/main.ts": "export const x = 1;\n"},
		BootstrapEntry: "import '/src/main.ts';\n",
		EntryDir:       "/",
	})
	if len(out.Errors) == 0 {
		t.Fatal("expected an error when Build is called before Init")
	}
}

func TestWorkerBuildBundlesVirtualEntry(t *testing.T) {
	w := New(5*time.Second, "", 0)
	w.Init()
	defer w.Dispose()

	out := w.Build(build.BuildPayload{
		Files: build.VirtualFilesystem{
			"/src/main.ts": "export const x = 1;\nconsole.log(x);\n",
		},
		BootstrapEntry: "import '/src/main.ts';\n",
		EntryDir:       "/",
		Mode:           build.ModeDevelopment,
	})

	if len(out.Errors) != 0 {
		t.Fatalf("unexpected build errors: %+v", out.Errors)
	}
	if out.Code == "" {
		t.Fatal("expected non-empty bundled code")
	}
}

func TestWorkerDisposeThenBuildReturnsError(t *testing.T) {
	w := New(5*time.Second, "", 0)
	w.Init()
	w.Dispose()

	out := w.Build(build.BuildPayload{
		Files:          build.VirtualFilesystem{"/src/main.ts": "export const x = 1;\n"},
		BootstrapEntry: "import '/src/main.ts';\n",
		EntryDir:       "/",
	})
	if len(out.Errors) == 0 {
		t.Fatal("expected an error when Build is called after Dispose")
	}
}

func TestWorkerReinitAfterDisposeRecovers(t *testing.T) {
	w := New(5*time.Second, "", 0)
	w.Init()
	w.Dispose()
	w.Init()
	defer w.Dispose()

	out := w.Build(build.BuildPayload{
		Files:          build.VirtualFilesystem{"/src/main.ts": "export const x = 1;\n"},
		BootstrapEntry: "import '/src/main.ts';\n",
		EntryDir:       "/",
	})
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected build errors after reinit: %+v", out.Errors)
	}
}

func TestWorkerSendEchoesCorrelationID(t *testing.T) {
	w := New(5*time.Second, "", 0)
	w.Init()
	defer w.Dispose()

	resp := w.Send(Request{ID: "req-42", Type: RequestInit})
	if resp.ID != "req-42" {
		t.Fatalf("expected correlation id to be echoed, got %q", resp.ID)
	}
	if resp.Type != ResponseInitDone {
		t.Fatalf("expected init_done, got %q", resp.Type)
	}
}

func TestWorkerSendUnknownTypeAnswersError(t *testing.T) {
	w := New(5*time.Second, "", 0)
	w.Init()
	defer w.Dispose()

	resp := w.Send(Request{ID: "x", Type: RequestType("bogus")})
	if resp.Type != ResponseError || resp.Error == "" {
		t.Fatalf("expected an error response for an unknown request type, got %+v", resp)
	}
}
