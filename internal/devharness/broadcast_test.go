package devharness

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anvildev/anvil/build"
)

func TestBroadcasterDeliversBuildToConnectedClient(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	server := httptest.NewServer(b.Handler())
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the HTTP handler a moment to finish subscribing before the
	// broadcast, since the upgrade runs on the server's goroutine.
	time.Sleep(20 * time.Millisecond)

	b.BroadcastBuild(build.BuildOutput{Code: "console.log(1)", Hash: "abc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg refreshPayload
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.ChangeType != changeTypeComplete {
		t.Fatalf("expected changeType %q, got %q", changeTypeComplete, msg.ChangeType)
	}
	if msg.BuildResult.Hash != "abc" {
		t.Fatalf("expected hash %q, got %q", "abc", msg.BuildResult.Hash)
	}
}

func TestBroadcasterMarksErroredBuilds(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	server := httptest.NewServer(b.Handler())
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)

	b.BroadcastBuild(build.BuildOutput{Errors: []build.Diagnostic{{Message: "boom"}}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg refreshPayload
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.ChangeType != changeTypeError {
		t.Fatalf("expected changeType %q, got %q", changeTypeError, msg.ChangeType)
	}
}
