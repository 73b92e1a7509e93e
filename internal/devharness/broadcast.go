// Package devharness holds the pieces of the optional demo driver
// (cmd/anvildev) around the core engine: it broadcasts each build result to
// connected browser tabs over a websocket and persists the dependency graph
// between runs; the directory watching lives in cmd/anvildev. None of
// the core engine packages import this one — the engine never touches a
// socket. An embedding app would wire the engine into its own preview
// plumbing; this package is a stand-in for that, useful only for driving
// the engine interactively from a terminal.
package devharness

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/anvildev/anvil/anvil"
)

type changeType string

const (
	changeTypeRebuilding changeType = "rebuilding"
	changeTypeComplete   changeType = "complete"
	changeTypeError      changeType = "error"
)

// refreshPayload is broadcast to every connected tab after each build.
type refreshPayload struct {
	ChangeType  changeType        `json:"changeType"`
	BuildResult anvil.BuildOutput `json:"buildResult"`
}

// subscriber is one connected tab. Its channel holds at most one pending
// payload: a preview tab only ever wants the newest build, so a tab that
// falls behind skips straight to it instead of replaying stale ones.
type subscriber struct {
	ch   chan refreshPayload
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster fans each build result out to every connected tab. There is
// no central dispatch loop: subscriptions live in a mutex-guarded set, and
// each connection runs its own writer off its subscriber channel.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	subs   map[*subscriber]struct{}
}

// NewBroadcaster returns a Broadcaster ready to accept websocket upgrades
// and build broadcasts. Origin checks are disabled; the harness serves
// localhost demo tabs, not production traffic.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

func (b *Broadcaster) subscribe() (*subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	s := &subscriber{ch: make(chan refreshPayload, 1)}
	b.subs[s] = struct{}{}
	return s, true
}

func (b *Broadcaster) unsubscribe(s *subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.close()
}

// publish delivers payload to every subscriber. Sends happen under the
// subscription lock, so a subscriber channel is never written after
// unsubscribe has removed and closed it. A full channel is drained first —
// the stale payload is superseded, not queued behind.
func (b *Broadcaster) publish(p refreshPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- p:
		default:
			select {
			case <-s.ch:
			default:
			}
			s.ch <- p
		}
	}
}

// Handler returns the http.HandlerFunc that upgrades a connection and
// streams build payloads to it until the tab disconnects or the
// Broadcaster closes.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sub, ok := b.subscribe()
		if !ok {
			conn.Close()
			return
		}

		// The demo protocol is write-only; this read loop exists solely to
		// notice the tab going away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					b.unsubscribe(sub)
					return
				}
			}
		}()

		defer conn.Close()
		for p := range sub.ch {
			if err := conn.WriteJSON(p); err != nil {
				b.unsubscribe(sub)
				return
			}
		}
	}
}

// BroadcastRebuilding signals connected tabs that a rebuild has started,
// so the demo UI can show a "rebuilding" overlay.
func (b *Broadcaster) BroadcastRebuilding() {
	b.publish(refreshPayload{ChangeType: changeTypeRebuilding})
}

// BroadcastBuild sends a completed (or failed) BuildOutput to every
// connected tab.
func (b *Broadcaster) BroadcastBuild(out anvil.BuildOutput) {
	ct := changeTypeComplete
	if len(out.Errors) > 0 {
		ct = changeTypeError
	}
	b.publish(refreshPayload{ChangeType: ct, BuildResult: out})
}

// Close stops accepting subscribers and disconnects every current one.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*subscriber]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
