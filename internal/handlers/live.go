package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"speakwise/internal/session"
)

// Hub fans session engine events out to websocket subscribers. Observers
// never block the engine: slow subscribers drop events.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan session.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan session.Event]struct{})}
}

// Observer returns the engine observer callback for one session.
func (h *Hub) Observer(sessionID string) func(session.Event) {
	return func(ev session.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		for ch := range h.subs[sessionID] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber for the session's events. The
// returned cancel func must be called when the subscriber goes away.
func (h *Hub) Subscribe(sessionID string) (<-chan session.Event, func()) {
	ch := make(chan session.Event, 64)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan session.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[sessionID], ch)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Drop removes all subscribers for a finished session.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	delete(h.subs, sessionID)
	h.mu.Unlock()
}

// Events streams a session's engine events over a websocket until the
// session ends or the client disconnects.
func (sh *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	engine, ok := sh.sessions.Get(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("websocket accept for session %s: %v", id, err)
		return
	}
	defer conn.CloseNow()

	events, cancel := sh.hub.Subscribe(id)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case ev := <-events:
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			done()
			if err != nil {
				return
			}
			if ev.Type == session.EventCompleted || ev.Type == session.EventAborted {
				conn.Close(websocket.StatusNormalClosure, string(ev.Type))
				return
			}
		case <-engine.Done():
			// Flush anything already queued before closing.
			for {
				select {
				case ev := <-events:
					writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
					err := wsjson.Write(writeCtx, conn, ev)
					done()
					if err != nil {
						return
					}
				default:
					conn.Close(websocket.StatusNormalClosure, "session ended")
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
