package gateway

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/andreytim/dreamytin-ai/pkg/agent"
)

// socketEmitter pushes turn events onto a websocket connection. The
// mutex keeps concurrent turn goroutines from interleaving frames.
type socketEmitter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSocketEmitter(conn *websocket.Conn) *socketEmitter {
	return &socketEmitter{conn: conn}
}

// Emit writes one event frame. A write error propagates to the runner
// and aborts the turn.
func (e *socketEmitter) Emit(event agent.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(event)
}
