package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vibetunnel/linux/pkg/session"
	"github.com/vibetunnel/linux/pkg/termsocket"
)

const (
	// WebSocket timeouts
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512KB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// BufferWebSocketHandler serves the envelope-framed terminal update
// stream (§6/§11.3): subscribers receive the pump's `U`-prefixed frames
// assembled from a live terminal.Terminal core, not a replay of the
// asciinema recording file.
type BufferWebSocketHandler struct {
	manager     *session.Manager
	termManager *termsocket.Manager
}

func NewBufferWebSocketHandler(manager *session.Manager, termManager *termsocket.Manager) *BufferWebSocketHandler {
	return &BufferWebSocketHandler{
		manager:     manager,
		termManager: termManager,
	}
}

// safeSend safely sends data to a channel, returning false if the channel is closed
func safeSend(send chan []byte, data []byte, done chan struct{}) bool {
	defer func() {
		if r := recover(); r != nil {
			// Channel send panicked (likely closed channel) - expected on disconnect
			log.Printf("Channel send panic (client likely disconnected): %v", r)
		}
	}()

	select {
	case send <- data:
		return true
	case <-done:
		return false
	}
}

func (h *BufferWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Failed to upgrade connection: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("[WebSocket] Failed to close connection: %v", err)
		}
	}()

	// Set up connection parameters
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[WebSocket] Failed to set read deadline: %v", err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[WebSocket] Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	// Start ping ticker
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// Channel for writing messages
	send := make(chan []byte, 256)
	done := make(chan struct{})
	var closeOnce sync.Once

	// Helper function to safely close done channel
	closeOnceFunc := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}

	// Start writer goroutine
	go h.writer(conn, send, ticker, done)

	// Handle incoming messages - remove busy loop
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Error: %v", err)
			}
			closeOnceFunc()
			return
		}

		if messageType == websocket.TextMessage {
			h.handleTextMessage(conn, message, send, done, closeOnceFunc)
		}
	}
}

func (h *BufferWebSocketHandler) handleTextMessage(conn *websocket.Conn, message []byte, send chan []byte, done chan struct{}, closeFunc func()) {
	var msg map[string]interface{}
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("[WebSocket] Failed to parse message: %v", err)
		return
	}

	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "ping":
		// Send pong response
		pong, _ := json.Marshal(map[string]string{"type": "pong"})
		if !safeSend(send, pong, done) {
			return
		}

	case "subscribe":
		sessionID, ok := msg["sessionId"].(string)
		if !ok {
			return
		}

		// Start streaming pump-assembled envelope frames
		go h.streamSession(sessionID, send, done)

	case "unsubscribe":
		// Currently we just close the connection when unsubscribing
		closeFunc()
	}
}

// streamSession delivers the pump-assembled U-envelope stream (§6) for
// a session: an immediate full frame, then each incremental frame the
// terminal.Terminal core produces as the session's shell writes to it.
// Replaces the former asciinema-stream-file tailing: the transport
// mechanics below (the `send`/`done` channels, safeSend, the writer
// goroutine) are unchanged, only the payload source is swapped.
func (h *BufferWebSocketHandler) streamSession(sessionID string, send chan []byte, done chan struct{}) {
	sess, err := h.manager.GetSession(sessionID)
	if err != nil {
		log.Printf("[WebSocket] Session not found: %v", err)
		errorMsg, _ := json.Marshal(map[string]string{
			"type":    "error",
			"message": fmt.Sprintf("Session not found: %v", err),
		})
		safeSend(send, errorMsg, done)
		return
	}

	snapshot, err := h.termManager.GetBufferSnapshot(sessionID)
	if err != nil {
		log.Printf("[WebSocket] Failed to build terminal snapshot: %v", err)
		errorMsg, _ := json.Marshal(map[string]string{
			"type":    "error",
			"message": "Session terminal not available",
		})
		safeSend(send, errorMsg, done)
		return
	}
	if snapshot != "" && !safeSend(send, []byte(snapshot), done) {
		return
	}

	unsubscribe, err := h.termManager.SubscribeToBufferChanges(sessionID, func(_ string, frame string) {
		if frame == "" {
			return
		}
		safeSend(send, []byte(frame), done)
	})
	if err != nil {
		log.Printf("[WebSocket] Failed to subscribe to terminal updates: %v", err)
		return
	}
	defer unsubscribe()

	aliveCheck := time.NewTicker(30 * time.Second)
	defer aliveCheck.Stop()

	for {
		select {
		case <-done:
			return
		case <-aliveCheck.C:
			if !sess.IsAlive() {
				exitMsg, _ := json.Marshal(map[string]interface{}{"type": "exit", "code": 0})
				safeSend(send, exitMsg, done)
				return
			}
		}
	}
}

func (h *BufferWebSocketHandler) writer(conn *websocket.Conn, send chan []byte, ticker *time.Ticker, done chan struct{}) {
	defer close(send)

	for {
		select {
		case message, ok := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("[WebSocket] Failed to set write deadline: %v", err)
				return
			}
			if !ok {
				if err := conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					log.Printf("[WebSocket] Failed to write close message: %v", err)
				}
				return
			}

			// Envelope frames (`U...`) and heartbeats (`.`) are text;
			// JSON control messages (errors, exit, pong) are also text.
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("[WebSocket] Failed to set write deadline for ping: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
