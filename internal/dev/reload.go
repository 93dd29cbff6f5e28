package dev

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType is the kind of live-reload message.
type MessageType string

const (
	MessageReload MessageType = "reload"
	MessageError  MessageType = "error"
	MessageClear  MessageType = "clear"
)

const (
	writeWait    = 2 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 8
)

// ReloadMessage is one JSON frame sent to browsers.
type ReloadMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error,omitempty"`
	File  string      `json:"file,omitempty"`
}

type reloadClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ReloadServer fans change notifications out to connected browsers. Each
// client has its own writer goroutine; a client that falls behind by more
// than a few messages is dropped. The last unresolved compile error is
// replayed to clients that connect after it was reported.
type ReloadServer struct {
	mu        sync.Mutex
	clients   map[*reloadClient]struct{}
	lastError []byte
	closed    bool

	upgrader websocket.Upgrader
}

// NewReloadServer creates a reload server with no clients.
func NewReloadServer() *ReloadServer {
	return &ReloadServer{
		clients: make(map[*reloadClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
			// pages come from the main listener, a different origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects.
func (r *ReloadServer) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		http.Error(w, "reload server closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &reloadClient{conn: conn, send: make(chan []byte, sendBuffer)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.clients[c] = struct{}{}
	if r.lastError != nil {
		c.send <- r.lastError
	}
	r.mu.Unlock()

	go c.writeLoop()

	// browsers never send; reading only detects the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	r.drop(c)
	conn.Close()
}

func (c *reloadClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// drop unregisters c and stops its writer. Safe to call twice.
func (r *ReloadServer) drop(c *reloadClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(c)
}

func (r *ReloadServer) dropLocked(c *reloadClient) {
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
}

// NotifyReload tells clients that file changed.
func (r *ReloadServer) NotifyReload(file string) {
	r.broadcast(ReloadMessage{Type: MessageReload, File: file})
}

// NotifyError reports a compile error in file. It is replayed to new
// clients until ClearError or NotifyReload.
func (r *ReloadServer) NotifyError(file, errMsg string) {
	r.broadcast(ReloadMessage{Type: MessageError, File: file, Error: errMsg})
}

// ClearError tells clients the last error is resolved.
func (r *ReloadServer) ClearError() {
	r.broadcast(ReloadMessage{Type: MessageClear})
}

func (r *ReloadServer) broadcast(msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.Type == MessageError {
		r.lastError = data
	} else {
		r.lastError = nil
	}
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			r.dropLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (r *ReloadServer) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close disconnects every client and refuses new ones.
func (r *ReloadServer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for c := range r.clients {
		r.dropLocked(c)
	}
}

// ClientScript returns JavaScript that connects to the websocket at url
// and reloads the page on change. Pages include it with
// <script src="http://admin/_dev/client.js"></script>.
func ClientScript(url string) string {
	return strings.Replace(clientScript, "{{URL}}", url, 1)
}

const clientScript = `(function() {
    'use strict';

    var delay = 1000;

    function connect() {
        var ws = new WebSocket('{{URL}}');

        ws.onopen = function() {
            delay = 1000;
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }

            switch (msg.type) {
                case 'reload':
                    location.reload();
                    break;
                case 'error':
                    console.error('[smarthttp] ' + msg.file + ': ' + msg.error);
                    document.title = '⚠ ' + msg.file;
                    break;
                case 'clear':
                    break;
            }
        };

        ws.onclose = function() {
            setTimeout(function() {
                delay = Math.min(delay * 2, 30000);
                connect();
            }, delay);
        };
    }

    connect();
})();
`
