// Pongbox game transport
//
// Each player holds one websocket, identified by a stable playerId query
// parameter so a dropped browser can reclaim its seat. Parsed events are
// queued onto the owning session's loop; the session rebinds a connection
// handle on reconnect or migration with a single pointer swap.

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live websocket. Its session pointer is re-aimed on migration,
// so the pumps always route to the loop that currently owns the seat.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	session  atomic.Pointer[session]

	closeOnce sync.Once
}

func (c *Client) trySend(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown stops the write pump, which closes the connection on its way out.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) readPump() {
	defer func() {
		if sess := c.session.Load(); sess != nil {
			sess.offer(closedCmd{client: c})
		}
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Malformed payloads are dropped without touching any state.
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		sess := c.session.Load()
		if sess == nil {
			continue
		}

		switch msg.Type {
		case "keydown":
			sess.offer(keyCmd{client: c, key: msg.Key, down: true})
		case "keyup":
			sess.offer(keyCmd{client: c, key: msg.Key, down: false})
		case "clientDisconnecting":
			// Voluntary leave, handled exactly like an abrupt close.
			return
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := r.URL.Query().Get("playerId")
		if playerID == "" {
			http.Error(w, "missing playerId", http.StatusBadRequest)
			return
		}
		nickname := r.URL.Query().Get("nickname")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: playerID,
		}

		go client.writePump()

		reg.place(client, nickname)

		client.readPump()
	}
}

// qrHandler generates a PNG QR code for the game URL, so the second player
// can join from a phone.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../qr; strip the trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func servePongPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/pong/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// registerPongGame sets up routes so that:
//   - $path            → HTML client
//   - $path/ws         → per-player WebSocket
//   - $path/qr         → PNG QR code for the game URL
func registerPongGame(cfg *Config, path string, mux *httprouter.Router, reg *Registry) {
	mux.GET(cfg.prefix+path, servePongPage(cfg))
	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, reg))
	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}
