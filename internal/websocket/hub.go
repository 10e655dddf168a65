package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// Listeners never send payloads, only control frames.
	maxReadSize = 512
	queueSize   = 64
)

// Message is the envelope pushed to every listener.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// listener is one connected dashboard.
type listener struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans valve change events out to connected dashboards.
type Hub struct {
	Broadcast chan []byte

	join  chan *listener
	leave chan *listener
	done  chan struct{}

	mu        sync.Mutex
	listeners map[*listener]struct{}

	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewHub builds a hub. An empty origins list accepts any origin.
func NewHub(log *logrus.Logger, origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Hub{
		Broadcast: make(chan []byte, queueSize),
		join:      make(chan *listener),
		leave:     make(chan *listener),
		done:      make(chan struct{}),
		listeners: make(map[*listener]struct{}),
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Run dispatches events until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for l := range h.listeners {
				h.drop(l)
			}
			h.mu.Unlock()
			return
		case l := <-h.join:
			h.mu.Lock()
			h.listeners[l] = struct{}{}
			h.mu.Unlock()
			h.log.WithField("remote", l.conn.RemoteAddr().String()).Debug("websocket listener joined")
		case l := <-h.leave:
			h.mu.Lock()
			if _, ok := h.listeners[l]; ok {
				h.drop(l)
			}
			h.mu.Unlock()
		case payload := <-h.Broadcast:
			h.mu.Lock()
			for l := range h.listeners {
				select {
				case l.send <- payload:
				default:
					h.log.WithField("remote", l.conn.RemoteAddr().String()).Warn("websocket listener too slow, disconnecting")
					h.drop(l)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(l *listener) {
	delete(h.listeners, l)
	close(l.send)
}

// Publish queues an event. It never blocks; events are dropped when the queue is full.
func (h *Hub) Publish(event string, data any) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Warn("websocket event not encodable")
		return
	}
	select {
	case h.Broadcast <- payload:
	default:
		h.log.WithField("event", event).Warn("websocket broadcast queue full, event dropped")
	}
}

// ClientCount is the number of connected listeners.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// ServeWs upgrades an already authenticated request and attaches it to the hub.
func ServeWs(hub *Hub, c *gin.Context) {
	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	l := &listener{conn: conn, send: make(chan []byte, 256)}
	select {
	case hub.join <- l:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go l.write()
	go l.read(hub)
}

func (l *listener) write() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = l.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *listener) read(hub *Hub) {
	defer func() {
		select {
		case hub.leave <- l:
		case <-hub.done:
		}
		_ = l.conn.Close()
	}()
	l.conn.SetReadLimit(maxReadSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				hub.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
	}
}
