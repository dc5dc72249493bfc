package httpserver

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer  = 16
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// eventUpgrader applies the same origin allow-list as the CORS layer.
// Browsers always send Origin on a websocket handshake, non-browser
// clients usually don't and are let through.
func (s *Server) eventUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, s.opts.AllowedOrigins)
		},
	}
}

// originAllowed falls back to a same-host check when no origins are configured
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}

	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}

// EventHub fans feed events out to every connected websocket
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	log    *log.Logger
}

func NewEventHub(log *log.Logger) *EventHub {
	return &EventHub{
		subs: make(map[chan Event]struct{}),
		log:  log,
	}
}

// Subscribe registers a listener. The returned func unsubscribes and is safe
// to call more than once.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish never blocks: a subscriber with a full buffer misses the event
func (h *EventHub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Warn("Dropping event for slow subscriber", "type", evt.Type)
		}
	}
}

func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// HandleVoiceCardEvents streams newly created cards to the client
func (s *Server) HandleVoiceCardEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.eventUpgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})

	// Reader: only control frames are expected, a read error means the peer left
	go func() {
		defer close(done)

		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait),
				)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
