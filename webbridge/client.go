package webbridge

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// client is one connected dashboard websocket session, identified by
// its session id.
type client struct {
	sid  string
	conn *websocket.Conn
	send chan []byte

	limiter *rate.Limiter

	mu          sync.Mutex
	closed      bool
	lastPong    time.Time
	missedPongs int
}

func newClient(conn *websocket.Conn, rpm int) *client {
	return &client{
		sid:      uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, 64),
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		lastPong: time.Now(),
	}
}

// enqueue schedules a broadcast payload for this client without blocking
// the publisher; a client that cannot keep up has the oldest queued frame
// dropped rather than stalling the whole broadcast.
func (c *client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	_ = c.conn.Close()
}

// handleWebSocket upgrades an incoming request, enforces the connection
// cap (an accept over the cap is closed with a server-overloaded code),
// and runs the client's read/write pumps until either side closes.
func (br *Bridge) handleWebSocket(c *gin.Context) {
	if br.ActiveClients() >= br.cfg.MaxClients {
		conn, err := br.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server overloaded"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	conn, err := br.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		br.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := newClient(conn, br.cfg.ClientRPM)
	br.mu.Lock()
	br.clients[cl.sid] = cl
	br.mu.Unlock()

	br.Logger.Info("client connected", "sid", cl.sid, "active", br.ActiveClients())

	conn.SetPongHandler(func(string) error {
		cl.mu.Lock()
		cl.lastPong = time.Now()
		cl.missedPongs = 0
		cl.mu.Unlock()
		return nil
	})

	done := make(chan struct{})
	go br.writePump(cl, done)
	br.readPump(cl)

	close(done)
	br.mu.Lock()
	delete(br.clients, cl.sid)
	br.mu.Unlock()
	cl.close()
	br.Logger.Info("client disconnected", "sid", cl.sid, "active", br.ActiveClients())
}

// writePump drains cl.send onto the websocket connection and sends
// periodic ping frames, closing the connection once DefaultMaxMissedPongs
// consecutive pongs have not arrived.
func (br *Bridge) writePump(cl *client, done <-chan struct{}) {
	ticker := time.NewTicker(br.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.mu.Lock()
			sincePong := time.Since(cl.lastPong)
			cl.mu.Unlock()
			if sincePong > br.cfg.PingInterval*time.Duration(DefaultMaxMissedPongs) {
				_ = cl.conn.Close()
				return
			}
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump reads inbound frames until the client disconnects, applying
// the per-client rate limit.
func (br *Bridge) readPump(cl *client) {
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if !cl.limiter.Allow() {
			br.sendError(cl, "", "rate_limited", "too many commands")
			continue
		}
		br.handleInbound(cl, raw)
	}
}
