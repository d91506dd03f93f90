// Package webbridge implements the Web Bridge: it
// translates validated external socket commands into bus events and
// broadcasts a filtered, rate-limited, schema-validated subset of bus
// traffic outward to connected dashboard clients.
package webbridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
)

// DefaultMaxClients is the hard cap on concurrent clients.
const DefaultMaxClients = 10

// DefaultClientRPM is the per-client inbound command rate limit.
const DefaultClientRPM = 60

// DefaultPingInterval and DefaultMaxMissedPongs govern the websocket
// heartbeat: a 30s ping interval, connection closed after 2 missed
// pongs.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMissedPongs = 2
)

// Config configures a Bridge at construction time.
type Config struct {
	Port               int
	MaxClients         int
	ClientRPM          int
	CORSAllowedOrigins []string
	PingInterval       time.Duration
}

// Bridge is the Web Bridge service.
type Bridge struct {
	*service.Base

	cfg      Config
	registry *schema.Registry
	validate *validator.Validate
	upgrader websocket.Upgrader

	engine     *gin.Engine
	httpServer *http.Server

	mu      sync.Mutex
	clients map[string]*client
}

// New constructs a Bridge. registry is stored on the Bridge but not
// consulted by it: inbound frames are checked with struct-tag validation,
// and outbound broadcasts carry payloads the bus already validated at
// Emit.
func New(b *bus.Bus, registry *schema.Registry, cfg Config) *Bridge {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.ClientRPM <= 0 {
		cfg.ClientRPM = DefaultClientRPM
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}

	br := &Bridge{
		cfg:      cfg,
		registry: registry,
		validate: validator.New(),
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // CORS allow-list governs actual access below
		},
	}
	br.Base = service.NewBase("webbridge", b, nil)
	return br
}

// OnStart implements service.Hooks: builds the gin engine, subscribes to
// every internal topic the bridge rebroadcasts, and starts the HTTP
// listener. Start does not return until the listener goroutine has been
// spawned; listener failures surface as an ERROR status rather than a
// fatal process exit.
func (br *Bridge) OnStart(ctx context.Context) error {
	br.SubscribeStatusRequest()
	br.subscribeOutbound()
	br.Subscribe(bus.TopicCLIResponse, br.handleCLIResponse)

	br.engine = gin.New()
	br.engine.Use(gin.Recovery())
	br.engine.Use(cors.New(cors.Config{
		AllowOrigins:     br.cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	br.engine.GET("/healthz", br.handleHealthz)
	br.engine.GET("/ws", br.handleWebSocket)

	br.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", br.cfg.Port),
		Handler:           br.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	br.Spawn(br.serve)
	return nil
}

func (br *Bridge) serve(ctx context.Context) {
	errCh := make(chan error, 1)
	go func() { errCh <- br.httpServer.ListenAndServe() }()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			br.Logger.Error("http server failed", "error", err)
			_ = br.EmitStatus(service.StateError, fmt.Sprintf("listen failed: %v", err), schema.SeverityError)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = br.httpServer.Shutdown(shutdownCtx)
	}
}

// OnStop implements service.Hooks.
func (br *Bridge) OnStop(ctx context.Context) error {
	br.mu.Lock()
	clients := make([]*client, 0, len(br.clients))
	for _, c := range br.clients {
		clients = append(clients, c)
	}
	br.clients = make(map[string]*client)
	br.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (br *Bridge) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ActiveClients returns the current number of connected websocket
// clients.
func (br *Bridge) ActiveClients() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.clients)
}
