// Webhook ingress and observability API server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yutakobayashidev/asobiba/pkg/bus"
	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/config"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

// Server exposes the per-platform webhook endpoints plus health/status and a
// WebSocket tap on system events.
type Server struct {
	config    *config.Config
	bot       *chat.Bot
	sysBus    *bus.Bus
	hub       *WSHub
	bridge    *EventBridge
	startTime time.Time
	server    *http.Server
}

// NewServer creates the API server around an already-wired bot.
func NewServer(cfg *config.Config, bot *chat.Bot, sysBus *bus.Bus) *Server {
	s := &Server{
		config:    cfg,
		bot:       bot,
		sysBus:    sysBus,
		startTime: time.Now(),
	}
	s.hub = NewWSHub(s)
	s.bridge = NewEventBridge(sysBus, s.hub)
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)

	// Webhook ingress, one endpoint per platform
	mux.HandleFunc("/api/webhooks/{platform}", s.handleWebhook)

	// WebSocket for live system events
	mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)

	return mux
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Webhook server starting", map[string]interface{}{
		"addr": addr, "platforms": s.bot.Platforms(),
	})

	go s.hub.Run(ctx)
	go s.bridge.Run(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"platforms":      s.bot.Platforms(),
		"handlers":       s.bot.HandlerCounts(),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
