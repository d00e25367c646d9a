// Package dashboard implements C7, the loopback dashboard server: static
// asset serving, JSON status/stats/config endpoints, and a websocket push
// loop for live stats (spec §4.7).
package dashboard

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aduki-inc/pori/dashboard"
	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/router"
	"github.com/aduki-inc/pori/internal/state"
	"github.com/aduki-inc/pori/internal/util"
	"github.com/aduki-inc/pori/pkg/format"
)

const pushInterval = time.Second

// Reconnector is implemented by the supervisor so the dashboard can expose
// a manual /api/reconnect trigger without importing the supervisor package.
type Reconnector interface {
	TriggerReconnect()
}

// Config holds the non-secret settings the /api/config endpoint is allowed
// to echo back; the tunnel token is deliberately never included here.
type Config struct {
	BindAddr             string
	Port                 int
	TunnelURL            string
	OriginURL            string
	MaxOriginConnections int
	MaxReconnects        int
	PingInterval         time.Duration
	PongTimeout          time.Duration
}

// Server is C7 (spec §4.7): a loopback-only HTTP server serving the static
// dashboard UI plus a small JSON/websocket API over SharedState.
type Server struct {
	cfg         Config
	shared      *state.SharedState
	reconnector Reconnector
	logger      *logger.StyledLogger
	registry    *router.RouteRegistry
	upgrader    websocket.Upgrader

	httpServer *http.Server
}

func New(cfg Config, shared *state.SharedState, reconnector Reconnector, log *logger.StyledLogger) *Server {
	s := &Server{
		cfg:         cfg,
		shared:      shared,
		reconnector: reconnector,
		logger:      log,
		registry:    router.NewRouteRegistry(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	assetsFS, err := fs.Sub(dashboard.Assets, dashboard.AssetsRoot)
	if err != nil {
		panic("dashboard: embedded assets missing: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(assetsFS))

	s.registry.Register("/", withCORS(fileServer.ServeHTTP), "dashboard UI")
	s.registry.Register("/index.html", withCORS(fileServer.ServeHTTP), "dashboard UI")
	s.registry.Register("/css/", withCORS(fileServer.ServeHTTP), "static stylesheets")
	s.registry.Register("/js/", withCORS(fileServer.ServeHTTP), "static scripts")
	s.registry.Register("/assets/", withCORS(stripAssetsPrefix(fileServer)), "static assets")

	s.registry.Register("/api/status", withCORS(s.handleStatus), "connection status and uptime")
	s.registry.Register("/api/stats", withCORS(s.handleStats), "full counter snapshot")
	s.registry.Register("/api/config", withCORS(s.handleConfig), "non-secret settings")
	s.registry.Register("/api/endpoints", withCORS(s.handleEndpoints), "this route table")
	s.registry.RegisterWithMethod("/api/reconnect", withCORS(s.handleReconnect), "force an immediate reconnect", "POST")
	s.registry.RegisterWithMethod("/api/shutdown", withCORS(s.handleShutdown), "request graceful shutdown", "POST")
	s.registry.Register("/metrics", s.handleMetrics, "live stats over a websocket")
}

// Start binds the loopback listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registry.WireUp(mux)

	addr := s.cfg.BindAddr + ":" + strconv.Itoa(s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.logger.Info("starting dashboard server", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.shared.Snapshot()
	writeJSON(w, statusPayload(snap))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statsPayload(s.shared.Snapshot()))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"tunnel_url":             s.cfg.TunnelURL,
		"origin_url":             s.cfg.OriginURL,
		"max_origin_connections": s.cfg.MaxOriginConnections,
		"max_reconnects":         s.cfg.MaxReconnects,
		"ping_interval":          s.cfg.PingInterval.String(),
		"pong_timeout":           s.cfg.PongTimeout.String(),
	})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	routes := s.registry.GetRoutes()
	out := make([]map[string]string, 0, len(routes))
	for route, info := range routes {
		out = append(out, map[string]string{
			"route":       route,
			"method":      info.Method,
			"description": info.Description,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info("reconnect requested from dashboard", "client", util.GetClientIP(r))
	if s.reconnector != nil {
		s.reconnector.TriggerReconnect()
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info("shutdown requested from dashboard", "client", util.GetClientIP(r))
	writeJSON(w, map[string]string{"status": "success"})
	s.shared.Shutdown()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("dashboard: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, unsubscribe := s.shared.Subscribe(ctx)
	defer unsubscribe()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	go drainIncoming(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.pushStats(conn) {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind == domain.EventConnectionStateChanged || evt.Kind == domain.EventRequestForwarded {
				if !s.pushStats(conn) {
					return
				}
			}
		}
	}
}

// drainIncoming reads and discards client frames so the connection's
// read deadline/control frames (ping/close) are processed, cancelling ctx
// once the peer goes away.
func drainIncoming(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pushStats(conn *websocket.Conn) bool {
	payload := map[string]any{
		"type": "stats_update",
		"data": statsPayload(s.shared.Snapshot()),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return false
	}
	return true
}

func statusPayload(snap state.Snapshot) map[string]any {
	return map[string]any{
		"status":               "ok",
		"connection_status":    string(snap.Status),
		"uptime_seconds":       snap.Uptime.Seconds(),
		"requests_processed":   snap.RequestsProcessed,
		"websocket_reconnects": snap.WebsocketReconnects,
		"started_at":           snap.StartTimestamp.UTC().Format(time.RFC3339),
	}
}

func statsPayload(snap state.Snapshot) map[string]any {
	return map[string]any{
		"connection_status":     string(snap.Status),
		"requests_processed":    snap.RequestsProcessed,
		"requests_successful":   snap.RequestsSuccessful,
		"requests_failed":       snap.RequestsFailed,
		"bytes_forwarded":       snap.BytesForwarded,
		"bytes_forwarded_human": format.Bytes(uint64(snap.BytesForwarded)),
		"websocket_reconnects":  snap.WebsocketReconnects,
		"uptime_seconds":        snap.Uptime.Seconds(),
		"uptime_human":          format.Duration(snap.Uptime),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// stripAssetsPrefix lets /assets/foo resolve to the embedded assets/foo,
// matching the flat layout used by index.html, css, and js routes.
func stripAssetsPrefix(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trimmed := strings.TrimPrefix(r.URL.Path, "/assets")
		r2 := r.Clone(r.Context())
		r2.URL.Path = path.Clean("/" + trimmed)
		next.ServeHTTP(w, r2)
	}
}
