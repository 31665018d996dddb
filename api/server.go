package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smartbee/config"
	"smartbee/services"
)

// Server hosts the websocket endpoint and the thin data query surface. All
// query handlers delegate straight to the persistence gateway; the only
// stateful route is /ws, which hands authenticated connections to the hub.
type Server struct {
	cfg    *config.Config
	store  services.Gateway
	hub    *services.Hub
	auth   services.Authenticator
	status *services.StatusMonitor
	logger *zap.Logger
	engine *gin.Engine

	upgrader websocket.Upgrader
}

// New constructs a server with routes and middleware.
func New(cfg *config.Config, store services.Gateway, hub *services.Hub, auth services.Authenticator, status *services.StatusMonitor, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    hub,
		auth:   auth,
		status: status,
		logger: logger,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards connect from any origin; access control is the
			// token's job, not the Origin header's.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.GET("/ws", s.handleWebsocket)

	data := s.engine.Group("/api", s.authMiddleware())
	data.GET("/data/node/:nodeId/latest", s.handleLatest)
	data.GET("/data/node/:nodeId/historical", s.handleHistorical)
	data.GET("/data/node/:nodeId/aggregated", s.handleAggregated)
	data.GET("/nodes/:nodeId/status", s.handleNodeStatus)
}

// handleWebsocket authenticates the observer, upgrades the connection, and
// registers the session with the hub. Sessions without valid identity
// context are rejected before the upgrade.
func (s *Server) handleWebsocket(c *gin.Context) {
	identity, err := s.auth.Authenticate(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := services.NewClient(s.hub, conn, identity, s.logger)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.auth.Authenticate(bearerToken(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// bearerToken pulls the token from the Authorization header, falling back to
// the query string for browser websocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.Query("token")
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
