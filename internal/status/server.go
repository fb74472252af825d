// Package status serves a read-only view of the trading loop over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-autotrader/internal/engine"
	"stock-autotrader/internal/logger"
)

// SnapshotSource publishes the latest loop snapshot.
type SnapshotSource interface {
	Snapshot() *engine.Snapshot
}

type Server struct {
	server *http.Server
	source SnapshotSource
	mode   string
}

// NewServer wires the routes. mode is reported as-is on /healthz.
func NewServer(addr, mode string, source SnapshotSource) *Server {
	if logger.IsDebugEnabled() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{source: source, mode: mode}
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, s)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func SetupRoutes(r *gin.Engine, s *Server) {
	r.GET("/healthz", s.health)
	r.GET("/status", s.status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.mode})
}

func (s *Server) status(c *gin.Context) {
	snap := s.source.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no iteration completed yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Start serves in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		logger.Info(ctx, "Status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Status server failed", err, "addr", s.server.Addr)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr(shutdownCtx, "Status server shutdown failed", err)
			return
		}
		logger.Info(shutdownCtx, "Status server stopped")
	}()
}
