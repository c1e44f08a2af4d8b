package server

import (
	"net/http"
	"time"

	"github.com/danmuck/tdmalink/internal/node"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.name,
			"nodes":   s.names(),
		})
	})

	// ready is 503 until every node is RUNNING.
	s.router.GET("/ready", func(c *gin.Context) {
		ready := len(s.sources) > 0
		for _, src := range s.sources {
			if src.Status().State != node.StateRunning.String() {
				ready = false
			}
		}
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"ready": ready})
	})

	s.router.GET("/status", func(c *gin.Context) {
		out := make(map[string]node.Status, len(s.sources))
		for name, src := range s.sources {
			out[name] = src.Status()
		}
		c.JSON(http.StatusOK, gin.H{"nodes": out})
	})

	s.router.GET("/status/:node", func(c *gin.Context) {
		src, ok := s.sources[c.Param("node")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown node", "nodes": s.names()})
			return
		}
		c.JSON(http.StatusOK, src.Status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
