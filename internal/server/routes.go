package server

import (
	"context"
	"net/http"
	"time"

	"packtrack/internal/auth"
	"packtrack/internal/notifications"
	"packtrack/internal/packs"
	"packtrack/internal/users"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// RegisterRoutes builds the router: public auth endpoints, /health, and the
// bearer-protected API.
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.healthHandler)

	public := r.Group("/api")
	auth.NewHandler(s.auth).RegisterRoutes(public)

	protected := r.Group("/api", auth.RequireAuth(s.auth))
	users.NewHandler(s.users).RegisterRoutes(protected)
	packs.NewHandler(s.packs).RegisterRoutes(protected)
	notifications.NewHandler(s.notifications).RegisterRoutes(protected)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// An empty origin list allows any origin, without credentials.
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}

// healthHandler reports 200 while the database is reachable. Storage is
// optional and only reported.
func (s *Server) healthHandler(c *gin.Context) {
	response := gin.H{"status": "up"}

	db := s.db.Health()
	response["database"] = db
	status := http.StatusOK
	if db["status"] != "up" {
		status = http.StatusServiceUnavailable
		response["status"] = "down"
	}

	storageHealth := gin.H{"status": "not configured"}
	if s.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.storage.Health(ctx); err != nil {
			storageHealth = gin.H{"status": "down", "error": "storage unreachable"}
		} else {
			storageHealth = gin.H{"status": "up"}
		}
	}
	response["storage"] = storageHealth

	c.JSON(status, response)
}
