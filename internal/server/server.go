// Package server assembles the HTTP API from the domain handlers.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"packtrack/internal/auth"
	"packtrack/internal/config"
	"packtrack/internal/database"
	"packtrack/internal/notifications"
	"packtrack/internal/packs"
	"packtrack/internal/storage"
	"packtrack/internal/users"

	"github.com/gin-gonic/gin"
)

// Deps are the services the API is built from. Storage may be nil.
type Deps struct {
	DB            database.Service
	Storage       storage.Service
	Auth          auth.Service
	Users         users.Service
	Packs         packs.Service
	Notifications notifications.Service
}

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg *config.Config

	db            database.Service
	storage       storage.Service
	auth          auth.Service
	users         users.Service
	packs         packs.Service
	notifications notifications.Service
}

// New creates the API server
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:           cfg,
		db:            deps.DB,
		storage:       deps.Storage,
		auth:          deps.Auth,
		users:         deps.Users,
		packs:         deps.Packs,
		notifications: deps.Notifications,
	}
}

// HTTPServer wraps the router in an http.Server with the configured timeouts
func (s *Server) HTTPServer() *http.Server {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.RegisterRoutes(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	slog.Info("HTTP server configured", "port", s.cfg.Port, "env", s.cfg.AppEnv)
	return server
}
