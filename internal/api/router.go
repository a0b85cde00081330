// Package api exposes the mailstore over HTTP.
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/api/handlers"
	"github.com/welldanyogia/webrana-mailstore/internal/api/middleware"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
	"github.com/welldanyogia/webrana-mailstore/internal/websocket"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Manager *services.MailboxManager
	Hub     *websocket.Hub
	DB      *gorm.DB // nil for non-SQL backends
	Logger  *slog.Logger
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover(cfg.Logger))
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	registry := middleware.NewSessionRegistry()

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	authHandler := handlers.NewAuthHandler(cfg.Manager, registry)
	mailboxHandler := handlers.NewMailboxHandler(cfg.Manager)
	messageHandler := handlers.NewMessageHandler(cfg.Manager)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	api := e.Group("/api")

	// Login is the only unauthenticated API route
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.SessionAuth(registry, cfg.Logger))
	authed.POST("/auth/logout", authHandler.Logout)

	// Mailbox routes
	authed.POST("/mailboxes", mailboxHandler.Create)
	authed.GET("/mailboxes", mailboxHandler.List)
	authed.DELETE("/mailboxes/:name", mailboxHandler.Delete)
	authed.PUT("/mailboxes/:name/rename", mailboxHandler.Rename)
	authed.PUT("/mailboxes/:name/acl", mailboxHandler.SetACL)

	// Message routes (nested under mailboxes)
	authed.GET("/mailboxes/:name/messages", messageHandler.List)
	authed.POST("/mailboxes/:name/messages", messageHandler.Append)
	authed.GET("/mailboxes/:name/messages/:uid/content", messageHandler.Content)
	authed.PATCH("/mailboxes/:name/messages/flags", messageHandler.SetFlags)
	authed.POST("/mailboxes/:name/messages/expunge", messageHandler.Expunge)
	authed.POST("/mailboxes/:name/messages/copy", messageHandler.Copy)

	// Event stream
	if cfg.Hub != nil {
		wsHandler := handlers.NewWSHandler(cfg.Hub, cfg.Manager, websocket.NewSecureUpgrader(cfg.Logger), cfg.Logger)
		authed.GET("/ws", wsHandler.Serve)
	}

	return e
}
