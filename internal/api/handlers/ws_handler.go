package handlers

import (
	"context"
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/api/middleware"
	"github.com/welldanyogia/webrana-mailstore/internal/api/response"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
	"github.com/welldanyogia/webrana-mailstore/internal/websocket"
)

// WSHandler upgrades HTTP connections into event stream subscribers.
type WSHandler struct {
	hub      *websocket.Hub
	manager  *services.MailboxManager
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *websocket.Hub, manager *services.MailboxManager, upgrader gorillaws.Upgrader, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: hub, manager: manager, upgrader: upgrader, logger: logger}
}

// Serve handles GET /api/ws. Subscriptions are checked against the
// session's rights, so a connection only streams mailboxes its user can
// look up.
func (h *WSHandler) Serve(c echo.Context) error {
	session := middleware.SessionFromContext(c)
	if session == nil {
		return response.Unauthorized(c, "authentication required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return response.BadRequest(c, "websocket upgrade failed")
	}

	// The request context ends when this handler returns; authorization
	// checks run for the life of the connection.
	authorize := func(mailboxID uint) error {
		return h.manager.WatchMailbox(context.Background(), session, mailboxID)
	}

	client := websocket.NewClient(h.hub, conn, authorize, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return nil
}
