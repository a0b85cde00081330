package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/api/middleware"
	"github.com/welldanyogia/webrana-mailstore/internal/api/response"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
)

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	manager *services.MailboxManager
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(manager *services.MailboxManager) *MessageHandler {
	return &MessageHandler{manager: manager}
}

// SetFlagsRequest represents the request body for a flag update
type SetFlagsRequest struct {
	UIDs   []uint32 `json:"uids" validate:"required"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// CopyRequest represents the request body for copying messages
type CopyRequest struct {
	UIDs            []uint32 `json:"uids" validate:"required"`
	Destination     string   `json:"destination" validate:"required"`
	DestinationUser string   `json:"destination_user"`
}

// AppendResponse carries the UID assigned to an appended message
type AppendResponse struct {
	UID uint32 `json:"uid"`
}

// open resolves the mailbox of the route and the session, shared by all
// message endpoints.
func (h *MessageHandler) open(c echo.Context) (*services.Session, *services.MessageManager, error) {
	session := middleware.SessionFromContext(c)
	mailbox, err := h.manager.GetMailbox(c.Request().Context(), session, mailboxPath(c, session))
	if err != nil {
		return nil, nil, err
	}
	return session, mailbox, nil
}

// parseUIDSet parses the uids query parameter: comma separated UIDs or
// from-to ranges ("5", "3-7").
func parseUIDSet(raw string) (services.UIDSet, bool) {
	if raw == "" {
		return nil, false
	}
	var set services.UIDSet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, err1 := strconv.ParseUint(from, 10, 32)
			hi, err2 := strconv.ParseUint(to, 10, 32)
			if err1 != nil || err2 != nil {
				return nil, false
			}
			set = append(set, services.UIDRange{From: uint32(lo), To: uint32(hi)})
		} else {
			uid, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil, false
			}
			set = append(set, services.UIDRange{From: uint32(uid), To: uint32(uid)})
		}
	}
	return set, true
}

// parseProperties parses the properties query parameter. Absent means all
// properties; "none" means identifiers only.
func parseProperties(raw string) []services.Property {
	if raw == "" {
		return nil
	}
	if raw == "none" {
		return []services.Property{}
	}
	var props []services.Property
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			props = append(props, services.Property(part))
		}
	}
	return props
}

// List handles GET /api/mailboxes/:name/messages
func (h *MessageHandler) List(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	set, ok := parseUIDSet(c.QueryParam("uids"))
	if !ok {
		set = services.UIDSet{{From: 1, To: ^uint32(0)}}
	}

	views, err := mailbox.GetMessages(c.Request().Context(), session, set, parseProperties(c.QueryParam("properties")))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, views)
}

// Append handles POST /api/mailboxes/:name/messages. The request body is
// the raw message content.
func (h *MessageHandler) Append(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	var flags []string
	if raw := c.QueryParam("flags"); raw != "" {
		flags = strings.Split(raw, ",")
	}

	uid, err := mailbox.Append(c.Request().Context(), session, c.Request().Body, time.Now().UTC(), false, flags)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, AppendResponse{UID: uid})
}

// Content handles GET /api/mailboxes/:name/messages/:uid/content
func (h *MessageHandler) Content(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid uid")
	}

	content, err := mailbox.GetContent(c.Request().Context(), session, uint32(uid))
	if err != nil {
		return response.Error(c, err)
	}
	defer content.Close()

	c.Response().Header().Set(echo.HeaderContentType, "message/rfc822")
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), content)
	return err
}

// SetFlags handles PATCH /api/mailboxes/:name/messages/flags
func (h *MessageHandler) SetFlags(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req SetFlagsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if len(req.UIDs) == 0 {
		return response.BadRequest(c, "uids are required")
	}

	updated, err := mailbox.SetFlags(c.Request().Context(), session, services.UIDSetOf(req.UIDs...), services.FlagDelta{
		Add:    req.Add,
		Remove: req.Remove,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, updated)
}

// Expunge handles POST /api/mailboxes/:name/messages/expunge
func (h *MessageHandler) Expunge(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	uids, err := mailbox.Expunge(c.Request().Context(), session)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, uids)
}

// Copy handles POST /api/mailboxes/:name/messages/copy
func (h *MessageHandler) Copy(c echo.Context) error {
	session, mailbox, err := h.open(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req CopyRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if len(req.UIDs) == 0 || req.Destination == "" {
		return response.BadRequest(c, "uids and destination are required")
	}

	destUser := req.DestinationUser
	if destUser == "" {
		destUser = session.Username()
	}

	uids, err := mailbox.Copy(c.Request().Context(), session, services.UIDSetOf(req.UIDs...), models.PersonalPath(destUser, req.Destination))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, uids)
}
