package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/acl"
	"github.com/welldanyogia/webrana-mailstore/internal/api/middleware"
	"github.com/welldanyogia/webrana-mailstore/internal/api/response"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
)

// MailboxHandler handles mailbox-related HTTP requests
type MailboxHandler struct {
	manager *services.MailboxManager
}

// NewMailboxHandler creates a new MailboxHandler
func NewMailboxHandler(manager *services.MailboxManager) *MailboxHandler {
	return &MailboxHandler{manager: manager}
}

// mailboxPath resolves the target path of a mailbox route. The mailbox name
// comes from the route parameter; an optional owner query selects another
// user's namespace for shared access.
func mailboxPath(c echo.Context, session *services.Session) models.MailboxPath {
	owner := c.QueryParam("owner")
	if owner == "" {
		owner = session.Username()
	}
	return models.PersonalPath(owner, c.Param("name"))
}

// CreateMailboxRequest represents the request body for creating a mailbox
type CreateMailboxRequest struct {
	Name string `json:"name" validate:"required"`
}

// RenameMailboxRequest represents the request body for renaming a mailbox
type RenameMailboxRequest struct {
	NewName string `json:"new_name" validate:"required"`
}

// SetACLRequest represents the request body for granting rights
type SetACLRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Rights     string `json:"rights"`
}

// MailboxResponse is the API projection of a mailbox path
type MailboxResponse struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Create handles POST /api/mailboxes
func (h *MailboxHandler) Create(c echo.Context) error {
	session := middleware.SessionFromContext(c)

	var req CreateMailboxRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Name == "" {
		return response.BadRequest(c, "name is required")
	}

	path := models.PersonalPath(session.Username(), req.Name)
	if err := h.manager.CreateMailbox(c.Request().Context(), session, path); err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, MailboxResponse{Name: path.Name, Owner: path.User})
}

// List handles GET /api/mailboxes
func (h *MailboxHandler) List(c echo.Context) error {
	session := middleware.SessionFromContext(c)

	paths, err := h.manager.List(c.Request().Context(), session)
	if err != nil {
		return response.Error(c, err)
	}

	out := make([]MailboxResponse, 0, len(paths))
	for _, path := range paths {
		out = append(out, MailboxResponse{Name: path.Name, Owner: path.User})
	}
	return response.Success(c, out)
}

// Delete handles DELETE /api/mailboxes/:name
func (h *MailboxHandler) Delete(c echo.Context) error {
	session := middleware.SessionFromContext(c)

	if err := h.manager.DeleteMailbox(c.Request().Context(), session, mailboxPath(c, session)); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}

// Rename handles PUT /api/mailboxes/:name/rename
func (h *MailboxHandler) Rename(c echo.Context) error {
	session := middleware.SessionFromContext(c)

	var req RenameMailboxRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.NewName == "" {
		return response.BadRequest(c, "new_name is required")
	}

	oldPath := mailboxPath(c, session)
	newPath := models.PersonalPath(oldPath.User, req.NewName)
	if err := h.manager.RenameMailbox(c.Request().Context(), session, oldPath, newPath); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, MailboxResponse{Name: newPath.Name, Owner: newPath.User})
}

// SetACL handles PUT /api/mailboxes/:name/acl
func (h *MailboxHandler) SetACL(c echo.Context) error {
	session := middleware.SessionFromContext(c)

	var req SetACLRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Identifier == "" {
		return response.BadRequest(c, "identifier is required")
	}

	rights, err := acl.ParseRights(req.Rights)
	if err != nil {
		return response.BadRequest(c, "invalid rights string")
	}

	if err := h.manager.SetACL(c.Request().Context(), session, mailboxPath(c, session), req.Identifier, rights); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
