package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/api/middleware"
	"github.com/welldanyogia/webrana-mailstore/internal/api/response"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
)

// AuthHandler handles login and logout HTTP requests
type AuthHandler struct {
	manager  *services.MailboxManager
	registry *middleware.SessionRegistry
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(manager *services.MailboxManager, registry *middleware.SessionRegistry) *AuthHandler {
	return &AuthHandler{manager: manager, registry: registry}
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Credential string `json:"credential" validate:"required"`
}

// LoginResponse carries the bearer token of the opened session
type LoginResponse struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Locales  []string `json:"locales,omitempty"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.Username == "" || req.Credential == "" {
		return response.BadRequest(c, "username and credential are required")
	}

	session, err := h.manager.Login(c.Request().Context(), req.Username, req.Credential)
	if err != nil {
		if errors.Is(err, coreerrors.ErrAuthenticationFailed) {
			// Hide whether the user exists or the credential was wrong.
			err = coreerrors.NewAppError(err, "authentication failed", coreerrors.CodeAuthenticationFailed)
		}
		return response.Error(c, err)
	}

	token := h.registry.Put(session)
	return response.Success(c, LoginResponse{
		Token:    token,
		Username: session.Username(),
		Locales:  session.Locales(),
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	session := middleware.SessionFromContext(c)
	if session != nil {
		h.registry.Remove(session.ID)
	}
	return response.NoContent(c)
}
