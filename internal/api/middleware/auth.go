package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-mailstore/internal/services"
)

// sessionContextKey is the echo context key the authenticated session is
// stored under.
const sessionContextKey = "mailstore_session"

// SessionRegistry tracks live API sessions by their bearer token. The token
// is the session identifier issued at login.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*services.Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*services.Session)}
}

// Put registers a session and returns its bearer token.
func (r *SessionRegistry) Put(session *services.Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session.ID
}

// Get looks up a session by token.
func (r *SessionRegistry) Get(token string) (*services.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[token]
	return session, ok
}

// Remove drops a session, invalidating its token.
func (r *SessionRegistry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// SessionAuth validates the bearer token against the registry and stashes
// the session in the request context.
func SessionAuth(registry *SessionRegistry, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if logger != nil {
					logger.Warn("missing authorization header",
						slog.String("ip", c.RealIP()),
						slog.String("path", c.Path()))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "missing authorization header",
					"code":  "UNAUTHORIZED",
				})
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			session, ok := registry.Get(token)
			if !ok {
				if logger != nil {
					logger.Warn("invalid session token",
						slog.String("ip", c.RealIP()),
						slog.String("path", c.Path()))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "invalid or expired session token",
					"code":  "UNAUTHORIZED",
				})
			}

			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// SessionFromContext returns the session placed by SessionAuth, or nil.
func SessionFromContext(c echo.Context) *services.Session {
	session, _ := c.Get(sessionContextKey).(*services.Session)
	return session
}
