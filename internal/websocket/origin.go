package websocket

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

// defaultOrigin is accepted when no origins are configured.
const defaultOrigin = "http://localhost:3000"

// allowedOriginSet parses the ALLOWED_ORIGINS environment variable into a
// lookup set, falling back to the local dev frontend when it is empty.
func allowedOriginSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			set[origin] = struct{}{}
		}
	}
	if len(set) == 0 {
		set[defaultOrigin] = struct{}{}
	}
	return set
}

// NewSecureUpgrader creates a WebSocket upgrader that only accepts upgrades
// from the configured origins. Requests without an Origin header are treated
// as same-origin and allowed.
func NewSecureUpgrader(logger *slog.Logger) websocket.Upgrader {
	origins := allowedOriginSet()

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := origins[origin]; ok {
				return true
			}
			if logger != nil {
				logger.Warn("rejected websocket connection",
					slog.String("origin", origin),
					slog.String("remote_ip", r.RemoteAddr))
			}
			return false
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// DefaultUpgrader returns an upgrader that allows all origins (for development)
func DefaultUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
