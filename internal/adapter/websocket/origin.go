package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// OriginPolicy decides which browser origins may open realtime connections.
// Empty origins (non-browser clients), obs:// (OBS browser sources) and the app's
// own origin are always allowed; localhost only in development.
type OriginPolicy struct {
	appOrigin     string
	isDevelopment bool
}

func NewOriginPolicy(appURL string, isDevelopment bool) OriginPolicy {
	return OriginPolicy{appOrigin: extractOrigin(appURL), isDevelopment: isDevelopment}
}

// CheckOrigin has the signature gorilla's Upgrader expects.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	switch {
	case origin == "":
		return true
	case strings.HasPrefix(origin, "obs://"):
		return true
	case origin == p.appOrigin:
		return true
	case p.isDevelopment && isLocalhostOrigin(origin):
		return true
	}

	slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

// Upgrader returns a gorilla upgrader enforcing this policy.
func (p OriginPolicy) Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     p.CheckOrigin,
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
