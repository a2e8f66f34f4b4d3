package live

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithBuffer sets how many frames may wait per subscriber before it is dropped.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithPingInterval sets the keepalive period. Pong wait is twice this value.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithWriteWait bounds each frame write.
func WithWriteWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeWait = d
		}
	}
}

// WithOrigins restricts websocket upgrades to the listed origins. An empty
// list or "*" allows any origin.
func WithOrigins(origins []string) Option {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o == "*" {
				return
			}
			if o != "" {
				allowed[strings.ToLower(o)] = true
			}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		}
	}
}
