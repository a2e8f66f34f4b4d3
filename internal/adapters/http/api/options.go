package api

import (
	"net/http"
	"strings"

	"github.com/okian/rsvp/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAdmins enables the admin routes for the given username to bcrypt hash
// map.
func WithAdmins(admins map[string]string) Option {
	return func(s *Server) {
		if len(admins) == 0 {
			return
		}
		s.admins = make(map[string][]byte, len(admins))
		for user, hash := range admins {
			s.admins[user] = []byte(hash)
		}
	}
}

// WithLive mounts the live feed handler at /rsvps/live.
func WithLive(h http.Handler) Option {
	return func(s *Server) { s.live = h }
}

// WithCORSOrigins sets the allowed browser origins. Empty allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes caps POST /rsvp bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithQRTarget sets where GET /qr redirects.
func WithQRTarget(target string) Option {
	return func(s *Server) {
		if t := strings.TrimSpace(target); t != "" {
			s.qrTarget = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}
