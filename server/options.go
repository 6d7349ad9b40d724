package server

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/cubeflix/csh/internal/ratelimit"
)

// Option is a functional option for configuring a CSH Server: small
// single-purpose constructors returning a closure applied in
// NewServer.
type Option func(*Server) error

// WithRoot sets the server's jailed filesystem root. Required.
func WithRoot(root string) Option {
	return func(s *Server) error {
		s.rootPath = root
		return nil
	}
}

// WithUsersFile sets the path to the JSON users store. Required.
func WithUsersFile(path string) Option {
	return func(s *Server) error {
		s.usersFile = path
		return nil
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithTLS enables TLS on the listening socket.
func WithTLS(config *tls.Config) Option {
	return func(s *Server) error {
		s.tlsConfig = config
		return nil
	}
}

// WithServerName sets the server's display name, returned by the
// status command and settings snapshot.
func WithServerName(name string) Option {
	return func(s *Server) error {
		s.settings.serverName = name
		return nil
	}
}

// WithBacklog sets the listen backlog hint (best-effort; Go's net
// package doesn't expose backlog directly on all platforms, but the
// value is retained for parity with the config-file schema).
func WithBacklog(n int) Option {
	return func(s *Server) error {
		s.backlog = n
		return nil
	}
}

// WithRateLimitRules sets the multi-window per-IP admission-control
// rule set (§3 "Rate-limit rule set").
func WithRateLimitRules(rules []ratelimit.Rule) Option {
	return func(s *Server) error {
		s.settings.rateLimitRules = rules
		return nil
	}
}

// WithSessionLimit caps concurrent sessions per user. 0 disables the
// limit.
func WithSessionLimit(n int) Option {
	return func(s *Server) error {
		s.settings.sessionLimit = n
		return nil
	}
}

// WithSessionExpiration sets the default session TTL (seconds, 0 =
// never expires) and whether clients may request their own
// expiration at login.
func WithSessionExpiration(defaultExpireSeconds int, allowChange bool) Option {
	return func(s *Server) error {
		s.settings.defaultExpireSeconds = defaultExpireSeconds
		s.settings.allowChangeExpire = allowChange
		return nil
	}
}

// WithSessionExpirationDelay sets the sweeper's poll period, seconds.
func WithSessionExpirationDelay(seconds int) Option {
	return func(s *Server) error {
		s.settings.sessionExpirationDelay = seconds
		return nil
	}
}

// WithMetricsCollector sets an optional metrics sink.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithReadTimeout bounds how long a connection's single request read
// may take. 0 disables the timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds how long a connection's single response
// write may take. 0 disables the timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.writeTimeout = d
		return nil
	}
}
