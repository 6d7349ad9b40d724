// Package server implements the CSH protocol server: the accept loop,
// per-connection request/response handling, and the session- and
// admin-command dispatch tables described by the wire protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"crypto/tls"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
	"github.com/cubeflix/csh/internal/ratelimit"
	"github.com/cubeflix/csh/internal/sessions"
	"github.com/cubeflix/csh/internal/userstore"
)

// Server is the CSH server.
//
// Construct with NewServer, run with ListenAndServe or Serve, stop
// with Shutdown. Each accepted connection carries exactly one request
// and one response before it is closed (§4.2).
type Server struct {
	addr string

	logger    *slog.Logger
	tlsConfig *tls.Config

	rootPath  string
	usersFile string
	backlog   int

	settings *Settings

	users        *userstore.Store
	sessionTable *sessions.Table
	rateLimiter  *ratelimit.Limiter
	fsops        *FSOps

	metricsCollector MetricsCollector

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu          sync.Mutex
	listener    net.Listener
	conns       map[net.Conn]struct{}
	activeConns atomic.Int32
	inShutdown  atomic.Bool

	shutdownRequested chan struct{}
	shutdownOnce      sync.Once
}

// ShutdownRequested returns a channel that is closed once the admin
// "shutdown" command (id 0) has been received. cmd/cshd watches this
// channel to drive graceful process shutdown and settings persistence.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownRequested
}

// requestShutdown signals ShutdownRequested exactly once.
func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownRequested) })
}

// Users exposes the user store for cmd/cshd's first-run bootstrap.
func (s *Server) Users() *userstore.Store { return s.users }

// Settings exposes the runtime settings object, used by cmd/cshd to
// write touched settings back to the config file at shutdown.
func (s *Server) Settings() *Settings { return s.settings }

// ErrServerClosed is returned by Serve and ListenAndServe after a call
// to Shutdown.
var ErrServerClosed = errors.New("csh: server closed")

// NewServer creates a CSH server listening on addr once started.
// WithRoot and WithUsersFile are required.
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:              addr,
		logger:            slog.Default(),
		settings:          newSettings(),
		conns:             make(map[net.Conn]struct{}),
		shutdownRequested: make(chan struct{}),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.rootPath == "" {
		return nil, fmt.Errorf("csh: root is required (use WithRoot)")
	}
	if s.usersFile == "" {
		return nil, fmt.Errorf("csh: users file is required (use WithUsersFile)")
	}

	users, err := userstore.Open(s.usersFile)
	if err != nil {
		return nil, fmt.Errorf("csh: opening users file: %w", err)
	}
	s.users = users

	fsops, err := NewFSOps(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("csh: opening root: %w", err)
	}
	s.fsops = fsops

	s.rateLimiter = ratelimit.New(s.settings.RateLimitRules())

	s.sessionTable = sessions.New()
	sweep := time.Duration(s.settings.SessionExpirationDelay()) * time.Second
	s.sessionTable.Start(sweep)

	return s, nil
}

// ListenAndServe opens a TCP (or TLS, if WithTLS was used) listener on
// the configured address and serves until Shutdown or a fatal error.
func (s *Server) ListenAndServe() error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("csh: listen on %s: %w", s.addr, err)
	}
	s.logger.Info("csh server listening", "addr", s.addr)
	return s.Serve(ln)
}

// Shutdown stops accepting new connections, waits for in-flight
// connections to finish (or ctx to expire, forcibly closing the
// rest), persists touched settings are the caller's responsibility
// (see cmd/cshd), and stops the session table's background
// goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for s.activeConns.Load() != 0 {
			time.Sleep(50 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		conns := s.conns
		s.conns = make(map[net.Conn]struct{})
		s.mu.Unlock()
		for conn := range maps.Keys(conns) {
			conn.Close()
		}
		if err == nil {
			err = ctx.Err()
		}
	}

	s.sessionTable.Stop()
	s.fsops.Close()
	return err
}

// Serve accepts connections on l, one goroutine per connection, until
// l is closed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// handleConnection implements §4.2/§5.2: read exactly one frame,
// dispatch it, write exactly one frame in response, close.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		conn.Close()
		return
	}
	defer func() {
		s.trackConnection(conn, false)
		conn.Close()
	}()

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	peerIP := peerIPOf(conn)

	if s.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	if !s.rateLimiter.Allow(peerIP) {
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, "rate_limited")
		}
		s.writeReply(conn, errorReply(protoerr.RateLimitExceeded, "rate limit exceeded"))
		return
	}
	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	raw, err := codec.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, codec.ErrBadMagic) {
			if s.writeTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			s.writeReply(conn, errorReply(protoerr.BadMagic, "bad frame magic"))
		}
		// Anything else (truncated header, dead peer) leaves nothing
		// trustworthy to frame a reply around.
		return
	}

	reply := s.handleFrame(raw, peerIP)

	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	s.writeReply(conn, reply)
}

// handleFrame decodes and routes a single request payload, recovering
// from any panic in command handling into code 11, matching §7's
// top-level-exception policy.
func (s *Server) handleFrame(raw []byte, peerIP string) (reply codec.Mapping) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in connection handler", "panic", r)
			reply = errorReply(protoerr.TopLevelException, fmt.Sprintf("internal error: %v", r))
		}
	}()

	decoded, err := codec.Unmarshal(raw)
	if err != nil {
		return errorReply(protoerr.TopLevelException, err.Error())
	}
	req, ok := decoded.(codec.Mapping)
	if !ok {
		return errorReply(protoerr.TopLevelException, "request payload is not a mapping")
	}

	return s.dispatch(req, peerIP)
}

// writeReply encodes and sends reply, matching the reference
// implementation's respond(): on a serialization failure it makes one
// fallback attempt to send code 21 instead, and on a send failure it
// makes one fallback attempt to send code 7 instead. Either fallback
// failing is given up on rather than retried again, to avoid looping.
func (s *Server) writeReply(conn net.Conn, reply codec.Mapping) {
	payload, err := codec.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to encode reply", "error", err)
		s.writeFallbackReply(conn, protoerr.SerializationFailure, "serialization failure in response path")
		return
	}
	if err := codec.WriteFrame(conn, payload); err != nil {
		s.logger.Debug("failed to write reply frame", "error", err)
		s.writeFallbackReply(conn, protoerr.RespondFailure, "failure while responding")
	}
}

// writeFallbackReply makes a single attempt to encode and send an
// error reply after the primary reply failed. It never recurses into
// writeReply, since that could fail the same way again.
func (s *Server) writeFallbackReply(conn net.Conn, code protoerr.Code, msg string) {
	payload, err := codec.Marshal(errorReply(code, msg))
	if err != nil {
		s.logger.Error("failed to encode fallback reply", "error", err)
		return
	}
	if err := codec.WriteFrame(conn, payload); err != nil {
		s.logger.Debug("failed to write fallback reply frame", "error", err)
	}
}

func peerIPOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return false
	}
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return true
}
