package server

import (
	"runtime"
	"time"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
)

const serverVersion = "1.3.3"
const serverLanguage = "go"

// dispatch routes a decoded request mapping to its handler per §4.3.
func (s *Server) dispatch(req codec.Mapping, peerIP string) codec.Mapping {
	cmdVal, ok := req.Get("command")
	if !ok {
		return errorReply(protoerr.MissingCommand, "missing command field")
	}

	switch v := cmdVal.(type) {
	case string:
		switch v {
		case "L":
			return s.handleLogin(req, peerIP)
		case "I":
			return s.handleStatus()
		case "A":
			return s.handleAdmin(req)
		case "CS":
			return s.handleClearUserSessions(req)
		default:
			return errorReply(protoerr.UnknownCommand, "unknown command")
		}
	case int64:
		return s.handleSessionCommand(int(v), req, peerIP)
	default:
		return errorReply(protoerr.UnknownCommand, "unknown command")
	}
}

// handleLogin implements §4.8.
func (s *Server) handleLogin(req codec.Mapping, peerIP string) codec.Mapping {
	username, uok := getString(req, "username")
	password, pok := getString(req, "password")
	if !uok || !pok {
		return errorReply(protoerr.MissingCredentials, "missing username or password")
	}

	if !s.users.Exists(username) {
		if s.metricsCollector != nil {
			s.metricsCollector.RecordAuthentication(false, username)
		}
		return errorReply(protoerr.UserNotFound, "user does not exist")
	}
	if !s.users.Verify(username, password) {
		if s.metricsCollector != nil {
			s.metricsCollector.RecordAuthentication(false, username)
		}
		return errorReply(protoerr.PasswordMismatch, "password mismatch")
	}

	expireAfter := time.Duration(s.settings.DefaultExpireSeconds()) * time.Second
	if s.settings.AllowChangeExpire() {
		if requested, ok := getInt(req, "expiration_time"); ok {
			expireAfter = time.Duration(requested) * time.Second
		}
	}

	sess, ok := s.sessionTable.Create(username, peerIP, expireAfter, s.settings.SessionLimit())
	if !ok {
		return errorReply(protoerr.SessionLimitReached, "per-user session limit reached")
	}

	if s.metricsCollector != nil {
		s.metricsCollector.RecordAuthentication(true, username)
	}

	return codec.Mapping{
		"code":       int64(protoerr.OK),
		"session_id": sess.ID,
		"timestamp":  utcTimestamp(),
	}
}

// handleStatus implements §4.9.
func (s *Server) handleStatus() codec.Mapping {
	return codec.Mapping{
		"code":      int64(protoerr.OK),
		"status":    "OK",
		"timestamp": utcTimestamp(),
		"version":   serverVersion,
		"name":      s.settings.ServerName(),
		"os":        runtime.GOOS,
		"language":  serverLanguage,
	}
}

// handleClearUserSessions implements the "CS" shape: authenticate with
// user credentials, then drop every session that user holds.
func (s *Server) handleClearUserSessions(req codec.Mapping) codec.Mapping {
	username, uok := getString(req, "username")
	password, pok := getString(req, "password")
	if !uok || !pok {
		return errorReply(protoerr.MissingCredentials, "missing username or password")
	}
	if !s.users.Exists(username) {
		return errorReply(protoerr.UserNotFound, "user does not exist")
	}
	if !s.users.Verify(username, password) {
		return errorReply(protoerr.PasswordMismatch, "password mismatch")
	}
	s.sessionTable.ClearUser(username)
	return okReply()
}
