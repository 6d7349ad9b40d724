package server

import (
	"os/exec"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
	"github.com/cubeflix/csh/internal/ratelimit"
	"github.com/cubeflix/csh/internal/userstore"
)

// Admin command IDs, the fixed dispatch table of §4.5.
const (
	adminShutdown = iota
	adminCreateUser
	adminGetUser
	adminUpdateUser
	adminDeleteUser
	adminClearSessions
	adminUpdateRateLimit
	adminUpdateServerName
	adminUpdateSessionExpiration
	adminFormat
	adminBackup
	adminGetServerPath
	adminRunShell
	adminAllUsers
	adminUpdateMaxSessions
	adminGetAllSettings
)

// handleAdmin implements §4.3/§4.5: authenticate with admin
// credentials (the reference server does not additionally require
// permission "a" — see the Open Question resolution in SPEC_FULL.md
// §9.[FULL], not tightened here), then dispatch admin_command.
func (s *Server) handleAdmin(req codec.Mapping) codec.Mapping {
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

	cmdID, ok := getInt(req, "admin_command")
	if !ok {
		return errorReply(protoerr.CommandConstructionFailed, "missing admin_command")
	}
	args, ok := getMapping(req, "args")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing args mapping")
	}

	reply := s.runAdminCommand(int(cmdID), args)
	if s.metricsCollector != nil {
		code, _ := reply.Get("code")
		s.metricsCollector.RecordAdminCommand(adminCommandName(int(cmdID)), code == int64(protoerr.OK))
	}
	return reply
}

func (s *Server) runAdminCommand(cmdID int, args codec.Mapping) codec.Mapping {
	switch cmdID {
	case adminShutdown:
		s.requestShutdown()
		return okReply()

	case adminCreateUser:
		return s.adminCreateUserHandler(args)

	case adminGetUser:
		return s.adminGetUserHandler(args)

	case adminUpdateUser:
		return s.adminUpdateUserHandler(args)

	case adminDeleteUser:
		return s.adminDeleteUserHandler(args)

	case adminClearSessions:
		s.sessionTable.Clear()
		return okReply()

	case adminUpdateRateLimit:
		return s.adminUpdateRateLimitHandler(args)

	case adminUpdateServerName:
		return s.adminUpdateServerNameHandler(args)

	case adminUpdateSessionExpiration:
		return s.adminUpdateSessionExpirationHandler(args)

	case adminFormat:
		if err := s.fsops.Format(); err != nil {
			return errorReply(protoerr.FilesystemError, err.Error())
		}
		return okReply()

	case adminBackup:
		return s.adminBackupHandler(args)

	case adminGetServerPath:
		return codec.Mapping{"code": int64(protoerr.OK), "data": s.fsops.Root()}

	case adminRunShell:
		return s.adminRunShellHandler(args)

	case adminAllUsers:
		names := s.users.All()
		data := make(codec.List, len(names))
		for i, n := range names {
			data[i] = n
		}
		return codec.Mapping{"code": int64(protoerr.OK), "data": data}

	case adminUpdateMaxSessions:
		limit, ok := getInt(args, "session_limit")
		if !ok {
			return errorReply(protoerr.MissingArgs, "missing session_limit")
		}
		s.settings.SetSessionLimit(int(limit))
		return okReply()

	case adminGetAllSettings:
		snap := s.settings.Snapshot()
		snap["code"] = int64(protoerr.OK)
		return snap

	default:
		return errorReply(protoerr.UnknownCommand, "unknown admin command")
	}
}

func (s *Server) adminCreateUserHandler(args codec.Mapping) codec.Mapping {
	username, uok := getString(args, "username")
	password, pok := getString(args, "password")
	perm, permOk := getString(args, "permissions")
	if !uok || !pok || !permOk {
		return errorReply(protoerr.MissingArgs, "missing username, password, or permissions")
	}
	if err := s.users.Create(username, password, userstore.Permission(perm)); err != nil {
		return errorReply(protoerr.FilesystemError, err.Error())
	}
	return okReply()
}

func (s *Server) adminGetUserHandler(args codec.Mapping) codec.Mapping {
	username, ok := getString(args, "username")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing username")
	}
	user, ok := s.users.Get(username)
	if !ok {
		return errorReply(protoerr.UserNotFound, "user does not exist")
	}
	return codec.Mapping{
		"code":          int64(protoerr.OK),
		"password_hash": user.PasswordHash,
		"permissions":   string(user.Permissions),
	}
}

func (s *Server) adminUpdateUserHandler(args codec.Mapping) codec.Mapping {
	username, uok := getString(args, "username")
	toModify, mok := getMapping(args, "to_modify")
	if !uok || !mok {
		return errorReply(protoerr.MissingArgs, "missing username or to_modify")
	}
	patch := make(map[string]any, len(toModify))
	for k, v := range toModify {
		patch[k] = v
	}
	if err := s.users.Update(username, patch); err != nil {
		return errorReply(protoerr.UserNotFound, err.Error())
	}
	return okReply()
}

func (s *Server) adminDeleteUserHandler(args codec.Mapping) codec.Mapping {
	username, ok := getString(args, "username")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing username")
	}
	if err := s.users.Delete(username); err != nil {
		return errorReply(protoerr.FilesystemError, err.Error())
	}
	return okReply()
}

func (s *Server) adminUpdateRateLimitHandler(args codec.Mapping) codec.Mapping {
	rules, err := parseRateLimitRules(args)
	if err != nil {
		return errorReply(protoerr.CommandConstructionFailed, err.Error())
	}
	s.settings.SetRateLimitRules(rules)
	s.rateLimiter.Reset(rules)
	return okReply()
}

// parseRateLimitRules decodes the "new_limit" argument: a list of
// [window_seconds, max_requests] pairs, or null/missing for "no
// limit".
func parseRateLimitRules(args codec.Mapping) ([]ratelimit.Rule, error) {
	v, ok := args.Get("new_limit")
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.(codec.List)
	if !ok {
		return nil, protoerr.New(protoerr.CommandConstructionFailed, "new_limit must be a list")
	}
	rules := make([]ratelimit.Rule, 0, len(list))
	for _, item := range list {
		pair, ok := item.(codec.List)
		if !ok || len(pair) != 2 {
			return nil, protoerr.New(protoerr.CommandConstructionFailed, "rate limit entries must be 2-element lists")
		}
		window, wok := pair[0].(int64)
		max, mok := pair[1].(int64)
		if !wok || !mok {
			return nil, protoerr.New(protoerr.CommandConstructionFailed, "rate limit entries must be integers")
		}
		rules = append(rules, ratelimit.Rule{WindowSeconds: int(window), MaxRequests: int(max)})
	}
	return rules, nil
}

func (s *Server) adminUpdateServerNameHandler(args codec.Mapping) codec.Mapping {
	name, ok := getString(args, "name")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing name")
	}
	s.settings.SetServerName(name)
	return okReply()
}

func (s *Server) adminUpdateSessionExpirationHandler(args codec.Mapping) codec.Mapping {
	defaultExpire, dok := getInt(args, "default_expire")
	allowChange, aok := getBool(args, "allow_change_expire")
	if !dok || !aok {
		return errorReply(protoerr.MissingArgs, "missing default_expire or allow_change_expire")
	}
	s.settings.SetSessionExpiration(int(defaultExpire), allowChange)
	return okReply()
}

func (s *Server) adminRunShellHandler(args codec.Mapping) codec.Mapping {
	command, ok := getString(args, "command")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing command")
	}
	cmd := exec.Command("/bin/sh", "-c", command)
	if err := cmd.Run(); err != nil {
		s.logger.Warn("run_shell command failed", "error", err)
	}
	return okReply()
}

func adminCommandName(cmdID int) string {
	switch cmdID {
	case adminShutdown:
		return "shutdown"
	case adminCreateUser:
		return "create_user"
	case adminGetUser:
		return "get_user"
	case adminUpdateUser:
		return "update_user"
	case adminDeleteUser:
		return "delete_user"
	case adminClearSessions:
		return "clear_sessions"
	case adminUpdateRateLimit:
		return "update_rate_limit"
	case adminUpdateServerName:
		return "update_server_name"
	case adminUpdateSessionExpiration:
		return "update_session_expiration"
	case adminFormat:
		return "format"
	case adminBackup:
		return "backup"
	case adminGetServerPath:
		return "get_server_path"
	case adminRunShell:
		return "run_shell"
	case adminAllUsers:
		return "all_users"
	case adminUpdateMaxSessions:
		return "update_max_sessions"
	case adminGetAllSettings:
		return "get_all_settings"
	default:
		return "unknown"
	}
}
