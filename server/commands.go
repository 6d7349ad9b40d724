package server

import (
	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/pathsandbox"
	"github.com/cubeflix/csh/internal/protoerr"
	"github.com/cubeflix/csh/internal/sessions"
	"github.com/cubeflix/csh/internal/userstore"
)

// Session command IDs, the fixed dispatch table of §4.4.
const (
	cmdLogout = iota
	cmdRead
	cmdWrite
	cmdDeleteFile
	cmdRename
	cmdMkdir
	cmdRmdir
	cmdList
	cmdMove
	cmdCopy
	cmdChdir
	cmdCWD
	cmdSize
	cmdExists
)

// readOnlySessionCommands requires at least permission "r".
var readOnlySessionCommands = map[int]bool{
	cmdLogout: true, cmdRead: true, cmdList: true, cmdChdir: true,
	cmdCWD: true, cmdSize: true, cmdExists: true,
}

// writeSessionCommands additionally requires permission "w".
var writeSessionCommands = map[int]bool{
	cmdWrite: true, cmdDeleteFile: true, cmdRename: true, cmdMkdir: true,
	cmdRmdir: true, cmdMove: true, cmdCopy: true,
}

// sessionCommandAllowed implements invariant 6: r performs the
// read-only set; w additionally performs the write set; a performs
// everything a session command can do.
func sessionCommandAllowed(perm userstore.Permission, cmdID int) bool {
	if perm == userstore.PermAdmin {
		return true
	}
	if readOnlySessionCommands[cmdID] {
		return true
	}
	if perm == userstore.PermWrite && writeSessionCommands[cmdID] {
		return true
	}
	return false
}

// handleSessionCommand implements §4.4's per-request validation order:
// session validity, permission, path sandboxing, existing-kind checks,
// the filesystem primitive, then reply shaping.
func (s *Server) handleSessionCommand(cmdID int, req codec.Mapping, peerIP string) codec.Mapping {
	username, uok := getString(req, "username")
	sessionID, sok := getString(req, "session_id")
	if !uok || !sok {
		return errorReply(protoerr.MissingSessionFields, "missing username or session_id")
	}
	args, aok := getMapping(req, "args")
	if !aok {
		return errorReply(protoerr.MissingArgs, "missing args mapping")
	}

	sess, valid := s.sessionTable.Validate(sessionID, peerIP)
	if !valid || sess.Username != username {
		return errorReply(protoerr.SessionInvalid, "session invalid or expired")
	}

	user, ok := s.users.Get(username)
	if !ok {
		return errorReply(protoerr.SessionInvalid, "session user no longer exists")
	}
	if !sessionCommandAllowed(user.Permissions, cmdID) {
		return errorReply(protoerr.PermissionDenied, "permission denied")
	}

	reply := s.runSessionCommand(cmdID, sess, args)
	if s.metricsCollector != nil {
		code, _ := reply.Get("code")
		s.metricsCollector.RecordCommand(sessionCommandName(cmdID), code == int64(protoerr.OK))
	}
	return reply
}

func (s *Server) runSessionCommand(cmdID int, sess *sessions.Session, args codec.Mapping) codec.Mapping {
	switch cmdID {
	case cmdLogout:
		if !s.sessionTable.Delete(sess.ID) {
			return errorReply(protoerr.LogoutFailure, "logout failed")
		}
		return okReply()

	case cmdRead:
		return s.cmdReadHandler(sess, args)

	case cmdWrite:
		return s.cmdWriteHandler(sess, args)

	case cmdDeleteFile:
		return s.cmdDeleteFileHandler(sess, args)

	case cmdRename:
		return s.cmdRenameHandler(sess, args)

	case cmdMkdir:
		return s.cmdMkdirHandler(sess, args)

	case cmdRmdir:
		return s.cmdRmdirHandler(sess, args)

	case cmdList:
		return s.cmdListHandler(sess, args)

	case cmdMove:
		return s.cmdMoveOrCopyHandler(sess, args, s.fsops.Move)

	case cmdCopy:
		return s.cmdMoveOrCopyHandler(sess, args, s.fsops.Copy)

	case cmdChdir:
		return s.cmdChdirHandler(sess, args)

	case cmdCWD:
		return codec.Mapping{"code": int64(protoerr.OK), "path": sess.CWD}

	case cmdSize:
		return s.cmdSizeHandler(sess, args)

	case cmdExists:
		return s.cmdExistsHandler(sess, args)

	default:
		return errorReply(protoerr.UnknownCommand, "unknown session command")
	}
}

// resolvePathArg sandbox-validates a path argument, returning a
// PathValidationFailure reply on escape so callers can return early.
func (s *Server) resolvePathArg(sess *sessions.Session, args codec.Mapping, key string) (string, codec.Mapping) {
	p, ok := getString(args, key)
	if !ok {
		return "", errorReply(protoerr.PathValidationFailure, "missing "+key)
	}
	abs, err := pathsandbox.Resolve(s.fsops.Root(), sess.CWD, p)
	if err != nil {
		return "", errorReply(protoerr.PathValidationFailure, "path escapes root")
	}
	return abs, nil
}

func (s *Server) cmdReadHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if exists, isFile, _ := s.fsops.Exists(abs); !exists || !isFile {
		return errorReply(protoerr.PathValidationFailure, "path is not a file")
	}
	start := getIntDefault(args, "start", 0)
	length := getIntDefault(args, "length", -1)
	data, err := s.fsops.Read(abs, start, length)
	if err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return codec.Mapping{"code": int64(protoerr.OK), "data": data}
}

func (s *Server) cmdWriteHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	data, ok := getBytes(args, "data")
	if !ok {
		return errorReply(protoerr.InvalidWriteData, "data must be bytes")
	}
	mode, ok := getString(args, "mode")
	if !ok || (mode != "wb" && mode != "ab") {
		return errorReply(protoerr.InvalidWriteMode, "mode must be \"wb\" or \"ab\"")
	}
	if err := s.fsops.Write(abs, data, mode); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

func (s *Server) cmdDeleteFileHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if exists, isFile, _ := s.fsops.Exists(abs); !exists || !isFile {
		return errorReply(protoerr.PathValidationFailure, "path is not a file")
	}
	if err := s.fsops.DeleteFile(abs); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

// cmdRenameHandler resolves new_name the same way copy/move resolve
// their destination argument, fixing the documented source bug where
// rename used the raw new_name unsandboxed.
func (s *Server) cmdRenameHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	srcAbs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	dstAbs, errReply := s.resolvePathArg(sess, args, "new_name")
	if errReply != nil {
		return errReply
	}
	if err := s.fsops.Rename(srcAbs, dstAbs); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

func (s *Server) cmdMkdirHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if err := s.fsops.Mkdir(abs); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

func (s *Server) cmdRmdirHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if exists, _, isDir := s.fsops.Exists(abs); !exists || !isDir {
		return errorReply(protoerr.PathValidationFailure, "path is not a directory")
	}
	if err := s.fsops.RmdirRecursive(abs); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

func (s *Server) cmdListHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if exists, _, isDir := s.fsops.Exists(abs); !exists || !isDir {
		return errorReply(protoerr.PathValidationFailure, "path is not a directory")
	}
	names, err := s.fsops.List(abs)
	if err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	data := make(codec.List, len(names))
	for i, n := range names {
		data[i] = n
	}
	return codec.Mapping{"code": int64(protoerr.OK), "data": data}
}

func (s *Server) cmdMoveOrCopyHandler(sess *sessions.Session, args codec.Mapping, op func(src, dst string) error) codec.Mapping {
	srcAbs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	dstAbs, errReply := s.resolvePathArg(sess, args, "destination")
	if errReply != nil {
		return errReply
	}
	if err := op(srcAbs, dstAbs); err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return okReply()
}

// cmdChdirHandler implements §4.4's chdir semantics and the source-bug
// fix noted in §9: the candidate CWD is validated against root before
// it replaces the session's CWD, never after.
func (s *Server) cmdChdirHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	p, ok := getString(args, "path")
	if !ok {
		return errorReply(protoerr.PathValidationFailure, "missing path")
	}
	newCWD, err := pathsandbox.ResolveNewCWD(s.fsops.Root(), sess.CWD, p)
	if err != nil {
		return errorReply(protoerr.PathValidationFailure, "path escapes root")
	}
	abs, err := pathsandbox.Resolve(s.fsops.Root(), sess.CWD, p)
	if err != nil {
		return errorReply(protoerr.PathValidationFailure, "path escapes root")
	}
	if exists, _, isDir := s.fsops.Exists(abs); !exists || !isDir {
		return errorReply(protoerr.PathValidationFailure, "path is not a directory")
	}
	s.sessionTable.SetCWD(sess.ID, newCWD)
	return okReply()
}

func (s *Server) cmdSizeHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	if exists, isFile, _ := s.fsops.Exists(abs); !exists || !isFile {
		return errorReply(protoerr.PathValidationFailure, "path is not a file")
	}
	size, err := s.fsops.Size(abs)
	if err != nil {
		return errorReplyFor(protoerr.FromFilesystem(err, mustString(args, "path")))
	}
	return codec.Mapping{"code": int64(protoerr.OK), "size": size}
}

func (s *Server) cmdExistsHandler(sess *sessions.Session, args codec.Mapping) codec.Mapping {
	abs, errReply := s.resolvePathArg(sess, args, "path")
	if errReply != nil {
		return errReply
	}
	exists, isFile, isDir := s.fsops.Exists(abs)
	return codec.Mapping{
		"code":   int64(protoerr.OK),
		"exists": exists,
		"isfile": isFile,
		"isdir":  isDir,
	}
}

func mustString(m codec.Mapping, key string) string {
	s, _ := getString(m, key)
	return s
}

func sessionCommandName(cmdID int) string {
	switch cmdID {
	case cmdLogout:
		return "logout"
	case cmdRead:
		return "read"
	case cmdWrite:
		return "write"
	case cmdDeleteFile:
		return "delete"
	case cmdRename:
		return "rename"
	case cmdMkdir:
		return "mkdir"
	case cmdRmdir:
		return "rmdir"
	case cmdList:
		return "list"
	case cmdMove:
		return "move"
	case cmdCopy:
		return "copy"
	case cmdChdir:
		return "chdir"
	case cmdCWD:
		return "cwd"
	case cmdSize:
		return "size"
	case cmdExists:
		return "exists"
	default:
		return "unknown"
	}
}
