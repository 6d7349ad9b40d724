package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
	"github.com/cubeflix/csh/internal/ratelimit"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	root := t.TempDir()
	usersFile := filepath.Join(t.TempDir(), "users.json")
	base := []Option{WithRoot(root), WithUsersFile(usersFile)}
	s, err := NewServer("127.0.0.1:0", append(base, opts...)...)
	fatalIfErr(t, err, "NewServer")
	t.Cleanup(func() { s.sessionTable.Stop(); s.fsops.Close() })
	return s
}

const peerIP = "203.0.113.7"

// TestScenario_LoginStatusLogout implements spec.md §8 S1.
func TestScenario_LoginStatusLogout(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")

	login := s.dispatch(codec.Mapping{
		"command":         "L",
		"username":        "u",
		"password":        "p",
		"expiration_time": int64(3600),
	}, peerIP)
	assertCode(t, login, protoerr.OK)
	sessID, ok := login["session_id"].(string)
	if !ok || len(sessID) != 128 {
		t.Fatalf("expected 128-hex-char session_id, got %v", login["session_id"])
	}

	status := s.dispatch(codec.Mapping{"command": "I"}, peerIP)
	assertCode(t, status, protoerr.OK)
	if status["status"] != "OK" {
		t.Fatalf("expected status OK, got %v", status["status"])
	}

	logout := s.dispatch(codec.Mapping{
		"command": int64(cmdLogout), "username": "u", "session_id": sessID,
		"args": codec.Mapping{},
	}, peerIP)
	assertCode(t, logout, protoerr.OK)

	replay := s.dispatch(codec.Mapping{
		"command": int64(cmdLogout), "username": "u", "session_id": sessID,
		"args": codec.Mapping{},
	}, peerIP)
	assertCode(t, replay, protoerr.SessionInvalid)
}

// TestScenario_SandboxEscapeRefused implements spec.md §8 S2.
func TestScenario_SandboxEscapeRefused(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")
	sessID := mustLogin(t, s, "u", "p")

	reply := s.dispatch(codec.Mapping{
		"command": int64(cmdRead), "username": "u", "session_id": sessID,
		"args": codec.Mapping{"path": "../etc/passwd", "start": int64(0), "length": int64(-1)},
	}, peerIP)
	assertCode(t, reply, protoerr.PathValidationFailure)
}

// TestScenario_WriteThenRead implements spec.md §8 S3.
func TestScenario_WriteThenRead(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("u", "p", "w"), "create user")
	sessID := mustLogin(t, s, "u", "p")

	write := s.dispatch(codec.Mapping{
		"command": int64(cmdWrite), "username": "u", "session_id": sessID,
		"args": codec.Mapping{"path": "a.txt", "data": []byte("hello"), "mode": "wb"},
	}, peerIP)
	assertCode(t, write, protoerr.OK)

	read := s.dispatch(codec.Mapping{
		"command": int64(cmdRead), "username": "u", "session_id": sessID,
		"args": codec.Mapping{"path": "a.txt", "start": int64(0), "length": int64(-1)},
	}, peerIP)
	assertCode(t, read, protoerr.OK)
	if string(read["data"].([]byte)) != "hello" {
		t.Fatalf("got %q", read["data"])
	}

	partial := s.dispatch(codec.Mapping{
		"command": int64(cmdRead), "username": "u", "session_id": sessID,
		"args": codec.Mapping{"path": "a.txt", "start": int64(1), "length": int64(3)},
	}, peerIP)
	assertCode(t, partial, protoerr.OK)
	if string(partial["data"].([]byte)) != "ell" {
		t.Fatalf("got %q", partial["data"])
	}
}

// TestScenario_PermissionDenial implements spec.md §8 S4.
func TestScenario_PermissionDenial(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("reader", "p", "r"), "create user")
	sessID := mustLogin(t, s, "reader", "p")

	reply := s.dispatch(codec.Mapping{
		"command": int64(cmdWrite), "username": "reader", "session_id": sessID,
		"args": codec.Mapping{"path": "a.txt", "data": []byte("x"), "mode": "wb"},
	}, peerIP)
	assertCode(t, reply, protoerr.PermissionDenied)

	if exists, _, _ := s.fsops.Exists(filepath.Join(s.fsops.Root(), "a.txt")); exists {
		t.Fatal("expected no file to be created")
	}
}

// TestScenario_SessionLimit implements spec.md §8 S5.
func TestScenario_SessionLimit(t *testing.T) {
	s := newTestServer(t, WithSessionLimit(2))
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")

	var codes []protoerr.Code
	for i := 0; i < 3; i++ {
		reply := s.dispatch(codec.Mapping{"command": "L", "username": "u", "password": "p"}, peerIP)
		codes = append(codes, protoerr.Code(reply["code"].(int64)))
	}
	want := []protoerr.Code{protoerr.OK, protoerr.OK, protoerr.SessionLimitReached}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("login %d: got code %d, want %d", i, codes[i], want[i])
		}
	}
}

// TestScenario_RateLimit implements spec.md §8 S6.
func TestScenario_RateLimit(t *testing.T) {
	s := newTestServer(t)
	s.rateLimiter = ratelimit.New([]ratelimit.Rule{{WindowSeconds: 60, MaxRequests: 2}})

	var allowed []bool
	for i := 0; i < 3; i++ {
		allowed = append(allowed, s.rateLimiter.Allow(peerIP))
	}
	if allowed[0] != true || allowed[1] != true || allowed[2] != false {
		t.Fatalf("got %v, want [true true false]", allowed)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := mustLogin(t, s, "u", "p")
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
	}
}

func TestSessionIPBinding(t *testing.T) {
	s := newTestServer(t)
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")
	sessID := mustLogin(t, s, "u", "p")

	reply := s.dispatch(codec.Mapping{
		"command": int64(cmdCWD), "username": "u", "session_id": sessID,
		"args": codec.Mapping{},
	}, "203.0.113.200")
	assertCode(t, reply, protoerr.SessionInvalid)
}

// TestSessionTTLRenewal implements spec.md §8 invariant 7: issuing a
// command before expiry pushes expiresAt out by at least the
// session's own TTL from the moment of that command.
func TestSessionTTLRenewal(t *testing.T) {
	s := newTestServer(t, WithSessionExpiration(2, true))
	fatalIfErr(t, s.users.Create("u", "p", "a"), "create user")
	sessID := mustLogin(t, s, "u", "p")

	time.Sleep(10 * time.Millisecond)
	t0 := time.Now()
	reply := s.dispatch(codec.Mapping{
		"command": int64(cmdCWD), "username": "u", "session_id": sessID,
		"args": codec.Mapping{},
	}, peerIP)
	assertCode(t, reply, protoerr.OK)

	sess, ok := s.sessionTable.Get(sessID)
	if !ok {
		t.Fatal("expected session to still exist")
	}
	if sess.ExpiresAt().Before(t0.Add(2 * time.Second)) {
		t.Fatalf("expected expiresAt >= t0+2s, got %v (t0=%v)", sess.ExpiresAt(), t0)
	}
}

func assertCode(t *testing.T, reply codec.Mapping, want protoerr.Code) {
	t.Helper()
	got, ok := reply["code"].(int64)
	if !ok || protoerr.Code(got) != want {
		t.Fatalf("got reply %v, want code %d", reply, want)
	}
}

func mustLogin(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	reply := s.dispatch(codec.Mapping{"command": "L", "username": username, "password": password}, peerIP)
	assertCode(t, reply, protoerr.OK)
	return reply["session_id"].(string)
}
