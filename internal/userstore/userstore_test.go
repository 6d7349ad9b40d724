package userstore

import (
	"path/filepath"
	"testing"
)

func TestOpen_CreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Fatalf("expected 0 users, got %d", s.Count())
	}
}

func TestCreateThenReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create("alice", "hunter2", PermAdmin); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	u, ok := reloaded.Get("alice")
	if !ok {
		t.Fatal("expected alice to persist across reload")
	}
	if u.Username != "alice" || u.Permissions != PermAdmin {
		t.Fatalf("got %+v", u)
	}
	if !reloaded.Verify("alice", "hunter2") {
		t.Fatal("expected password to verify after reload")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Create("bob", "secret", PermRead)
	if s.Verify("bob", "wrong") {
		t.Fatal("expected verification to fail for wrong password")
	}
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, _ := Open(path)
	if s.Exists("nobody") {
		t.Fatal("expected nobody to not exist")
	}
	s.Create("carol", "pw", PermWrite)
	if !s.Exists("carol") {
		t.Fatal("expected carol to exist")
	}
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, _ := Open(path)
	s.Create("dave", "pw", PermRead)
	if err := s.Delete("dave"); err != nil {
		t.Fatal(err)
	}
	if s.Exists("dave") {
		t.Fatal("expected dave to be gone after delete")
	}
}

func TestUpdate_RehashesPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, _ := Open(path)
	s.Create("erin", "old", PermRead)

	if err := s.Update("erin", map[string]any{"password": "new"}); err != nil {
		t.Fatal(err)
	}
	if s.Verify("erin", "old") {
		t.Fatal("old password should no longer verify")
	}
	if !s.Verify("erin", "new") {
		t.Fatal("new password should verify")
	}
}

func TestUpdate_UnknownUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, _ := Open(path)
	if err := s.Update("ghost", map[string]any{"permissions": "w"}); err == nil {
		t.Fatal("expected an error updating a nonexistent user")
	}
}

func TestAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, _ := Open(path)
	s.Create("x", "pw", PermRead)
	s.Create("y", "pw", PermWrite)
	names := s.All()
	if len(names) != 2 {
		t.Fatalf("expected 2 usernames, got %d", len(names))
	}
}
