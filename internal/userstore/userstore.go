// Package userstore persists the username -> {password_hash,
// permissions} mapping to a JSON file, rewriting the whole file after
// every mutation, as the reference server's update_users does.
package userstore

import (
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/cubeflix/csh/internal/auth"
)

// Permission is one of "r", "w", "a".
type Permission string

const (
	PermRead  Permission = "r"
	PermWrite Permission = "w"
	PermAdmin Permission = "a"
)

// User is a single stored account. Username is kept redundantly on
// the value (matching the reference file shape and spec.md's
// invariant users[name].username == name) to allow the store to be
// rewritten wholesale without a second lookup key.
type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Permissions  Permission `json:"permissions"`
}

// Store is a mutex-guarded, file-backed user table.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]User
}

// Open loads users from path, creating an empty store file if it
// doesn't exist or is empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]User)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("userstore: reading %s: %w", path, err)
		}
		if writeErr := s.persistLocked(); writeErr != nil {
			return nil, fmt.Errorf("userstore: creating %s: %w", path, writeErr)
		}
		return s, nil
	}

	if len(raw) == 0 {
		if err := s.persistLocked(); err != nil {
			return nil, fmt.Errorf("userstore: initializing %s: %w", path, err)
		}
		return s, nil
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("userstore: parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) persistLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

// Get returns a copy of the stored user and whether it exists.
func (s *Store) Get(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data[username]
	return u, ok
}

// Count returns the number of stored users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All returns every username, order unspecified.
func (s *Store) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for name := range s.data {
		out = append(out, name)
	}
	return out
}

// Create adds a new user, hashing password, and persists the store.
func (s *Store) Create(username, password string, perm Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[username] = User{
		Username:     username,
		PasswordHash: auth.HashPassword(password),
		Permissions:  perm,
	}
	return s.persistLocked()
}

// Delete removes a user and persists the store.
func (s *Store) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, username)
	return s.persistLocked()
}

// Update applies a field->value patch to an existing user. If the
// patch contains a "password" field, it is rehashed into
// PasswordHash, matching the reference update_user's special-casing.
func (s *Store) Update(username string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[username]
	if !ok {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	if pw, ok := patch["password"]; ok {
		if pwStr, ok := pw.(string); ok {
			u.PasswordHash = auth.HashPassword(pwStr)
		}
	}
	if perm, ok := patch["permissions"]; ok {
		if permStr, ok := perm.(string); ok {
			u.Permissions = Permission(permStr)
		}
	}
	s.data[username] = u
	return s.persistLocked()
}

// Exists reports whether username is a known account, used by callers
// that must distinguish code 13 (user not found) from code 14
// (password mismatch).
func (s *Store) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[username]
	return ok
}

// Verify reports whether username exists and password matches its
// stored hash.
func (s *Store) Verify(username, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data[username]
	if !ok {
		return false
	}
	return auth.VerifyPassword(password, u.PasswordHash)
}
