// Package sessions implements the in-memory session table: creation,
// peer-IP-bound validity checks, TTL renewal using each session's own
// originally-chosen expiration, and an expiration sweeper.
//
// Session-ID generation is serialized through a single goroutine
// reading a channel of requests, each carrying its own reply channel
// — the synchronous-rendezvous replacement for the reference
// implementation's SessionIDGenerationItem busy-wait
// (while not self.finished: pass), per spec.md §9's explicit
// instruction not to reproduce that busy-wait.
package sessions

import (
	"sync"
	"time"

	"github.com/cubeflix/csh/internal/auth"
)

// Session is one authenticated, peer-IP-bound context.
type Session struct {
	ID          string
	Username    string
	PeerIP      string
	CreatedAt   time.Time
	CWD         string
	expireAfter time.Duration // 0 means "never expires"
	expiresAt   time.Time     // zero value means "no deadline"
}

type sessionIDRequest struct {
	reply chan string
}

// Table is the mutex-guarded session store plus its own ID-generation
// serializer and expiration sweeper goroutines.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	genReqs chan sessionIDRequest
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates an empty session table. Start must be called to run its
// background goroutines.
func New() *Table {
	return &Table{
		sessions: make(map[string]*Session),
		genReqs:  make(chan sessionIDRequest),
		stop:     make(chan struct{}),
	}
}

// Start launches the session-ID generation serializer and the
// expiration sweeper (which wakes every sweepInterval).
func (t *Table) Start(sweepInterval time.Duration) {
	t.wg.Add(2)
	go t.runGenerator()
	go t.runSweeper(sweepInterval)
}

// Stop halts both background goroutines and waits for them to exit.
func (t *Table) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *Table) runGenerator() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stop:
			return
		case req := <-t.genReqs:
			id, err := t.generateUnique()
			if err != nil {
				// crypto/rand failure: reply empty, caller treats
				// this as a login failure.
				req.reply <- ""
				continue
			}
			req.reply <- id
		}
	}
}

func (t *Table) generateUnique() (string, error) {
	for {
		id, err := auth.GenerateSessionID()
		if err != nil {
			return "", err
		}
		t.mu.RLock()
		_, collided := t.sessions[id]
		t.mu.RUnlock()
		if !collided {
			return id, nil
		}
	}
}

func (t *Table) runSweeper(interval time.Duration) {
	defer t.wg.Done()
	if interval <= 0 {
		interval = 100 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Table) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		if !s.expiresAt.IsZero() && now.After(s.expiresAt) {
			delete(t.sessions, id)
		}
	}
}

// requestSessionID enqueues a generation request and blocks for the
// serializer's reply — the channel rendezvous that replaces the
// reference implementation's spin-wait.
func (t *Table) requestSessionID() string {
	reply := make(chan string, 1)
	t.genReqs <- sessionIDRequest{reply: reply}
	return <-reply
}

// CountForUser returns how many live sessions the given user holds.
func (t *Table) CountForUser(username string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.Username == username {
			n++
		}
	}
	return n
}

// Create generates a fresh session ID, builds a Session, and installs
// it. sessionLimit of 0 means unlimited; if the user already holds
// sessionLimit sessions, Create returns (nil, false), refusing early
// without allocating an ID. The limit is counted again under the same
// lock that inserts the new session, so the count-then-insert is a
// single critical section (spec.md §5's required atomicity).
func (t *Table) Create(username, peerIP string, expireAfter time.Duration, sessionLimit int) (*Session, bool) {
	t.mu.Lock()
	if sessionLimit > 0 {
		n := 0
		for _, s := range t.sessions {
			if s.Username == username {
				n++
			}
		}
		if n >= sessionLimit {
			t.mu.Unlock()
			return nil, false
		}
	}
	t.mu.Unlock()

	id := t.requestSessionID()
	if id == "" {
		return nil, false
	}

	s := &Session{
		ID:          id,
		Username:    username,
		PeerIP:      peerIP,
		CreatedAt:   time.Now(),
		expireAfter: expireAfter,
	}
	if expireAfter > 0 {
		s.expiresAt = s.CreatedAt.Add(expireAfter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check the limit: another login may have raced us between the
	// optimistic check above and session-ID generation completing.
	if sessionLimit > 0 {
		n := 0
		for _, existing := range t.sessions {
			if existing.Username == username {
				n++
			}
		}
		if n >= sessionLimit {
			return nil, false
		}
	}
	t.sessions[id] = s
	return s, true
}

// Validate looks up id, checks peer-IP binding and TTL, removes it if
// expired, and otherwise renews its expiry using the session's own
// originally-chosen TTL (not a server-wide default), per §4.6 and the
// open-question resolution in SPEC_FULL.md §9.[FULL].
func (t *Table) Validate(id, peerIP string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	if s.PeerIP != peerIP {
		return nil, false
	}
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		delete(t.sessions, id)
		return nil, false
	}
	if s.expireAfter > 0 {
		s.expiresAt = time.Now().Add(s.expireAfter)
	}
	return s, true
}

// ExpiresAt returns the session's current expiration instant, the
// zero Time if the session never expires.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Get returns a session by ID without validating it: no peer-IP
// check, no expiry check, and no renewal.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// SetCWD updates a session's working directory.
func (t *Table) SetCWD(id, cwd string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		s.CWD = cwd
	}
}

// Delete removes a session unconditionally (logout).
func (t *Table) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		return false
	}
	delete(t.sessions, id)
	return true
}

// Clear empties the entire session table (admin clear_sessions).
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*Session)
}

// ClearUser removes every session belonging to username (admin
// clear-user-sessions).
func (t *Table) ClearUser(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		if s.Username == username {
			delete(t.sessions, id)
		}
	}
}
