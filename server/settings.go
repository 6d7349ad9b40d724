package server

import (
	"sync"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/ratelimit"
)

// Settings holds the runtime-mutable server settings described in
// spec.md §3 and §6: values admin commands can change, with a
// "touched" flag per setting so graceful shutdown knows what to write
// back to the config file, mirroring
// original_source/server/src/runtime.py's updated_settings set.
type Settings struct {
	mu sync.RWMutex

	serverName             string
	rateLimitRules         []ratelimit.Rule
	sessionLimit           int // 0 = unlimited
	defaultExpireSeconds   int // 0 = sessions never expire
	allowChangeExpire      bool
	sessionExpirationDelay int // sweeper period, seconds

	touched map[string]bool
}

func newSettings() *Settings {
	return &Settings{
		allowChangeExpire:      true,
		sessionExpirationDelay: 100,
		touched:                make(map[string]bool),
	}
}

func (s *Settings) touch(name string) {
	s.touched[name] = true
}

// Touched returns the set of setting names modified since startup.
func (s *Settings) Touched() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.touched))
	for name := range s.touched {
		out = append(out, name)
	}
	return out
}

func (s *Settings) ServerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverName
}

func (s *Settings) SetServerName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverName = name
	s.touch("server_name")
}

func (s *Settings) RateLimitRules() []ratelimit.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ratelimit.Rule, len(s.rateLimitRules))
	copy(out, s.rateLimitRules)
	return out
}

func (s *Settings) SetRateLimitRules(rules []ratelimit.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitRules = rules
	s.touch("rate_limit")
}

func (s *Settings) SessionLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionLimit
}

func (s *Settings) SetSessionLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLimit = n
	s.touch("session_limit")
}

func (s *Settings) DefaultExpireSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultExpireSeconds
}

func (s *Settings) AllowChangeExpire() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowChangeExpire
}

func (s *Settings) SetSessionExpiration(defaultExpire int, allowChange bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultExpireSeconds = defaultExpire
	s.allowChangeExpire = allowChange
	s.touch("default_expire")
	s.touch("allow_change_expire")
}

func (s *Settings) SessionExpirationDelay() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionExpirationDelay
}

// Snapshot returns every runtime-visible setting, for the
// get_all_settings admin command. Values are built from codec-native
// types (codec.List, int64) since the codec only knows how to encode
// its own ten value kinds, not arbitrary Go slice/array types.
func (s *Settings) Snapshot() codec.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limits := make(codec.List, len(s.rateLimitRules))
	for i, r := range s.rateLimitRules {
		limits[i] = codec.List{int64(r.WindowSeconds), int64(r.MaxRequests)}
	}
	return codec.Mapping{
		"server_name":          s.serverName,
		"rate_limit":           limits,
		"session_limit":        int64(s.sessionLimit),
		"default_expire":       int64(s.defaultExpireSeconds),
		"allow_change_expire":  s.allowChangeExpire,
		"session_expire_delay": int64(s.sessionExpirationDelay),
	}
}
