// Package ratelimit provides multi-window per-IP admission control.
//
// A rule set is an ordered list of (window, max requests) pairs. A
// request is admitted only if every pair's window currently has room;
// a single shared request is never charged against a window that
// refuses it, matching the "all windows must simultaneously admit"
// requirement.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule is one (window, max requests) admission pair.
type Rule struct {
	WindowSeconds int
	MaxRequests   int
}

// Limiter enforces a Rule set independently per client IP.
type Limiter struct {
	mu    sync.Mutex
	rules []Rule
	byIP  map[string][]*rate.Limiter
}

// New builds a Limiter from a rule set. A nil or empty rule set
// admits every request.
func New(rules []Rule) *Limiter {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Limiter{
		rules: cp,
		byIP:  make(map[string][]*rate.Limiter),
	}
}

// Reset rebuilds the rule set, discarding all per-IP counters. This
// is what the update_rate_limit admin command calls.
func (l *Limiter) Reset(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = cp
	l.byIP = make(map[string][]*rate.Limiter)
}

// Allow reports whether a request from ip is admitted right now. It
// never blocks: every window's limiter is consulted with Reserve, and
// if any window would refuse, all tentative reservations taken this
// call are cancelled so the request isn't partially charged.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.rules) == 0 {
		return true
	}

	limiters := l.limitersFor(ip)
	reservations := make([]*rate.Reservation, 0, len(limiters))
	for _, lim := range limiters {
		r := lim.ReserveN(time.Now(), 1)
		if !r.OK() || r.Delay() > 0 {
			if r.OK() {
				r.Cancel()
			}
			for _, taken := range reservations {
				taken.Cancel()
			}
			return false
		}
		reservations = append(reservations, r)
	}
	return true
}

func (l *Limiter) limitersFor(ip string) []*rate.Limiter {
	if existing, ok := l.byIP[ip]; ok {
		return existing
	}
	fresh := make([]*rate.Limiter, len(l.rules))
	for i, rule := range l.rules {
		every := rate.Limit(float64(rule.MaxRequests) / float64(rule.WindowSeconds))
		fresh[i] = rate.NewLimiter(every, rule.MaxRequests)
	}
	l.byIP[ip] = fresh
	return fresh
}
