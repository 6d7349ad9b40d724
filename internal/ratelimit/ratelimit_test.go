package ratelimit

import "testing"

func TestLimiter_NoRules_AlwaysAllows(t *testing.T) {
	l := New(nil)
	for i := 0; i < 10; i++ {
		if !l.Allow("127.0.0.1") {
			t.Fatalf("request %d: expected admission with no rules", i)
		}
	}
}

func TestLimiter_SingleWindow(t *testing.T) {
	l := New([]Rule{{WindowSeconds: 60, MaxRequests: 2}})

	tests := []struct {
		name string
		want bool
	}{
		{"first", true},
		{"second", true},
		{"third over limit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Allow("10.0.0.1"); got != tt.want {
				t.Fatalf("Allow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimiter_PerIPIsolation(t *testing.T) {
	l := New([]Rule{{WindowSeconds: 60, MaxRequests: 1}})

	if !l.Allow("1.1.1.1") {
		t.Fatal("first request from 1.1.1.1 should be admitted")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("second request from 1.1.1.1 should be refused")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("first request from a different IP should be admitted")
	}
}

func TestLimiter_AllWindowsMustAdmit(t *testing.T) {
	l := New([]Rule{
		{WindowSeconds: 60, MaxRequests: 100},
		{WindowSeconds: 1, MaxRequests: 1},
	})

	if !l.Allow("3.3.3.3") {
		t.Fatal("first request should be admitted by both windows")
	}
	if l.Allow("3.3.3.3") {
		t.Fatal("second immediate request should be refused by the tight window")
	}
}

func TestLimiter_ResetClearsCounters(t *testing.T) {
	l := New([]Rule{{WindowSeconds: 60, MaxRequests: 1}})
	if !l.Allow("9.9.9.9") {
		t.Fatal("first request should be admitted")
	}
	if l.Allow("9.9.9.9") {
		t.Fatal("second request should be refused before reset")
	}

	l.Reset([]Rule{{WindowSeconds: 60, MaxRequests: 1}})
	if !l.Allow("9.9.9.9") {
		t.Fatal("request after reset should be admitted again")
	}
}
