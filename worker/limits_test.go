package worker_test

import (
	"testing"

	"github.com/ostrokach/biskit/worker"
)

func TestLimits_UnlistedHostUnlimited(t *testing.T) {
	l := worker.NewLimits()
	for range 100 {
		if !l.Acquire("anyhost") {
			t.Fatal("unlisted host must never be throttled")
		}
	}
}

func TestLimits_MaxConcurrency(t *testing.T) {
	l := worker.NewLimits(worker.HostConfig{Name: "hostA", MaxConcurrency: 2})

	if !l.Acquire("hostA") || !l.Acquire("hostA") {
		t.Fatal("first two acquires should succeed")
	}
	if l.Acquire("hostA") {
		t.Fatal("third acquire should be rejected")
	}

	l.Release("hostA")
	if !l.Acquire("hostA") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLimits_RateLimit(t *testing.T) {
	// 1/sec with burst 1: the second immediate acquire must be rejected.
	l := worker.NewLimits(worker.HostConfig{Name: "hostA", RateLimit: 1, RateBurst: 1})

	if !l.Acquire("hostA") {
		t.Fatal("first acquire should succeed")
	}
	if l.Acquire("hostA") {
		t.Fatal("second immediate acquire should be rate limited")
	}
}

func TestLimits_ReleaseNeverGoesNegative(t *testing.T) {
	l := worker.NewLimits(worker.HostConfig{Name: "hostA", MaxConcurrency: 1})

	l.Release("hostA")
	l.Release("hostA")

	if got := l.ActiveCount("hostA"); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
	if !l.Acquire("hostA") {
		t.Fatal("acquire should succeed after spurious releases")
	}
}

func TestLimits_SetHostConfigPreservesActive(t *testing.T) {
	l := worker.NewLimits(worker.HostConfig{Name: "hostA", MaxConcurrency: 1})

	if !l.Acquire("hostA") {
		t.Fatal("acquire should succeed")
	}
	l.SetHostConfig(worker.HostConfig{Name: "hostA", MaxConcurrency: 2})

	if got := l.ActiveCount("hostA"); got != 1 {
		t.Fatalf("active = %d, want 1 after reconfigure", got)
	}
	if !l.Acquire("hostA") {
		t.Fatal("second acquire should succeed under raised limit")
	}
	if l.Acquire("hostA") {
		t.Fatal("third acquire should be rejected")
	}
}
