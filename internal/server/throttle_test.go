package server

import (
	"testing"
	"time"
)

func TestCommandThrottle_Window(t *testing.T) {
	th := NewCommandThrottle(3, 10*time.Second)
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	th.now = clock.now

	for i := 1; i <= 3; i++ {
		if ok, _ := th.Allow(); !ok {
			t.Fatalf("command %d should be allowed", i)
		}
		clock.advance(time.Second)
	}

	ok, wait := th.Allow()
	if ok {
		t.Fatal("fourth command inside the window should be throttled")
	}
	if wait != 7*time.Second {
		t.Errorf("wait = %v, want 7s", wait)
	}

	clock.advance(7 * time.Second)
	if ok, _ := th.Allow(); !ok {
		t.Error("command should be allowed once the oldest expires")
	}
	if ok, _ := th.Allow(); ok {
		t.Error("window is full again")
	}
}

func TestCommandThrottle_Disabled(t *testing.T) {
	for _, th := range []*CommandThrottle{NewCommandThrottle(0, time.Second), NewCommandThrottle(5, 0)} {
		for i := 0; i < 100; i++ {
			if ok, _ := th.Allow(); !ok {
				t.Fatal("disabled throttle refused a command")
			}
		}
	}
}
