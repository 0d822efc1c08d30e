package state

import (
	"testing"
	"time"
)

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{WaitConfig, "WAIT_CONFIG"},
		{ConnectingCloud, "CONNECTING_CLOUD"},
		{ResetConfig, "RESET_CONFIG"},
		{Mode(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestIsConfig(t *testing.T) {
	for m := WaitConfig; m <= ResetConfig; m++ {
		want := m == WaitConfig || m == Configuring
		if m.IsConfig() != want {
			t.Errorf("%s.IsConfig() = %v, want %v", m, m.IsConfig(), want)
		}
	}
}

func TestContext_Mode(t *testing.T) {
	c := New(ConnectingNet, 5)
	if !c.Is(ConnectingNet) {
		t.Fatalf("initial mode = %s", c.Mode())
	}
	if c.NetRetries != 5 || c.CloudRetries != 5 {
		t.Errorf("retries = %d/%d, want 5/5", c.NetRetries, c.CloudRetries)
	}

	c.SetMode(Error)
	if c.Mode() != Error {
		t.Errorf("Mode() = %s, want ERROR", c.Mode())
	}
}

func TestContext_ButtonHeld(t *testing.T) {
	c := New(WaitConfig, 1)
	if c.ButtonHeld() {
		t.Fatal("button should start released")
	}
	c.SetButtonHeld(true)
	if !c.ButtonHeld() {
		t.Error("ButtonHeld() = false after SetButtonHeld(true)")
	}
}

func TestContext_Restart(t *testing.T) {
	c := New(WaitConfig, 1)
	start := time.Unix(1000, 0)

	if c.RestartPending() || c.RestartDue(start) {
		t.Fatal("no restart should be pending on a fresh context")
	}

	c.ScheduleRestart(time.Second)
	if !c.RestartPending() {
		t.Fatal("RestartPending() = false after ScheduleRestart")
	}

	// The delay is anchored at the first observation.
	if c.RestartDue(start) {
		t.Error("restart due immediately, want after 1s")
	}
	if c.RestartDue(start.Add(999 * time.Millisecond)) {
		t.Error("restart due before the delay elapsed")
	}
	if !c.RestartDue(start.Add(time.Second)) {
		t.Error("restart not due after the delay elapsed")
	}
}

func TestContext_RestartSoonerWins(t *testing.T) {
	c := New(WaitConfig, 1)
	now := time.Unix(0, 0)

	c.ScheduleRestart(time.Second)
	c.ScheduleRestart(10 * time.Second)
	c.RestartDue(now)
	if !c.RestartDue(now.Add(time.Second)) {
		t.Error("a later, longer request must not postpone the restart")
	}

	c2 := New(WaitConfig, 1)
	c2.ScheduleRestart(time.Second)
	c2.ScheduleRestart(50 * time.Millisecond)
	c2.RestartDue(now)
	if !c2.RestartDue(now.Add(50 * time.Millisecond)) {
		t.Error("a shorter request should replace the pending one")
	}
}
