package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}
	start := time.Now()
	clock.Sleep(5 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 5ms", elapsed)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(500 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)

	if now := clock.Now(); !now.Equal(fixedTime) {
		t.Errorf("got %v, want %v", now, fixedTime)
	}

	clock.Advance(time.Minute)
	if now := clock.Now(); !now.Equal(fixedTime.Add(time.Minute)) {
		t.Errorf("after Advance got %v, want %v", now, fixedTime.Add(time.Minute))
	}
}

func TestMockClock_Sleep(t *testing.T) {
	clock := NewMockClock(time.Time{})

	start := time.Now()
	clock.Sleep(time.Hour)
	clock.Sleep(time.Millisecond)
	if time.Since(start) > time.Second {
		t.Error("MockClock.Sleep should not block")
	}

	if got := clock.SleepCount(); got != 2 {
		t.Errorf("SleepCount() = %d, want 2", got)
	}
	if got := clock.LastSleep(); got != time.Millisecond {
		t.Errorf("LastSleep() = %v, want 1ms", got)
	}
}

func TestMockClock_Ticker(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(10 * time.Millisecond)

	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its deadline")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
