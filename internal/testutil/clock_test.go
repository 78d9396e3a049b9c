// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"testing"
	"time"
)

func TestRealClockAfter(t *testing.T) {
	t.Parallel()

	select {
	case <-RealClock{}.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Error("RealClock.After() did not fire within 1s")
	}
}

func TestFakeClockDefaultTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := NewFakeClock(time.Time{}).Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Time{})
	start := clock.Now()
	ch := clock.After(10 * time.Second)

	clock.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After() fired before its deadline")
	default:
	}

	clock.Advance(5 * time.Second)
	select {
	case got := <-ch:
		if got.Sub(start) != 10*time.Second {
			t.Errorf("After() delivered %v, want start+10s", got)
		}
	default:
		t.Fatal("After() did not fire at its deadline")
	}
	if clock.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0", clock.Waiters())
	}
	if clock.Since(start) != 10*time.Second {
		t.Errorf("Since() = %v, want 10s", clock.Since(start))
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Time{})
	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockBlockUntilWaiting(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Time{})
	fired := make(chan struct{})
	go func() {
		<-clock.After(time.Minute)
		close(fired)
	}()

	clock.BlockUntilWaiting(1)
	clock.Set(clock.Now().Add(time.Hour))
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not fire after Set()")
	}
}

var (
	_ Clock = RealClock{}
	_ Clock = (*FakeClock)(nil)
)
