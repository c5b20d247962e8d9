package testutil

import (
	"errors"
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(base)

	c.Advance(time.Hour)
	if got := c.Now(); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("Now() = %v, want %v", got, base.Add(time.Hour))
	}

	c.Set(base)
	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
}

func TestDayOffsetAndInstant(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := DayOffset(base, -1); got != "2025-05-31" {
		t.Errorf("DayOffset(-1) = %s", got)
	}
	if got := DayOffset(base, 30); got != "2025-07-01" {
		t.Errorf("DayOffset(30) = %s", got)
	}
	if got := Instant(base.Add(time.Millisecond)); got != "2025-06-01T12:00:00.001Z" {
		t.Errorf("Instant() = %s", got)
	}
}

func TestFailN(t *testing.T) {
	boom := errors.New("boom")
	f := NewFailN(2, boom)

	for i := 0; i < 2; i++ {
		if err := f.Next(); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if err := f.Next(); err != nil {
		t.Errorf("third call err = %v, want nil", err)
	}
	if f.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", f.Calls())
	}
}
