package sched

import "testing"

// scenario 4 from spec.md §8: scheduler interleave.
func TestSchedulerInterleave(t *testing.T) {
	s := New()
	var order []string
	s.Handle("decrementer", func(uint64) { order = append(order, "decrementer") })
	s.Handle("vblank", func(uint64) { order = append(order, "vblank") })

	s.Schedule(100, "decrementer")
	s.Schedule(50, "vblank")

	s.Advance(120)
	if len(order) != 2 || order[0] != "vblank" || order[1] != "decrementer" {
		t.Fatalf("unexpected fire order: %v", order)
	}
}

func TestSchedulerCancelThenReschedule(t *testing.T) {
	s := New()
	fired := 0
	s.Handle("vblank", func(uint64) { fired++ })
	s.Handle("decrementer", func(uint64) { fired += 100 })

	s.Schedule(50, "vblank")
	s.Schedule(100, "decrementer")

	s.Cancel("vblank")
	if s.Pending("vblank") {
		t.Fatal("vblank should not be pending after cancel")
	}
	s.Advance(60)
	if fired != 0 {
		t.Fatalf("expected no callbacks fired, got count %d", fired)
	}
	if !s.Pending("decrementer") {
		t.Fatal("decrementer should still be pending")
	}
	s.Advance(40)
	if fired != 100 {
		t.Fatalf("expected decrementer to fire once, fired=%d", fired)
	}
}

func TestScheduleKeepsEarlier(t *testing.T) {
	s := New()
	s.Handle("x", func(uint64) {})
	s.Schedule(10, "x")
	s.Schedule(5, "x")
	if s.queue[0].fireAt != 10 {
		t.Fatalf("second schedule for a pending id must not move the entry")
	}
}

func TestCancelThenScheduleRearms(t *testing.T) {
	s := New()
	fired := false
	s.Handle("x", func(uint64) { fired = true })
	s.Schedule(10, "x")
	s.Cancel("x")
	s.Schedule(5, "x")
	s.Advance(5)
	if !fired {
		t.Fatal("expected reschedule after cancel to fire")
	}
}

func TestFIFOTiebreak(t *testing.T) {
	s := New()
	var order []string
	s.Handle("a", func(uint64) { order = append(order, "a") })
	s.Handle("b", func(uint64) { order = append(order, "b") })
	s.Schedule(10, "a")
	s.Schedule(10, "b")
	s.Advance(10)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected FIFO tiebreak a,b got %v", order)
	}
}
