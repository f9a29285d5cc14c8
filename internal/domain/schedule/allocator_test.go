package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
}

// freeDay builds a contiguous run of n unbooked slots starting at the given
// wall-clock hour/minute.
func freeDay(t *testing.T, hour, min, n int) []*TimeSlot {
	t.Helper()
	d := day(t)
	slots := make([]*TimeSlot, n)
	cur := time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
	for i := range slots {
		slots[i] = &TimeSlot{
			ID:        uuid.New(),
			StartTime: cur,
			EndTime:   cur.Add(Granularity),
		}
		cur = cur.Add(Granularity)
	}
	return slots
}

func at(t *testing.T, hour, min int) time.Time {
	t.Helper()
	d := day(t)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

func TestRequiredSlots(t *testing.T) {
	tests := []struct {
		durationMins int
		want         int
	}{
		{0, 1},
		{5, 1},
		{15, 1},
		{20, 2}, // rounds up, never under-allocates
		{30, 2},
		{45, 3},
		{50, 4},
		{60, 4},
	}
	for _, tc := range tests {
		if got := RequiredSlots(tc.durationMins); got != tc.want {
			t.Errorf("RequiredSlots(%d) = %d, want %d", tc.durationMins, got, tc.want)
		}
	}
}

func TestFindConsecutiveBlock_AllFree(t *testing.T) {
	slots := freeDay(t, 9, 0, 4)

	block, err := FindConsecutiveBlock(slots, at(t, 9, 0), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block) != 2 {
		t.Fatalf("expected block of 2, got %d", len(block))
	}
	if !block[0].StartTime.Equal(at(t, 9, 0)) || !block[1].StartTime.Equal(at(t, 9, 15)) {
		t.Errorf("wrong slots in block: %v, %v", block[0].StartTime, block[1].StartTime)
	}
	if !block[0].EndTime.Equal(block[1].StartTime) {
		t.Error("block slots are not adjacent")
	}
	for _, s := range block {
		if s.IsBooked {
			t.Error("find must not mutate booked flags")
		}
	}
}

func TestFindConsecutiveBlock_EveryStartWorks(t *testing.T) {
	// Property: on a fully free contiguous day, any slot start with a
	// required count that fits the remainder succeeds exactly.
	slots := freeDay(t, 9, 0, 6)
	for i, anchor := range slots {
		remaining := len(slots) - i
		for count := 1; count <= remaining; count++ {
			block, err := FindConsecutiveBlock(slots, anchor.StartTime, count)
			if err != nil {
				t.Fatalf("start=%v count=%d: %v", anchor.StartTime, count, err)
			}
			if len(block) != count {
				t.Fatalf("start=%v count=%d: got %d slots", anchor.StartTime, count, len(block))
			}
			for j := 1; j < len(block); j++ {
				if !block[j-1].EndTime.Equal(block[j].StartTime) {
					t.Fatal("non-adjacent slots in block")
				}
			}
		}
		if _, err := FindConsecutiveBlock(slots, anchor.StartTime, remaining+1); !errors.Is(err, ErrInsufficientContiguousSlots) {
			t.Errorf("start=%v count=%d: expected insufficient slots, got %v", anchor.StartTime, remaining+1, err)
		}
	}
}

func TestFindConsecutiveBlock_BookedSlotBreaksChain(t *testing.T) {
	slots := freeDay(t, 9, 0, 3)
	slots[1].IsBooked = true // 09:15 taken

	_, err := FindConsecutiveBlock(slots, at(t, 9, 0), 2)
	if !errors.Is(err, ErrInsufficientContiguousSlots) {
		t.Fatalf("expected ErrInsufficientContiguousSlots, got %v", err)
	}

	// A partial block is never returned, and the anchored search does not
	// slide to 09:30 even though a single free slot remains there.
	if block, err := FindConsecutiveBlock(slots, at(t, 9, 30), 1); err != nil || len(block) != 1 {
		t.Fatalf("explicit later anchor should still work: %v", err)
	}
}

func TestFindConsecutiveBlock_GapBreaksChain(t *testing.T) {
	slots := freeDay(t, 9, 0, 2)
	// 09:30 missing; next slot starts 09:45.
	tail := freeDay(t, 9, 45, 1)
	slots = append(slots, tail...)

	if _, err := FindConsecutiveBlock(slots, at(t, 9, 0), 3); !errors.Is(err, ErrInsufficientContiguousSlots) {
		t.Fatalf("expected chain break on gap, got %v", err)
	}
}

func TestFindConsecutiveBlock_NoMatchingStart(t *testing.T) {
	slots := freeDay(t, 9, 0, 3)

	if _, err := FindConsecutiveBlock(slots, at(t, 8, 0), 1); !errors.Is(err, ErrNoMatchingStart) {
		t.Fatalf("expected ErrNoMatchingStart, got %v", err)
	}

	// A booked slot at the requested start is skipped before the anchor
	// match, so it also reads as no matching start.
	slots[0].IsBooked = true
	if _, err := FindConsecutiveBlock(slots, at(t, 9, 0), 1); !errors.Is(err, ErrNoMatchingStart) {
		t.Fatalf("expected ErrNoMatchingStart for booked anchor, got %v", err)
	}
}

func TestFindConsecutiveBlock_EmptySchedule(t *testing.T) {
	if _, err := FindConsecutiveBlock(nil, at(t, 9, 0), 1); !errors.Is(err, ErrNoMatchingStart) {
		t.Fatalf("expected ErrNoMatchingStart, got %v", err)
	}
}

func TestReserveAndRelease_RoundTrip(t *testing.T) {
	slots := freeDay(t, 10, 0, 4)
	start := at(t, 10, 0)

	block, err := FindConsecutiveBlock(slots, start, 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	Reserve(block)

	for i, s := range slots {
		wantBooked := i < 2
		if s.IsBooked != wantBooked {
			t.Errorf("slot %d booked=%v, want %v", i, s.IsBooked, wantBooked)
		}
	}

	// The same request now fails: anchor is booked.
	if _, err := FindConsecutiveBlock(slots, start, 2); err == nil {
		t.Fatal("expected error after reserve")
	}

	Release(block)
	for i, s := range slots {
		if s.IsBooked {
			t.Errorf("slot %d still booked after release", i)
		}
	}

	// Release frees exactly the touched slots: the identical request
	// succeeds again with the same block.
	again, err := FindConsecutiveBlock(slots, start, 2)
	if err != nil {
		t.Fatalf("re-find after release: %v", err)
	}
	if again[0] != block[0] || again[1] != block[1] {
		t.Error("expected identical block after release")
	}
}

func TestRecomputeBlock(t *testing.T) {
	slots := freeDay(t, 9, 0, 4)
	block, err := FindConsecutiveBlock(slots, at(t, 9, 15), 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	Reserve(block)

	got, err := RecomputeBlock(slots, block.Anchor().ID, 2)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(got) != 2 || got[0] != block[0] || got[1] != block[1] {
		t.Fatal("recomputed block differs from reserved block")
	}
}

func TestRecomputeBlock_Corrupt(t *testing.T) {
	t.Run("anchor missing", func(t *testing.T) {
		slots := freeDay(t, 9, 0, 2)
		if _, err := RecomputeBlock(slots, uuid.New(), 1); !errors.Is(err, ErrCorruptBlock) {
			t.Fatalf("expected ErrCorruptBlock, got %v", err)
		}
	})

	t.Run("second slot unbooked", func(t *testing.T) {
		slots := freeDay(t, 9, 0, 3)
		slots[0].IsBooked = true // second slot should be booked too but is not
		if _, err := RecomputeBlock(slots, slots[0].ID, 2); !errors.Is(err, ErrCorruptBlock) {
			t.Fatalf("expected ErrCorruptBlock, got %v", err)
		}
	})

	t.Run("run shorter than required", func(t *testing.T) {
		slots := freeDay(t, 9, 0, 2)
		slots[0].IsBooked = true
		slots[1].IsBooked = true
		if _, err := RecomputeBlock(slots, slots[1].ID, 2); !errors.Is(err, ErrCorruptBlock) {
			t.Fatalf("expected ErrCorruptBlock, got %v", err)
		}
	})

	t.Run("gap inside run", func(t *testing.T) {
		slots := freeDay(t, 9, 0, 1)
		tail := freeDay(t, 9, 45, 1)
		slots = append(slots, tail...)
		slots[0].IsBooked = true
		slots[1].IsBooked = true
		if _, err := RecomputeBlock(slots, slots[0].ID, 2); !errors.Is(err, ErrCorruptBlock) {
			t.Fatalf("expected ErrCorruptBlock, got %v", err)
		}
	})
}

func TestNextAvailableStart(t *testing.T) {
	slots := freeDay(t, 9, 0, 4)
	slots[0].IsBooked = true
	slots[1].IsBooked = true

	start, ok := NextAvailableStart(slots, at(t, 9, 0), 2)
	if !ok {
		t.Fatal("expected a suggestion")
	}
	if !start.Equal(at(t, 9, 30)) {
		t.Fatalf("expected 09:30, got %v", start)
	}

	// Nothing fits three slots.
	if _, ok := NextAvailableStart(slots, at(t, 9, 0), 3); ok {
		t.Fatal("expected no suggestion for 3 slots")
	}

	// The after bound excludes earlier starts.
	Release(Block(slots[:2]))
	start, ok = NextAvailableStart(slots, at(t, 9, 20), 1)
	if !ok || !start.Equal(at(t, 9, 30)) {
		t.Fatalf("expected 09:30 after bound, got %v (%v)", start, ok)
	}
}

func TestCancelThenRebook(t *testing.T) {
	// A 30-minute booking at 10:00 is cancelled; the identical request
	// succeeds afterwards.
	slots := freeDay(t, 10, 0, 4)
	count := RequiredSlots(30)

	block, err := FindConsecutiveBlock(slots, at(t, 10, 0), count)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	Reserve(block)

	recovered, err := RecomputeBlock(slots, block.Anchor().ID, count)
	if err != nil {
		t.Fatalf("recompute for cancel: %v", err)
	}
	Release(recovered)

	if _, err := FindConsecutiveBlock(slots, at(t, 10, 0), count); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}
