package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Block is a contiguous run of slots covering one appointment. Its first
// slot is the appointment's anchor.
type Block []*TimeSlot

func (b Block) Anchor() *TimeSlot {
	if len(b) == 0 {
		return nil
	}
	return b[0]
}

func (b Block) SlotIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b))
	for i, s := range b {
		ids[i] = s.ID
	}
	return ids
}

// RequiredSlots converts a service duration to a slot count, rounding up so
// a 20-minute service occupies 2 slots rather than under-allocating to 1.
// Durations of zero or less still occupy one slot.
func RequiredSlots(durationMins int) int {
	if durationMins <= GranularityMins {
		return 1
	}
	return (durationMins + GranularityMins - 1) / GranularityMins
}

// FindConsecutiveBlock scans an ordered day of slots for a run of
// requiredCount free slots beginning exactly at requestedStart. The search
// is anchored: if the chain breaks before the count is reached it fails
// rather than retrying from a later slot. Callers wanting a fallback use
// NextAvailableStart.
//
// The slots must be sorted ascending by start time. The returned block
// aliases the input slots; no booked flags are modified.
func FindConsecutiveBlock(slots []*TimeSlot, requestedStart time.Time, requiredCount int) (Block, error) {
	if requiredCount < 1 {
		requiredCount = 1
	}

	block := make(Block, 0, requiredCount)
	for _, slot := range slots {
		if len(block) == 0 {
			// Booked slots are skipped while no block has started; a
			// booked slot at the requested start therefore reads as no
			// matching start at all.
			if slot.IsBooked || !slot.StartTime.Equal(requestedStart) {
				continue
			}
			block = append(block, slot)
		} else {
			prev := block[len(block)-1]
			// Exact adjacency, no tolerance: a gap in the day breaks
			// the chain even if a later slot is free.
			if slot.IsBooked || !slot.StartTime.Equal(prev.EndTime) {
				return nil, ErrInsufficientContiguousSlots
			}
			block = append(block, slot)
		}
		if len(block) == requiredCount {
			return block, nil
		}
	}

	if len(block) == 0 {
		return nil, ErrNoMatchingStart
	}
	return nil, ErrInsufficientContiguousSlots
}

// Reserve marks every slot in the block booked. Call only with a block
// returned by FindConsecutiveBlock, exactly once; there is no internal
// double-booking check at this level.
func Reserve(block Block) {
	for _, s := range block {
		s.IsBooked = true
	}
}

// Release frees every slot in the block unconditionally. The caller supplies
// the exact slot set belonging to the appointment being cancelled or moved.
func Release(block Block) {
	for _, s := range block {
		s.IsBooked = false
	}
}

// RecomputeBlock reconstructs an appointment's block by walking forward from
// its anchor slot. Every slot in the run must be booked and exactly adjacent
// to its predecessor; anything else means the stored state no longer matches
// the appointment and is reported as ErrCorruptBlock.
func RecomputeBlock(slots []*TimeSlot, anchorID uuid.UUID, requiredCount int) (Block, error) {
	if requiredCount < 1 {
		requiredCount = 1
	}

	start := -1
	for i, s := range slots {
		if s.ID == anchorID {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrCorruptBlock
	}

	block := make(Block, 0, requiredCount)
	for i := start; i < len(slots) && len(block) < requiredCount; i++ {
		s := slots[i]
		if !s.IsBooked {
			return nil, ErrCorruptBlock
		}
		if len(block) > 0 && !s.StartTime.Equal(block[len(block)-1].EndTime) {
			return nil, ErrCorruptBlock
		}
		block = append(block, s)
	}
	if len(block) != requiredCount {
		return nil, ErrCorruptBlock
	}
	return block, nil
}

// NextAvailableStart is the "suggest next available" operation layered on
// the anchored search: it returns the start time of the earliest slot from
// which a full block can be reserved. Slots starting before the `after`
// bound are skipped, so callers can exclude times already in the past.
func NextAvailableStart(slots []*TimeSlot, after time.Time, requiredCount int) (time.Time, bool) {
	for _, s := range slots {
		if s.IsBooked || s.StartTime.Before(after) {
			continue
		}
		if _, err := FindConsecutiveBlock(slots, s.StartTime, requiredCount); err == nil {
			return s.StartTime, true
		}
	}
	return time.Time{}, false
}
