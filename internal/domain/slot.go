package domain

import (
	"sort"
	"time"
)

// MaxSlotLength bounds how long a single slot may run.
const MaxSlotLength = 12 * time.Hour

// Slot is a bounded interval offered by one practitioner on one date.
// It has no surrogate key: (Date, Start, End) identifies it within its owner.
type Slot struct {
	Date     Date  `json:"date"`
	Start    Clock `json:"start_time"`
	End      Clock `json:"end_time"`
	Reserved bool  `json:"reserved"`
}

// NewSlot validates the range and returns an unreserved slot.
func NewSlot(date Date, start, end Clock) (Slot, error) {
	if err := ValidateRange(start, end); err != nil {
		return Slot{}, err
	}
	return Slot{Date: date, Start: start, End: end}, nil
}

// ValidateRange checks start < end and a length of at most MaxSlotLength.
func ValidateRange(start, end Clock) error {
	if start >= end {
		return ErrEmptyRange
	}
	if (end - start).Offset() > MaxSlotLength {
		return ErrSlotTooLong
	}
	return nil
}

// SameTriple reports whether both slots name the same (date, start, end).
// The reservation flag is ignored.
func (s Slot) SameTriple(o Slot) bool {
	return s.Date == o.Date && s.Start == o.Start && s.End == o.End
}

// Less orders slots by date, then start, then end.
func (s Slot) Less(o Slot) bool {
	if c := s.Date.Compare(o.Date); c != 0 {
		return c < 0
	}
	if s.Start != o.Start {
		return s.Start < o.Start
	}
	return s.End < o.End
}

// Length is the slot's duration.
func (s Slot) Length() time.Duration { return (s.End - s.Start).Offset() }

// StartsAt anchors the slot's start in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	return s.Date.In(loc).Add(s.Start.Offset())
}

// Overlaps reports whether a and b share a date and their intervals meet.
// Intervals that only touch at an endpoint count as overlapping.
func Overlaps(a, b Slot) bool {
	if a.Date != b.Date {
		return false
	}
	return !(a.End < b.Start) && !(b.End < a.Start)
}

// Slots is a practitioner's slot collection kept in (date, start) order.
type Slots []Slot

// Index returns the position of the slot matching target's triple, or -1.
func (ss Slots) Index(target Slot) int {
	for i := range ss {
		if ss[i].SameTriple(target) {
			return i
		}
	}
	return -1
}

// IndexByStart returns the first slot on date starting at start, or -1.
func (ss Slots) IndexByStart(date Date, start Clock) int {
	for i := range ss {
		if ss[i].Date == date && ss[i].Start == start {
			return i
		}
	}
	return -1
}

// Overlapping returns the first slot that overlaps candidate.
func (ss Slots) Overlapping(candidate Slot) (Slot, bool) {
	for _, s := range ss {
		if Overlaps(s, candidate) {
			return s, true
		}
	}
	return Slot{}, false
}

// Add inserts an unreserved copy of slot, rejecting any overlap.
func (ss *Slots) Add(slot Slot) error {
	if err := ValidateRange(slot.Start, slot.End); err != nil {
		return err
	}
	if _, clash := ss.Overlapping(slot); clash {
		return ErrSlotOverlap
	}
	slot.Reserved = false
	*ss = append(*ss, slot)
	ss.sort()
	return nil
}

// Remove deletes the unreserved slot on date starting at start.
func (ss *Slots) Remove(date Date, start Clock) (Slot, error) {
	i := ss.IndexByStart(date, start)
	if i < 0 {
		return Slot{}, ErrSlotNotFound
	}
	removed := (*ss)[i]
	if removed.Reserved {
		return Slot{}, ErrRemoveReserved
	}
	*ss = append((*ss)[:i], (*ss)[i+1:]...)
	return removed, nil
}

// Reservable returns the index of the slot matching target if it exists and
// is free.
func (ss Slots) Reservable(target Slot) (int, error) {
	i := ss.Index(target)
	if i < 0 {
		return -1, ErrSlotNotOffered
	}
	if ss[i].Reserved {
		return -1, ErrSlotReserved
	}
	return i, nil
}

// Release clears the reservation of the slot matching target. It reports
// false when no such slot exists or it was not reserved.
func (ss Slots) Release(target Slot) bool {
	i := ss.Index(target)
	if i < 0 || !ss[i].Reserved {
		return false
	}
	ss[i].Reserved = false
	return true
}

// Available returns the free slots starting after now, in order.
func (ss Slots) Available(now time.Time, loc *time.Location) Slots {
	out := Slots{}
	for _, s := range ss {
		if !s.Reserved && s.StartsAt(loc).After(now) {
			out = append(out, s)
		}
	}
	out.sort()
	return out
}

// Sorted returns an ordered copy.
func (ss Slots) Sorted() Slots {
	out := ss.Clone()
	out.sort()
	return out
}

// Clone copies the collection; a nil collection clones to an empty one.
func (ss Slots) Clone() Slots {
	if ss == nil {
		return Slots{}
	}
	out := make(Slots, len(ss))
	copy(out, ss)
	return out
}

func (ss Slots) sort() {
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Less(ss[j]) })
}
