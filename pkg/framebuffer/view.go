package framebuffer

import "sync"

// View is a read-only lease on the active frame. Slices returned by a View
// alias the buffer; callers must not modify them and must not use them after
// Release.
type View struct {
	fb         *FrameBuffer
	frame      int
	generation uint64
	slots      [][]Sample
	once       sync.Once
}

// Frame returns the index of the frame this view reads.
func (v *View) Frame() int { return v.frame }

// Generation returns the buffer generation at the time the view was taken.
func (v *View) Generation() uint64 { return v.generation }

// Elements returns the number of element slots in the frame.
func (v *View) Elements() int { return len(v.slots) }

// Records returns the number of records in each slot.
func (v *View) Records() int { return v.fb.records }

// SamplesPerRecord returns the number of samples in one record.
func (v *View) SamplesPerRecord() int { return v.fb.layout.SamplesPerRecord }

// SlotLen returns the number of samples in each slot.
func (v *View) SlotLen() int { return v.fb.slotLen }

// Slot returns the samples of one element in this frame.
func (v *View) Slot(element int) []Sample {
	return v.slots[element]
}

// Release ends the lease. Calling it more than once is a no-op.
func (v *View) Release() {
	v.once.Do(v.fb.release)
}
