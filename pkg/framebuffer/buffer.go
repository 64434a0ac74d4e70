// Package framebuffer owns raw per-element sample storage.
//
// Slots are partitioned into frames. Exactly one frame is active: the
// beamformer may read it, nobody may write it. The acquisition side fills
// the next frame through a Writer and then advances the active frame.
package framebuffer

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"usbeamform/internal/logging"
	"usbeamform/internal/models"
)

// A Sample is one digitized echo amplitude. Digitizers deliver 12 to 16
// bits; values are stored unsigned in 16 bits.
type Sample uint16

// FrameBuffer stores frameCount × elements slots, each holding
// samplesPerRecord × records × channelsPerElement samples. Slot s belongs to
// frame s / elements and element s % elements.
type FrameBuffer struct {
	mu sync.Mutex

	data     [][]Sample
	elements int
	records  int
	layout   models.AcquisitionLayout
	slotLen  int

	active     int
	generation uint64 // number of completed AdvanceFrame calls
	readers    int    // outstanding views of the active frame
	writer     *Writer
}

// New allocates a frame buffer for the given array size, record count and
// layout. All samples start at zero and frame 0 is active.
func New(elements, records int, layout models.AcquisitionLayout) (*FrameBuffer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if elements < 1 || records < 1 {
		return nil, fmt.Errorf("%w: frame buffer needs at least one element and one record, got %d and %d",
			models.ErrConfiguration, elements, records)
	}

	slotLen := layout.SamplesPerSlot(records)
	slots := layout.FrameCount * elements
	fb := &FrameBuffer{
		data:     make([][]Sample, slots),
		elements: elements,
		records:  records,
		layout:   layout,
		slotLen:  slotLen,
	}
	// one backing array keeps slots contiguous for bulk uploads
	backing := make([]Sample, slots*slotLen)
	for s := range fb.data {
		fb.data[s] = backing[s*slotLen : (s+1)*slotLen : (s+1)*slotLen]
	}

	logging.Logger().Debug("frame buffer allocated",
		"slots", slots,
		"slotLen", slotLen,
		"frames", layout.FrameCount)
	return fb, nil
}

// Elements returns the number of slots per frame.
func (fb *FrameBuffer) Elements() int { return fb.elements }

// Records returns the number of records stored in each slot.
func (fb *FrameBuffer) Records() int { return fb.records }

// SamplesPerRecord returns the number of samples in one record.
func (fb *FrameBuffer) SamplesPerRecord() int { return fb.layout.SamplesPerRecord }

// SlotLen returns the number of samples in one slot.
func (fb *FrameBuffer) SlotLen() int { return fb.slotLen }

// FrameCount returns the number of frames.
func (fb *FrameBuffer) FrameCount() int { return fb.layout.FrameCount }

// Slots returns the total number of slots.
func (fb *FrameBuffer) Slots() int { return len(fb.data) }

// SlotIndex returns the slot holding element's data in frame.
func (fb *FrameBuffer) SlotIndex(frame, element int) int {
	return frame*fb.elements + element
}

// ActiveFrame returns the index of the frame currently readable by the
// beamformer.
func (fb *FrameBuffer) ActiveFrame() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.active
}

// Generation returns how many times the active frame has been advanced.
func (fb *FrameBuffer) Generation() uint64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.generation
}

// Write copies samples into slot starting at offset. The slot must lie
// outside the active frame.
func (fb *FrameBuffer) Write(slot, offset int, samples []Sample) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if slot < 0 || slot >= len(fb.data) {
		return fmt.Errorf("%w: slot %d outside [0, %d)", models.ErrDimensionMismatch, slot, len(fb.data))
	}
	if frame := slot / fb.elements; frame == fb.active {
		return fmt.Errorf("%w: slot %d belongs to active frame %d", models.ErrFrameConflict, slot, frame)
	}
	return fb.copyLocked(slot, offset, samples)
}

func (fb *FrameBuffer) copyLocked(slot, offset int, samples []Sample) error {
	if offset < 0 || offset+len(samples) > fb.slotLen {
		return fmt.Errorf("%w: write of %d samples at offset %d exceeds slot length %d",
			models.ErrDimensionMismatch, len(samples), offset, fb.slotLen)
	}
	copy(fb.data[slot][offset:], samples)
	return nil
}

// AdvanceFrame makes the next frame active. It fails with ErrFrameConflict
// while a view of the current frame is still held or while the next frame
// is still open for writing.
func (fb *FrameBuffer) AdvanceFrame() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.readers > 0 {
		return fmt.Errorf("%w: %d reconstruction(s) still reading frame %d", models.ErrFrameConflict, fb.readers, fb.active)
	}
	next := (fb.active + 1) % fb.layout.FrameCount
	if fb.writer != nil && fb.writer.frame == next {
		return fmt.Errorf("%w: frame %d is still being written", models.ErrFrameConflict, next)
	}
	fb.active = next
	fb.generation++
	logging.Logger().Debug("frame advanced", "active", fb.active, "generation", fb.generation)
	return nil
}

// Acquire returns a read-only view of the active frame. The frame cannot be
// advanced until the view is released.
func (fb *FrameBuffer) Acquire() *View {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.readers++
	slots := fb.data[fb.active*fb.elements : (fb.active+1)*fb.elements]
	return &View{
		fb:         fb,
		frame:      fb.active,
		generation: fb.generation,
		slots:      slots,
	}
}

func (fb *FrameBuffer) release() {
	fb.mu.Lock()
	fb.readers--
	fb.mu.Unlock()
}

// Randomize fills every slot with values drawn uniformly from [0, max).
// It is a simulation helper for running without an acquisition source and
// fails while any view is held.
func (fb *FrameBuffer) Randomize(rng *rand.Rand, max int) error {
	if max < 1 {
		return fmt.Errorf("%w: randomize range must be at least 1, got %d", models.ErrConfiguration, max)
	}
	return fb.Fill(func(int, int) Sample {
		return Sample(rng.IntN(max))
	})
}

// Fill sets data[slot][i] = fn(slot, i) for every slot and sample. It fails
// while any view is held.
func (fb *FrameBuffer) Fill(fn func(slot, i int) Sample) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.readers > 0 {
		return fmt.Errorf("%w: cannot refill while %d view(s) are held", models.ErrFrameConflict, fb.readers)
	}
	for s, slot := range fb.data {
		for i := range slot {
			slot[i] = fn(s, i)
		}
	}
	return nil
}
