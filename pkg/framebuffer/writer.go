package framebuffer

import (
	"fmt"
	"sync"

	"usbeamform/internal/models"
)

// Writer is the acquisition side's handle on the frame after the active one.
// Only one Writer may be open at a time.
type Writer struct {
	fb     *FrameBuffer
	frame  int
	closed bool
	once   sync.Once
}

// OpenWriter returns a Writer for the frame that becomes active on the next
// AdvanceFrame. With a single frame there is nothing to write into.
func (fb *FrameBuffer) OpenWriter() (*Writer, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.layout.FrameCount < 2 {
		return nil, fmt.Errorf("%w: a single-frame buffer has no writable frame", models.ErrFrameConflict)
	}
	if fb.writer != nil {
		return nil, fmt.Errorf("%w: frame %d already has an open writer", models.ErrFrameConflict, fb.writer.frame)
	}
	w := &Writer{fb: fb, frame: (fb.active + 1) % fb.layout.FrameCount}
	fb.writer = w
	return w, nil
}

// Frame returns the frame this writer fills.
func (w *Writer) Frame() int { return w.frame }

// Elements returns the number of element slots the writer can fill.
func (w *Writer) Elements() int { return w.fb.elements }

// SlotLen returns the number of samples in each slot.
func (w *Writer) SlotLen() int { return w.fb.slotLen }

// Write copies samples into the given element's slot of the writer's frame.
func (w *Writer) Write(element, offset int, samples []Sample) error {
	fb := w.fb
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%w: writer for frame %d is closed", models.ErrFrameConflict, w.frame)
	}
	if element < 0 || element >= fb.elements {
		return fmt.Errorf("%w: element %d outside [0, %d)", models.ErrDimensionMismatch, element, fb.elements)
	}
	if w.frame == fb.active {
		return fmt.Errorf("%w: frame %d became active while open for writing", models.ErrFrameConflict, w.frame)
	}
	return fb.copyLocked(fb.SlotIndex(w.frame, element), offset, samples)
}

// Close marks the frame complete so it can be advanced into.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.fb.mu.Lock()
		w.closed = true
		if w.fb.writer == w {
			w.fb.writer = nil
		}
		w.fb.mu.Unlock()
	})
	return nil
}
