package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"usbeamform/pkg/capture"
	"usbeamform/pkg/framebuffer"
)

// source fills the writable frame of a frame buffer, standing in for the
// digitizer.
type source interface {
	fill(w *framebuffer.Writer) error
}

// randomSource draws samples uniformly from [0, max).
type randomSource struct {
	rng *rand.Rand
	max int
	buf []framebuffer.Sample
}

func newRandomSource(seed uint64, max int) *randomSource {
	return &randomSource{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		max: max,
	}
}

func (s *randomSource) fill(w *framebuffer.Writer) error {
	if cap(s.buf) < w.SlotLen() {
		s.buf = make([]framebuffer.Sample, w.SlotLen())
	}
	buf := s.buf[:w.SlotLen()]
	for e := 0; e < w.Elements(); e++ {
		for i := range buf {
			buf[i] = framebuffer.Sample(s.rng.IntN(s.max))
		}
		if err := w.Write(e, 0, buf); err != nil {
			return err
		}
	}
	return nil
}

// captureSource replays the same recorded frame every time.
type captureSource struct {
	path string
}

func (s captureSource) fill(w *framebuffer.Writer) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	return capture.Load(f, w)
}

// acquire fills the next frame from src and closes the writer.
func acquire(fb *framebuffer.FrameBuffer, src source) error {
	w, err := fb.OpenWriter()
	if err != nil {
		return err
	}
	defer w.Close()
	return src.fill(w)
}
