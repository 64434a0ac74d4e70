package capture

import (
	"bytes"
	"errors"
	"testing"

	"usbeamform/internal/models"
	"usbeamform/pkg/framebuffer"
)

func newBuffer(t *testing.T, elements int) *framebuffer.FrameBuffer {
	t.Helper()
	fb, err := framebuffer.New(elements, 3, models.AcquisitionLayout{
		SamplesPerRecord:   32,
		ChannelsPerElement: 1,
		FrameCount:         2,
	})
	if err != nil {
		t.Fatalf("Failed to create frame buffer: %v", err)
	}
	return fb
}

// TestReplay saves the active frame of one buffer and replays it into the
// next frame of another.
func TestReplay(t *testing.T) {
	src := newBuffer(t, 4)
	if err := src.Fill(func(slot, i int) framebuffer.Sample {
		return framebuffer.Sample((slot*1000 + i) % 4096)
	}); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	var buf bytes.Buffer
	view := src.Acquire()
	if err := Save(&buf, view); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	view.Release()

	dst := newBuffer(t, 4)
	w, err := dst.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	if err := Load(bytes.NewReader(buf.Bytes()), w); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.Close()
	if err := dst.AdvanceFrame(); err != nil {
		t.Fatalf("AdvanceFrame failed: %v", err)
	}

	want := src.Acquire()
	defer want.Release()
	got := dst.Acquire()
	defer got.Release()
	for e := 0; e < want.Elements(); e++ {
		if !equalSamples(want.Slot(e), got.Slot(e)) {
			t.Fatalf("Element %d differs after replay", e)
		}
	}
}

func equalSamples(a, b []framebuffer.Sample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHeader(t *testing.T) {
	src := newBuffer(t, 2)
	var buf bytes.Buffer
	view := src.Acquire()
	if err := Save(&buf, view); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	view.Release()

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	h := r.Header()
	if h.Elements != 2 || h.Records != 3 || h.SamplesPerRecord != 32 || h.SlotLen != 96 {
		t.Errorf("Unexpected header %+v", h)
	}
}

func TestLoadShapeMismatch(t *testing.T) {
	src := newBuffer(t, 2)
	var buf bytes.Buffer
	view := src.Acquire()
	if err := Save(&buf, view); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	view.Release()

	dst := newBuffer(t, 4)
	w, err := dst.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	defer w.Close()
	if err := Load(&buf, w); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("Expected dimension mismatch, got %v", err)
	}
}

func TestRejectsForeignStream(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("not a capture"))); err == nil {
		t.Error("Expected error for non-zstd input")
	}
}
