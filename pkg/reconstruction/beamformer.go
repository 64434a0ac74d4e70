// Package reconstruction forms images from raw per-element echo data by
// delay-and-sum beamforming.
//
// A Beamformer combines a delay table, a frame buffer and an execution
// Strategy. Every strategy shares the same per-pixel arithmetic, so
// switching from the sequential reference to the goroutine pool or the
// OpenCL kernel never changes the result.
package reconstruction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"usbeamform/internal/logging"
	"usbeamform/internal/models"
	"usbeamform/pkg/delay"
	"usbeamform/pkg/framebuffer"
	"usbeamform/pkg/imagestore"
)

// Params holds the collaborators of a Beamformer.
type Params struct {
	// Table is the delay table for the current geometry and scan
	Table *delay.Table

	// Frames is the frame buffer the acquisition side fills
	Frames *framebuffer.FrameBuffer

	// Store receives every successfully reconstructed image
	Store *imagestore.Store

	// Strategy executes the reconstruction; nil selects Sequential
	Strategy Strategy

	// AngleCount and FocalCount describe the scan the table was built from
	AngleCount int
	FocalCount int

	// FocalIndex selects which focal depth's records form the image
	FocalIndex int
}

// Beamformer reconstructs the active frame into the image store.
type Beamformer struct {
	mu       sync.RWMutex
	table    *delay.Table
	layout   Layout
	frames   *framebuffer.FrameBuffer
	store    *imagestore.Store
	strategy Strategy
}

// NewBeamformer validates params and derives the image layout.
//
// Returns:
//   - ErrConfiguration for missing collaborators or an invalid layout
//   - ErrDimensionMismatch when the table and frame buffer disagree
func NewBeamformer(p Params) (*Beamformer, error) {
	if p.Table == nil || p.Frames == nil || p.Store == nil {
		return nil, fmt.Errorf("%w: beamformer needs a delay table, a frame buffer and an image store", models.ErrConfiguration)
	}
	if p.AngleCount*p.FocalCount != p.Table.Records() {
		return nil, fmt.Errorf("%w: %d angles × %d focals does not match %d table records",
			models.ErrDimensionMismatch, p.AngleCount, p.FocalCount, p.Table.Records())
	}
	layout, err := NewLayout(p.Frames.SamplesPerRecord(), p.AngleCount, p.FocalCount, p.FocalIndex)
	if err != nil {
		return nil, err
	}
	if err := checkShapes(p.Table, p.Frames); err != nil {
		return nil, err
	}

	s := p.Strategy
	if s == nil {
		s = Sequential{}
	}

	logging.Logger().Info("beamformer ready",
		"strategy", s.Name(),
		"height", layout.Height,
		"width", layout.Width,
		"scaleFactor", layout.ScaleFactor)

	return &Beamformer{
		table:    p.Table,
		layout:   layout,
		frames:   p.Frames,
		store:    p.Store,
		strategy: s,
	}, nil
}

func checkShapes(t *delay.Table, fb *framebuffer.FrameBuffer) error {
	if t.Elements() != fb.Elements() {
		return fmt.Errorf("%w: delay table has %d elements, frame buffer has %d",
			models.ErrDimensionMismatch, t.Elements(), fb.Elements())
	}
	if t.Records() != fb.Records() {
		return fmt.Errorf("%w: delay table has %d records, frame buffer has %d",
			models.ErrDimensionMismatch, t.Records(), fb.Records())
	}
	return nil
}

// Layout returns the image layout.
func (b *Beamformer) Layout() Layout {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.layout
}

// Strategy returns the execution strategy in use.
func (b *Beamformer) Strategy() Strategy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.strategy
}

// SetTable swaps in a delay table rebuilt after a geometry or scan change.
// The table must have the same shape as the frame buffer.
func (b *Beamformer) SetTable(t *delay.Table) error {
	if t == nil {
		return fmt.Errorf("%w: no delay table", models.ErrDimensionMismatch)
	}
	if err := checkShapes(t, b.frames); err != nil {
		return err
	}
	b.mu.Lock()
	b.table = t
	b.mu.Unlock()
	return nil
}

// SetStrategy replaces the execution strategy. The previous strategy is
// returned so the caller can close it.
func (b *Beamformer) SetStrategy(s Strategy) Strategy {
	if s == nil {
		s = Sequential{}
	}
	b.mu.Lock()
	old := b.strategy
	b.strategy = s
	b.mu.Unlock()
	return old
}

// Reconstruct forms an image from the active frame and publishes it to the
// store. The frame cannot be advanced while this runs. Nothing is published
// unless every pixel was computed.
func (b *Beamformer) Reconstruct(ctx context.Context) (*imagestore.Image, error) {
	b.mu.RLock()
	table, layout, strategy := b.table, b.layout, b.strategy
	b.mu.RUnlock()

	view := b.frames.Acquire()
	defer view.Release()

	job := &Job{Layout: layout, Table: table, Frame: view}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	pixels, err := strategy.Reconstruct(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("%s reconstruction of frame %d: %w", strategy.Name(), view.Frame(), err)
	}
	if len(pixels) != layout.Pixels() {
		return nil, fmt.Errorf("%w: %s strategy returned %d pixels, want %d",
			models.ErrDimensionMismatch, strategy.Name(), len(pixels), layout.Pixels())
	}

	img := imagestore.NewImage(layout.Height, layout.Width, pixels, view.Frame(), strategy.Name())
	if err := b.store.Replace(img); err != nil {
		return nil, err
	}

	logging.Logger().Debug("frame reconstructed",
		"id", img.ID,
		"frame", view.Frame(),
		"generation", view.Generation(),
		"strategy", strategy.Name(),
		"elapsed", time.Since(start))
	return img, nil
}
