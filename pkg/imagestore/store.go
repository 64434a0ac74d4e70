// Package imagestore publishes reconstructed images to readers.
package imagestore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"usbeamform/internal/models"
)

// Image is one reconstructed frame. Pixels are stored row-major: row r,
// column c lives at Pixels[r*Width+c]. Columns index steering angles.
// A published Image is never modified.
type Image struct {
	ID        uuid.UUID
	Height    int
	Width     int
	Pixels    []uint32
	Frame     int    // frame buffer partition the image was built from
	Strategy  string // execution strategy that produced it
	CreatedAt time.Time
}

// NewImage wraps pixels in an Image with a fresh ID.
func NewImage(height, width int, pixels []uint32, frame int, strategy string) *Image {
	return &Image{
		ID:        uuid.New(),
		Height:    height,
		Width:     width,
		Pixels:    pixels,
		Frame:     frame,
		Strategy:  strategy,
		CreatedAt: time.Now(),
	}
}

// At returns the pixel at row, col.
func (img *Image) At(row, col int) uint32 {
	return img.Pixels[row*img.Width+col]
}

// Rows returns a copy of the image as a Height × Width matrix.
func (img *Image) Rows() [][]uint32 {
	rows := make([][]uint32, img.Height)
	for r := range rows {
		rows[r] = make([]uint32, img.Width)
		copy(rows[r], img.Pixels[r*img.Width:(r+1)*img.Width])
	}
	return rows
}

// Column returns a copy of one steering line, top to bottom.
func (img *Image) Column(col int) []uint32 {
	line := make([]uint32, img.Height)
	for r := range line {
		line[r] = img.Pixels[r*img.Width+col]
	}
	return line
}

// Stats summarizes pixel intensities.
type Stats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Stats computes intensity statistics over every pixel.
func (img *Image) Stats() Stats {
	if len(img.Pixels) == 0 {
		return Stats{}
	}
	values := make([]float64, len(img.Pixels))
	for i, p := range img.Pixels {
		values[i] = float64(p)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return Stats{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
}

// Store holds the most recently reconstructed image. Readers always observe
// a complete image.
type Store struct {
	latest atomic.Pointer[Image]
	count  atomic.Uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Replace publishes img, replacing the previous image. The image must not
// be modified afterwards.
func (s *Store) Replace(img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", models.ErrDimensionMismatch)
	}
	if img.Height < 1 || img.Width < 1 || len(img.Pixels) != img.Height*img.Width {
		return fmt.Errorf("%w: image %dx%d carries %d pixels",
			models.ErrDimensionMismatch, img.Height, img.Width, len(img.Pixels))
	}
	s.latest.Store(img)
	s.count.Add(1)
	return nil
}

// Latest returns the last published image, or nil if none has been
// published yet.
func (s *Store) Latest() *Image {
	return s.latest.Load()
}

// Dimensions returns the height and width of the latest image, or zeros.
func (s *Store) Dimensions() (height, width int) {
	if img := s.latest.Load(); img != nil {
		return img.Height, img.Width
	}
	return 0, 0
}

// Published returns how many images have been published.
func (s *Store) Published() uint64 {
	return s.count.Load()
}
