package reconstruction

import (
	"fmt"

	"usbeamform/internal/models"
)

// Layout fixes the shape of the reconstructed image. It is derived once per
// configuration, never per reconstruction.
type Layout struct {
	// SamplesPerRecord is the number of raw samples in one record
	SamplesPerRecord int

	// Width is the number of image columns, one per steering angle
	Width int

	// Height is the number of image rows
	Height int

	// ScaleFactor is the number of consecutive samples averaged into one
	// pixel, SamplesPerRecord / Height
	ScaleFactor int

	// FocalIndex selects which focal depth's records form the image
	FocalIndex int
}

// NewLayout searches for the smallest divisor i of samplesPerRecord with
// samplesPerRecord / i < 2 × angleCount and uses samplesPerRecord / i as
// the image height. The search always terminates because i =
// samplesPerRecord yields a height of 1.
func NewLayout(samplesPerRecord, angleCount, focalCount, focalIndex int) (Layout, error) {
	if samplesPerRecord < 1 {
		return Layout{}, fmt.Errorf("%w: samples per record must be at least 1, got %d", models.ErrConfiguration, samplesPerRecord)
	}
	if angleCount < 1 {
		return Layout{}, fmt.Errorf("%w: angle count must be at least 1, got %d", models.ErrConfiguration, angleCount)
	}
	if focalIndex < 0 || focalIndex >= focalCount {
		return Layout{}, fmt.Errorf("%w: focal index %d outside [0, %d)", models.ErrConfiguration, focalIndex, focalCount)
	}

	scale := samplesPerRecord
	for i := 1; i <= samplesPerRecord; i++ {
		// integer division: i only qualifies when it divides exactly
		if samplesPerRecord%i == 0 && samplesPerRecord/i < 2*angleCount {
			scale = i
			break
		}
	}

	return Layout{
		SamplesPerRecord: samplesPerRecord,
		Width:            angleCount,
		Height:           samplesPerRecord / scale,
		ScaleFactor:      scale,
		FocalIndex:       focalIndex,
	}, nil
}

// Pixels returns Height × Width.
func (l Layout) Pixels() int {
	return l.Height * l.Width
}

// Record returns the record index feeding image column col.
func (l Layout) Record(col int) int {
	return l.FocalIndex*l.Width + col
}
