// Package geometry converts linear-array geometry, steering angle and focal
// depth into per-element focusing delays.
package geometry

import (
	"math"

	"usbeamform/internal/models"
)

// Model is the spherical-focusing model for a 1D linear array. It holds only
// the constants it was built from and is safe for concurrent use.
type Model struct {
	elements      int
	half          float64
	pitch         float64
	speedOfSound  float64
	triggerOffset float64

	// pathFactor is 2 for round-trip timing, 1 otherwise
	pathFactor float64
}

// New creates a delay model for the given array and scan. Inputs are
// assumed to be validated by the caller.
func New(g models.ArrayGeometry, scan models.ScanConfiguration) *Model {
	factor := 1.0
	if scan.RoundTrip {
		factor = 2.0
	}
	return &Model{
		elements:      g.Elements,
		half:          float64(g.HalfElements()),
		pitch:         g.Pitch,
		speedOfSound:  scan.SpeedOfSound,
		triggerOffset: scan.TriggerOffset,
		pathFactor:    factor,
	}
}

// Elements returns the number of array elements the model was built for.
func (m *Model) Elements() int {
	return m.elements
}

// PathDifference returns the extra path length, in meters, between the
// array centre and element e for a focal point at depth focal steered by
// angleDeg degrees. The value is negative for elements off the centre line.
func (m *Model) PathDifference(element int, focal, angleDeg float64) float64 {
	theta := (90 + angleDeg) * math.Pi / 180
	x := focal*math.Cos(theta) - (m.half-float64(element))*m.pitch
	y := focal * math.Sin(theta)
	return focal - math.Sqrt(y*y+x*x)
}

// Delay returns the focusing delay, in seconds, for element e.
func (m *Model) Delay(element int, focal, angleDeg float64) float64 {
	return m.triggerOffset + m.pathFactor*m.PathDifference(element, focal, angleDeg)/m.speedOfSound
}
