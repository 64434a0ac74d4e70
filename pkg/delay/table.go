// Package delay builds the focusing delay table used by the beamformer.
//
// A Table is derived once from an array geometry and a scan configuration
// and is read-only afterwards; it may be shared by any number of concurrent
// reconstructions without locking.
package delay

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"usbeamform/internal/logging"
	"usbeamform/internal/models"
	"usbeamform/pkg/geometry"
)

// ProfilePoint is one entry of the diagnostic delay profile.
type ProfilePoint struct {
	Element int
	Delay   float64 // seconds
}

// Summary describes the spread of the continuous delays in a table.
type Summary struct {
	Min, Max, Mean float64
	MinOffset      int
	MaxOffset      int
}

// Table holds the continuous delays and quantized sample offsets for every
// (record, element) pair.
type Table struct {
	records      int
	elements     int
	samplePeriod float64

	// delays is records × elements, seconds
	delays *mat.Dense

	// offsets is records × elements in row-major order
	offsets []int

	// profile preserves build order: element, then focal, then angle
	profile []ProfilePoint
}

// Build computes the delay table for the given geometry and scan.
//
// Entries are visited element-outermost, then focal depth, then angle, and
// stored at record index focalIndex × angleCount + angleIndex. Each delay is
// quantized with Quantize. A negative offset would index before the start of
// a record and is rejected as a configuration error: raise the trigger
// offset until it absorbs the geometric term.
func Build(g models.ArrayGeometry, scan models.ScanConfiguration) (*Table, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := scan.Validate(); err != nil {
		return nil, err
	}

	model := geometry.New(g, scan)
	records := scan.RecordCount()
	dt := scan.SamplePeriod()

	t := &Table{
		records:      records,
		elements:     g.Elements,
		samplePeriod: dt,
		delays:       mat.NewDense(records, g.Elements, nil),
		offsets:      make([]int, records*g.Elements),
		profile:      make([]ProfilePoint, 0, records*g.Elements),
	}

	for e := 0; e < g.Elements; e++ {
		for fi, focal := range scan.Focals {
			for ai, angle := range scan.Angles {
				d := model.Delay(e, focal, float64(angle))
				r := scan.RecordIndex(fi, ai)

				t.profile = append(t.profile, ProfilePoint{Element: e, Delay: d})
				t.delays.Set(r, e, d)

				off := Quantize(d, dt)
				if off < 0 {
					return nil, fmt.Errorf("%w: element %d, focal %g m, angle %d° gives negative sample offset %d (trigger offset %g s too small)",
						models.ErrConfiguration, e, focal, angle, off, scan.TriggerOffset)
				}
				t.offsets[r*g.Elements+e] = off
			}
		}
	}

	s := t.Summary()
	logging.Logger().Info("delay table built",
		"records", records,
		"elements", g.Elements,
		"minOffset", s.MinOffset,
		"maxOffset", s.MaxOffset)

	return t, nil
}

// Records returns the number of records (rows) in the table.
func (t *Table) Records() int { return t.records }

// Elements returns the number of elements (columns) in the table.
func (t *Table) Elements() int { return t.elements }

// SamplePeriod returns the sample period the offsets were quantized with.
func (t *Table) SamplePeriod() float64 { return t.samplePeriod }

// Delay returns the continuous delay in seconds for a record and element.
func (t *Table) Delay(record, element int) float64 {
	return t.delays.At(record, element)
}

// Offset returns the quantized sample offset for a record and element.
func (t *Table) Offset(record, element int) int {
	return t.offsets[record*t.elements+element]
}

// RecordOffsets returns the offsets of one record. The returned slice
// aliases the table and must not be modified.
func (t *Table) RecordOffsets(record int) []int {
	return t.offsets[record*t.elements : (record+1)*t.elements]
}

// Offsets returns a copy of the full offset matrix in row-major order.
func (t *Table) Offsets() []int {
	out := make([]int, len(t.offsets))
	copy(out, t.offsets)
	return out
}

// Profile returns the diagnostic delay profile in build order. The result
// is a copy.
func (t *Table) Profile() []ProfilePoint {
	out := make([]ProfilePoint, len(t.profile))
	copy(out, t.profile)
	return out
}

// RecordProfile returns the per-element delays of one record, ready to be
// plotted as delay versus element number.
func (t *Table) RecordProfile(record int) []float64 {
	return mat.Row(nil, record, t.delays)
}

// Summary returns the spread of delays and offsets in the table.
func (t *Table) Summary() Summary {
	raw := t.delays.RawMatrix().Data
	s := Summary{
		Min:  floats.Min(raw),
		Max:  floats.Max(raw),
		Mean: stat.Mean(raw, nil),
	}
	s.MinOffset, s.MaxOffset = t.offsets[0], t.offsets[0]
	for _, o := range t.offsets[1:] {
		if o < s.MinOffset {
			s.MinOffset = o
		}
		if o > s.MaxOffset {
			s.MaxOffset = o
		}
	}
	return s
}
