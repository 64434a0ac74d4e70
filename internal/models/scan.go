package models

import (
	"fmt"
	"math"
)

// ArrayGeometry describes a fixed linear transducer array.
// It is created once at configuration time and never mutated.
type ArrayGeometry struct {
	// Elements is the number of transducer channels in the array
	Elements int

	// Pitch is the centre-to-centre element spacing in meters
	Pitch float64
}

// Validate reports whether the geometry can be used to compute delays.
func (g ArrayGeometry) Validate() error {
	if g.Elements < 1 {
		return fmt.Errorf("%w: element count must be at least 1, got %d", ErrConfiguration, g.Elements)
	}
	if !(g.Pitch > 0) || math.IsInf(g.Pitch, 0) {
		return fmt.Errorf("%w: element pitch must be positive, got %g", ErrConfiguration, g.Pitch)
	}
	return nil
}

// HalfElements is the element index of the array centre used as the
// reference point for every delay.
func (g ArrayGeometry) HalfElements() int {
	return g.Elements / 2
}

// ScanConfiguration holds the steering and focusing parameters of an
// acquisition sequence. Records are ordered focal-major: all angles for the
// first focal depth, then all angles for the next one.
type ScanConfiguration struct {
	// Angles are the steering angles in degrees
	Angles []int

	// Focals are the focal depths in meters
	Focals []float64

	// SamplingRate is the digitizer sampling rate in Hz
	SamplingRate float64

	// TriggerOffset is the delay from the master trigger to the element
	// triggers, in seconds
	TriggerOffset float64

	// SpeedOfSound is the (static) speed of sound in the medium, in m/s
	SpeedOfSound float64

	// RoundTrip doubles the geometric term of every delay to account for
	// two-way transit time. Off by default.
	RoundTrip bool
}

// Validate reports whether the scan can be turned into a delay table.
func (s ScanConfiguration) Validate() error {
	if len(s.Angles) == 0 {
		return fmt.Errorf("%w: angle set is empty", ErrConfiguration)
	}
	if len(s.Focals) == 0 {
		return fmt.Errorf("%w: focal depth set is empty", ErrConfiguration)
	}
	for i, f := range s.Focals {
		if !(f > 0) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: focal depth %d must be positive, got %g", ErrConfiguration, i, f)
		}
	}
	if !(s.SamplingRate > 0) || math.IsInf(s.SamplingRate, 0) {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", ErrConfiguration, s.SamplingRate)
	}
	if !(s.SpeedOfSound > 0) || math.IsInf(s.SpeedOfSound, 0) {
		return fmt.Errorf("%w: speed of sound must be positive, got %g", ErrConfiguration, s.SpeedOfSound)
	}
	if math.IsNaN(s.TriggerOffset) || math.IsInf(s.TriggerOffset, 0) {
		return fmt.Errorf("%w: trigger offset must be finite, got %g", ErrConfiguration, s.TriggerOffset)
	}
	return nil
}

// RecordCount is |angles| × |focals|.
func (s ScanConfiguration) RecordCount() int {
	return len(s.Angles) * len(s.Focals)
}

// SamplePeriod is the time between two consecutive samples, in seconds.
func (s ScanConfiguration) SamplePeriod() float64 {
	return 1.0 / s.SamplingRate
}

// RecordIndex maps a (focal, angle) index pair to its record.
func (s ScanConfiguration) RecordIndex(focalIdx, angleIdx int) int {
	return focalIdx*len(s.Angles) + angleIdx
}

// AcquisitionLayout describes how raw samples are laid out in the frame
// buffer.
type AcquisitionLayout struct {
	// SamplesPerRecord is the number of samples captured for one record
	SamplesPerRecord int

	// ChannelsPerElement is the number of digitizer channels stored per slot
	ChannelsPerElement int

	// FrameCount is the number of frames the buffer slots are partitioned into
	FrameCount int
}

// Validate reports whether the layout can back a frame buffer.
func (l AcquisitionLayout) Validate() error {
	if l.SamplesPerRecord < 1 {
		return fmt.Errorf("%w: samples per record must be at least 1, got %d", ErrConfiguration, l.SamplesPerRecord)
	}
	if l.ChannelsPerElement < 1 {
		return fmt.Errorf("%w: channels per element must be at least 1, got %d", ErrConfiguration, l.ChannelsPerElement)
	}
	if l.FrameCount < 1 {
		return fmt.Errorf("%w: frame count must be at least 1, got %d", ErrConfiguration, l.FrameCount)
	}
	return nil
}

// SamplesPerSlot is the length of one buffer slot for the given record count.
func (l AcquisitionLayout) SamplesPerSlot(recordCount int) int {
	return l.SamplesPerRecord * recordCount * l.ChannelsPerElement
}
