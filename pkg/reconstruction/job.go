package reconstruction

import (
	"fmt"

	"usbeamform/internal/models"
	"usbeamform/pkg/delay"
	"usbeamform/pkg/framebuffer"
)

// Job bundles the read-only inputs of one reconstruction. Nothing in a Job
// is modified while a strategy runs.
type Job struct {
	Layout Layout
	Table  *delay.Table
	Frame  *framebuffer.View
}

// Validate checks that the table, frame and layout agree. It runs before any
// pixel is computed.
func (j *Job) Validate() error {
	if j.Table == nil {
		return fmt.Errorf("%w: no delay table", models.ErrDimensionMismatch)
	}
	if j.Frame == nil {
		return fmt.Errorf("%w: no active frame", models.ErrDimensionMismatch)
	}
	if j.Table.Elements() != j.Frame.Elements() {
		return fmt.Errorf("%w: delay table has %d elements, frame has %d",
			models.ErrDimensionMismatch, j.Table.Elements(), j.Frame.Elements())
	}
	if j.Table.Records() != j.Frame.Records() {
		return fmt.Errorf("%w: delay table has %d records, frame has %d",
			models.ErrDimensionMismatch, j.Table.Records(), j.Frame.Records())
	}
	if j.Layout.SamplesPerRecord != j.Frame.SamplesPerRecord() {
		return fmt.Errorf("%w: layout expects %d samples per record, frame has %d",
			models.ErrDimensionMismatch, j.Layout.SamplesPerRecord, j.Frame.SamplesPerRecord())
	}
	if j.Layout.Height*j.Layout.ScaleFactor != j.Layout.SamplesPerRecord || j.Layout.Pixels() < 1 {
		return fmt.Errorf("%w: layout %dx%d with scale factor %d does not cover %d samples",
			models.ErrDimensionMismatch, j.Layout.Height, j.Layout.Width, j.Layout.ScaleFactor, j.Layout.SamplesPerRecord)
	}
	if last := j.Layout.Record(j.Layout.Width - 1); last >= j.Table.Records() {
		return fmt.Errorf("%w: image needs record %d, table has %d",
			models.ErrDimensionMismatch, last, j.Table.Records())
	}
	if j.Frame.SlotLen() < j.Table.Records()*j.Layout.SamplesPerRecord {
		return fmt.Errorf("%w: slot length %d cannot hold %d records of %d samples",
			models.ErrDimensionMismatch, j.Frame.SlotLen(), j.Table.Records(), j.Layout.SamplesPerRecord)
	}
	return nil
}

// pixel computes one output pixel. It is the single definition of the
// delay-and-sum arithmetic shared by every CPU strategy:
//
//   - sample indices at or past the end of the column's record contribute 0
//   - sums accumulate in 64 bits
//   - the result is the sum truncated-divided by the scale factor
func (j *Job) pixel(row, col int) uint32 {
	spr := j.Layout.SamplesPerRecord
	scale := j.Layout.ScaleFactor
	record := j.Layout.Record(col)
	end := (record + 1) * spr
	base := record*spr + row*scale

	var sum uint64
	for e, off := range j.Table.RecordOffsets(record) {
		slot := j.Frame.Slot(e)
		start := base + off
		stop := start + scale
		if stop > end {
			stop = end
		}
		for idx := start; idx < stop; idx++ {
			sum += uint64(slot[idx])
		}
	}
	return average(sum, scale)
}

// average is the truncating per-pixel division.
func average(sum uint64, scale int) uint32 {
	return uint32(sum / uint64(scale))
}
