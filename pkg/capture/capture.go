// Package capture saves and replays raw acquisition frames.
//
// A capture file is a zstd stream holding a fixed header followed by every
// element slot of one frame, element by element, as little-endian uint16
// samples. Replaying a capture through a framebuffer.Writer stands in for a
// live digitizer.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"usbeamform/internal/models"
	"usbeamform/pkg/framebuffer"
)

// magic identifies capture streams ("USBF").
const magic uint32 = 0x46425355

const version uint16 = 1

// Header describes the frame stored in a capture.
type Header struct {
	Elements         uint32
	Records          uint32
	SamplesPerRecord uint32
	SlotLen          uint32
}

type fileHeader struct {
	Magic   uint32
	Version uint16
	_       uint16
	Header
}

// Save writes the frame visible through view to w.
func Save(w io.Writer, view *framebuffer.View) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}

	bw := bufio.NewWriter(enc)
	hdr := fileHeader{
		Magic:   magic,
		Version: version,
		Header: Header{
			Elements:         uint32(view.Elements()),
			Records:          uint32(view.Records()),
			SamplesPerRecord: uint32(view.SamplesPerRecord()),
			SlotLen:          uint32(view.SlotLen()),
		},
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		enc.Close()
		return fmt.Errorf("writing capture header: %w", err)
	}
	for e := 0; e < view.Elements(); e++ {
		if err := binary.Write(bw, binary.LittleEndian, view.Slot(e)); err != nil {
			enc.Close()
			return fmt.Errorf("writing element %d: %w", e, err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flushing capture: %w", err)
	}
	return enc.Close()
}

// Reader decodes a capture stream.
type Reader struct {
	dec    *zstd.Decoder
	header Header
	next   int
}

// NewReader reads and checks the capture header.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	var hdr fileHeader
	if err := binary.Read(dec, binary.LittleEndian, &hdr); err != nil {
		dec.Close()
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if hdr.Magic != magic {
		dec.Close()
		return nil, fmt.Errorf("not a capture stream (magic %#x)", hdr.Magic)
	}
	if hdr.Version != version {
		dec.Close()
		return nil, fmt.Errorf("unsupported capture version %d", hdr.Version)
	}
	return &Reader{dec: dec, header: hdr.Header}, nil
}

// Header returns the shape of the captured frame.
func (r *Reader) Header() Header { return r.header }

// NextSlot reads the next element's samples into dst, which must hold
// exactly SlotLen samples. It returns the element index, or io.EOF after
// the last element.
func (r *Reader) NextSlot(dst []framebuffer.Sample) (int, error) {
	if r.next >= int(r.header.Elements) {
		return 0, io.EOF
	}
	if len(dst) != int(r.header.SlotLen) {
		return 0, fmt.Errorf("%w: slot buffer holds %d samples, capture slots hold %d",
			models.ErrDimensionMismatch, len(dst), r.header.SlotLen)
	}
	if err := binary.Read(r.dec, binary.LittleEndian, dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("reading element %d: %w", r.next, err)
	}
	e := r.next
	r.next++
	return e, nil
}

// Close releases the decoder.
func (r *Reader) Close() {
	r.dec.Close()
}

// Load replays a capture into the frame held by w. The capture shape must
// match the frame buffer exactly.
func Load(r io.Reader, w *framebuffer.Writer) error {
	cr, err := NewReader(r)
	if err != nil {
		return err
	}
	defer cr.Close()

	h := cr.Header()
	if int(h.Elements) != w.Elements() || int(h.SlotLen) != w.SlotLen() {
		return fmt.Errorf("%w: capture holds %d slots of %d samples, frame has %d slots of %d",
			models.ErrDimensionMismatch, h.Elements, h.SlotLen, w.Elements(), w.SlotLen())
	}

	buf := make([]framebuffer.Sample, h.SlotLen)
	for {
		e, err := cr.NextSlot(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Write(e, 0, buf); err != nil {
			return err
		}
	}
}
