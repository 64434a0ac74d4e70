//go:build opencl

package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"usbeamform/internal/logging"
	"usbeamform/internal/models"
)

// dasKernelSource is the per-pixel delay-and-sum kernel. It mirrors
// Job.pixel exactly: 64-bit accumulation, samples past the end of the record
// contribute 0, truncating division by the scale factor.
const dasKernelSource = `
__kernel void das_pixel(
    __global const ushort* data,
    __global const int* offsets,
    __global uint* image,
    const int slotLen,
    const int elements,
    const int samplesPerRecord,
    const int scale,
    const int width,
    const int focalIndex)
{
    const int col = get_global_id(0);
    const int row = get_global_id(1);
    const int record = focalIndex * width + col;
    const long end = (long)(record + 1) * samplesPerRecord;
    const long base = (long)record * samplesPerRecord + (long)row * scale;

    ulong sum = 0;
    for (int e = 0; e < elements; e++) {
        const long start = base + offsets[record * elements + e];
        __global const ushort* slot = data + (long)e * slotLen;
        for (int k = 0; k < scale; k++) {
            const long idx = start + k;
            if (idx < end) {
                sum += slot[idx];
            }
        }
    }
    image[row * width + col] = (uint)(sum / (ulong)scale);
}
`

// OpenCL runs one work item per pixel on an OpenCL device. Buffers are
// reused across reconstructions and regrown when the job shape changes.
type OpenCL struct {
	mu sync.Mutex

	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	kernel     *cl.Kernel
	deviceName string

	dataBuf   *cl.MemObject
	offsetBuf *cl.MemObject
	imageBuf  *cl.MemObject
	dataLen   int
	offsetLen int
	imageLen  int

	hostData    []uint16
	hostOffsets []int32
}

func newOpenCL() (Strategy, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrBackendUnavailable, msg, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no OpenCL platforms", models.ErrBackendUnavailable)
	}

	var device *cl.Device
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
		if device != nil {
			break
		}
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no OpenCL device found", models.ErrBackendUnavailable)
	}

	o := &OpenCL{deviceName: device.Name()}
	if err := o.init(device); err != nil {
		o.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}

	logging.Logger().Info("OpenCL backend ready", "device", o.deviceName)
	return o, nil
}

func (o *OpenCL) init(device *cl.Device) error {
	var err error
	o.context, err = cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	o.queue, err = o.context.CreateCommandQueue(device, 0)
	if err != nil {
		return fmt.Errorf("creating command queue: %w", err)
	}
	o.program, err = o.context.CreateProgramWithSource([]string{dasKernelSource})
	if err != nil {
		return fmt.Errorf("creating program: %w", err)
	}
	if err := o.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return fmt.Errorf("building program: %s", string(buildErr))
		}
		return fmt.Errorf("building program: %w", err)
	}
	o.kernel, err = o.program.CreateKernel("das_pixel")
	if err != nil {
		return fmt.Errorf("creating kernel: %w", err)
	}
	return nil
}

func (o *OpenCL) Name() string { return string(KindOpenCL) }

// DeviceName returns the name of the OpenCL device in use.
func (o *OpenCL) DeviceName() string { return o.deviceName }

// ensureBuffer returns buf if it already holds size bytes, or a new buffer
// of that size otherwise.
func (o *OpenCL) ensureBuffer(buf *cl.MemObject, have *int, size int, flags cl.MemFlag) (*cl.MemObject, error) {
	if buf != nil && *have == size {
		return buf, nil
	}
	if buf != nil {
		buf.Release()
	}
	nb, err := o.context.CreateEmptyBuffer(flags, size)
	if err != nil {
		*have = 0
		return nil, err
	}
	*have = size
	return nb, nil
}

func (o *OpenCL) Reconstruct(ctx context.Context, job *Job) ([]uint32, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	elements := job.Frame.Elements()
	slotLen := job.Frame.SlotLen()

	// stage the frame contiguously, element-major
	if cap(o.hostData) < elements*slotLen {
		o.hostData = make([]uint16, elements*slotLen)
	}
	o.hostData = o.hostData[:elements*slotLen]
	for e := 0; e < elements; e++ {
		slot := job.Frame.Slot(e)
		dst := o.hostData[e*slotLen : (e+1)*slotLen]
		for i, s := range slot {
			dst[i] = uint16(s)
		}
	}

	records := job.Table.Records()
	if cap(o.hostOffsets) < records*elements {
		o.hostOffsets = make([]int32, records*elements)
	}
	o.hostOffsets = o.hostOffsets[:records*elements]
	for r := 0; r < records; r++ {
		for e, off := range job.Table.RecordOffsets(r) {
			o.hostOffsets[r*elements+e] = int32(off)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	dataBytes := len(o.hostData) * int(unsafe.Sizeof(uint16(0)))
	if o.dataBuf, err = o.ensureBuffer(o.dataBuf, &o.dataLen, dataBytes, cl.MemReadOnly); err != nil {
		return nil, fmt.Errorf("allocating sample buffer: %w", err)
	}
	offsetBytes := len(o.hostOffsets) * int(unsafe.Sizeof(int32(0)))
	if o.offsetBuf, err = o.ensureBuffer(o.offsetBuf, &o.offsetLen, offsetBytes, cl.MemReadOnly); err != nil {
		return nil, fmt.Errorf("allocating offset buffer: %w", err)
	}
	out := make([]uint32, job.Layout.Pixels())
	imageBytes := len(out) * int(unsafe.Sizeof(uint32(0)))
	if o.imageBuf, err = o.ensureBuffer(o.imageBuf, &o.imageLen, imageBytes, cl.MemWriteOnly); err != nil {
		return nil, fmt.Errorf("allocating image buffer: %w", err)
	}

	if _, err := o.queue.EnqueueWriteBuffer(o.dataBuf, true, 0, dataBytes, unsafe.Pointer(&o.hostData[0]), nil); err != nil {
		return nil, fmt.Errorf("uploading samples: %w", err)
	}
	if _, err := o.queue.EnqueueWriteBuffer(o.offsetBuf, true, 0, offsetBytes, unsafe.Pointer(&o.hostOffsets[0]), nil); err != nil {
		return nil, fmt.Errorf("uploading offsets: %w", err)
	}

	if err := o.kernel.SetArgBuffer(0, o.dataBuf); err != nil {
		return nil, fmt.Errorf("binding samples: %w", err)
	}
	if err := o.kernel.SetArgBuffer(1, o.offsetBuf); err != nil {
		return nil, fmt.Errorf("binding offsets: %w", err)
	}
	if err := o.kernel.SetArgBuffer(2, o.imageBuf); err != nil {
		return nil, fmt.Errorf("binding image: %w", err)
	}
	scalars := []int{slotLen, elements, job.Layout.SamplesPerRecord, job.Layout.ScaleFactor, job.Layout.Width, job.Layout.FocalIndex}
	for i, v := range scalars {
		if err := o.kernel.SetArgInt32(3+i, int32(v)); err != nil {
			return nil, fmt.Errorf("setting kernel argument %d: %w", 3+i, err)
		}
	}

	global := []int{job.Layout.Width, job.Layout.Height}
	if _, err := o.queue.EnqueueNDRangeKernel(o.kernel, nil, global, nil, nil); err != nil {
		return nil, fmt.Errorf("dispatching kernel: %w", err)
	}
	if _, err := o.queue.EnqueueReadBuffer(o.imageBuf, true, 0, imageBytes, unsafe.Pointer(&out[0]), nil); err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases every OpenCL object held by the strategy.
func (o *OpenCL) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, b := range []*cl.MemObject{o.imageBuf, o.offsetBuf, o.dataBuf} {
		if b != nil {
			b.Release()
		}
	}
	o.imageBuf, o.offsetBuf, o.dataBuf = nil, nil, nil
	if o.kernel != nil {
		o.kernel.Release()
		o.kernel = nil
	}
	if o.program != nil {
		o.program.Release()
		o.program = nil
	}
	if o.queue != nil {
		o.queue.Release()
		o.queue = nil
	}
	if o.context != nil {
		o.context.Release()
		o.context = nil
	}
	return nil
}
