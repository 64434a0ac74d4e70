package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"usbeamform/internal/logging"
	"usbeamform/internal/models"
)

// Strategy is one way of executing a reconstruction. Every implementation
// must produce bit-identical pixels for the same Job.
type Strategy interface {
	// Name identifies the strategy in logs and published images.
	Name() string

	// Reconstruct returns Layout.Height × Layout.Width pixels in row-major
	// order. On error, or if ctx is cancelled, no pixels are returned.
	Reconstruct(ctx context.Context, job *Job) ([]uint32, error)

	// Close releases any resources held by the strategy.
	Close() error
}

// Kind names a strategy selection policy.
type Kind string

const (
	KindSequential Kind = "sequential"
	KindParallel   Kind = "parallel"
	KindOpenCL     Kind = "opencl"

	// KindAuto prefers the OpenCL backend and falls back to the CPU worker
	// pool when no accelerator can be initialised.
	KindAuto Kind = "auto"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSequential, KindParallel, KindOpenCL, KindAuto:
		return k, nil
	case "":
		return KindAuto, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q (want sequential, parallel, opencl or auto)", models.ErrConfiguration, s)
	}
}

// Select builds the strategy for kind. An explicit KindOpenCL request fails
// with ErrBackendUnavailable when no accelerator is present; KindAuto falls
// back to the parallel CPU strategy instead.
func Select(kind Kind, workers int) (Strategy, error) {
	switch kind {
	case KindSequential:
		return Sequential{}, nil
	case KindParallel:
		return NewParallel(workers), nil
	case KindOpenCL:
		return newOpenCL()
	case KindAuto:
		s, err := newOpenCL()
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, models.ErrBackendUnavailable) {
			return nil, err
		}
		logging.Logger().Warn("accelerator unavailable, using CPU workers", "err", err)
		return NewParallel(workers), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", models.ErrConfiguration, kind)
	}
}

// Sequential computes pixels one after another on the calling goroutine.
// It is the reference every other strategy is checked against.
type Sequential struct{}

func (Sequential) Name() string { return string(KindSequential) }

func (Sequential) Close() error { return nil }

func (Sequential) Reconstruct(ctx context.Context, job *Job) ([]uint32, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	w := job.Layout.Width
	out := make([]uint32, job.Layout.Pixels())
	for row := 0; row < job.Layout.Height; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < w; col++ {
			out[row*w+col] = job.pixel(row, col)
		}
	}
	return out, nil
}
