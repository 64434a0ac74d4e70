//go:build !opencl

package reconstruction

import (
	"fmt"

	"usbeamform/internal/models"
)

// newOpenCL reports the accelerator as unavailable in builds without the
// opencl tag.
func newOpenCL() (Strategy, error) {
	return nil, fmt.Errorf("%w: built without the opencl tag", models.ErrBackendUnavailable)
}
