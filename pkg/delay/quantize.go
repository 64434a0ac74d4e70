package delay

import "math"

// Quantize converts a continuous delay into a sample offset by truncating
// toward zero. Every component that turns a delay into a sample index must
// go through this function so the result never depends on the caller.
func Quantize(delaySeconds, samplePeriod float64) int {
	return int(math.Trunc(delaySeconds / samplePeriod))
}
