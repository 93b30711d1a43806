package domain

import "math"

// BytesPerSample is the assumed sample size of the remote product (float32).
const BytesPerSample = 4

// EstimateBytes predicts the output size of an export.
// The estimate ignores masking, which only shrinks real output, so it errs
// on the large side. An unknown area yields +Inf so the candidate sorts last.
func EstimateBytes(areaM2 float64, areaKnown bool, bandCount int, resolutionM float64) float64 {
	if !areaKnown || areaM2 <= 0 || resolutionM <= 0 {
		return math.Inf(1)
	}
	pixels := areaM2 / (resolutionM * resolutionM)
	return pixels * float64(bandCount) * BytesPerSample
}

// EstimateRegion is EstimateBytes for a region.
func EstimateRegion(region Region, bandCount int, resolutionM float64) float64 {
	area, ok := region.Area()
	return EstimateBytes(area, ok, bandCount, resolutionM)
}
