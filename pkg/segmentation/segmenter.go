// Package segmentation converts intensity volumes into binary tissue masks
// by fixed-range thresholding.
package segmentation

import (
	"fmt"

	"lungseg/internal/models"
)

// Segment labels every voxel whose intensity lies strictly inside r.
// Values equal to either bound, and NaN samples, are background.
// A degenerate range (Low >= High) yields an all-background mask.
func Segment(volume *models.IntensityVolume, r models.ThresholdRange) *models.BinaryMask {
	mask := models.NewBinaryMask(volume.Shape)
	for i, v := range volume.Data {
		mask.Data[i] = v > r.Low && v < r.High
	}
	return mask
}

// SegmentSlice thresholds a single depth index into a depth-1 mask
func SegmentSlice(volume *models.IntensityVolume, z int, r models.ThresholdRange) (*models.BinaryMask, error) {
	if z < 0 || z >= volume.Depth {
		return nil, fmt.Errorf("slice %d out of range for depth %d", z, volume.Depth)
	}

	size := volume.SliceSize()
	mask := models.NewBinaryMask(models.Shape{Depth: 1, Height: volume.Height, Width: volume.Width})
	for i, v := range volume.Data[z*size : (z+1)*size] {
		mask.Data[i] = v > r.Low && v < r.High
	}
	return mask, nil
}
