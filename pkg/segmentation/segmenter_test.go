package segmentation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungseg/internal/models"
)

// filledVolume creates a volume with every sample set to value
func filledVolume(shape models.Shape, value float64) *models.IntensityVolume {
	vol := models.NewIntensityVolume(shape)
	for i := range vol.Data {
		vol.Data[i] = value
	}
	return vol
}

func TestSegmentUniformLungVolume(t *testing.T) {
	shape := models.Shape{Depth: 3, Height: 4, Width: 4}
	mask := Segment(filledVolume(shape, -500), models.DefaultThresholds())

	assert.Equal(t, shape, mask.Shape)
	assert.Equal(t, shape.Voxels(), mask.Count())
}

func TestSegmentStrictBounds(t *testing.T) {
	vol := &models.IntensityVolume{
		Shape: models.Shape{Depth: 1, Height: 1, Width: 6},
		Data:  []float64{-1000, -999.5, -300.5, -300, math.NaN(), 40},
	}

	mask := Segment(vol, models.DefaultThresholds())
	assert.Equal(t, []bool{false, true, true, false, false, false}, mask.Data)
}

func TestSegmentDegenerateRangeIsAllBackground(t *testing.T) {
	vol := models.NewIntensityVolume(models.Shape{Depth: 2, Height: 5, Width: 5})
	for i := range vol.Data {
		vol.Data[i] = float64(i*37%2000) - 1000
	}

	for _, r := range []models.ThresholdRange{
		{Low: -300, High: -1000},
		{Low: -500, High: -500},
		{Low: math.Inf(1), High: math.Inf(-1)},
	} {
		mask := Segment(vol, r)
		assert.Zero(t, mask.Count(), "range %+v", r)
	}
}

func TestSegmentDoesNotModifyInput(t *testing.T) {
	vol := filledVolume(models.Shape{Depth: 1, Height: 2, Width: 2}, -700)
	before := append([]float64(nil), vol.Data...)
	Segment(vol, models.DefaultThresholds())
	assert.Equal(t, before, vol.Data)
}

func TestSegmentSlice(t *testing.T) {
	shape := models.Shape{Depth: 3, Height: 2, Width: 2}
	vol := models.NewIntensityVolume(shape)
	for z := 0; z < shape.Depth; z++ {
		for i := 0; i < shape.SliceSize(); i++ {
			vol.Data[z*shape.SliceSize()+i] = -500 * float64(z)
		}
	}

	full := Segment(vol, models.DefaultThresholds())
	for z := 0; z < shape.Depth; z++ {
		slice, err := SegmentSlice(vol, z, models.DefaultThresholds())
		require.NoError(t, err)
		assert.Equal(t, 1, slice.Depth)
		assert.Equal(t, full.Data[z*4:(z+1)*4], slice.Data, "slice %d", z)
	}

	_, err := SegmentSlice(vol, 3, models.DefaultThresholds())
	assert.Error(t, err)
}
