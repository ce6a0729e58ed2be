package pipeline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lungseg/internal/models"
)

// Metrics summarizes a segmentation run
type Metrics struct {
	RunID string
	Shape models.Shape

	// Foreground voxel counts per stage
	ThresholdVoxels int
	FilledVoxels    int
	RefinedVoxels   int

	// ForegroundFraction is the share of the grid covered by the refined mask
	ForegroundFraction float64

	// LungVolumeML is the physical volume of the refined mask in millilitres
	LungVolumeML float64

	// IntensityMean and IntensityStdDev describe the whole scan
	IntensityMean   float64
	IntensityStdDev float64

	// LungMeanIntensity is the mean intensity inside the refined mask,
	// zero when the mask is empty
	LungMeanIntensity float64

	// RefinementDice is the Dice overlap between the thresholded and refined
	// masks. Values close to 1 mean refinement changed little.
	RefinementDice float64
}

func calculateMetrics(vol *models.IntensityVolume, meta models.SpatialMetadata, masks map[Stage]*models.BinaryMask) Metrics {
	threshold := masks[StageThreshold]
	refined := masks[StageRefined]

	m := Metrics{
		Shape:           vol.Shape,
		ThresholdVoxels: threshold.Count(),
		FilledVoxels:    masks[StageFilled].Count(),
		RefinedVoxels:   refined.Count(),
	}

	m.ForegroundFraction = float64(m.RefinedVoxels) / float64(vol.Voxels())
	// 1 mL = 1000 mm^3
	m.LungVolumeML = float64(m.RefinedVoxels) * meta.VoxelVolume() / 1000

	finite := make([]float64, 0, len(vol.Data))
	weights := make([]float64, 0, len(vol.Data))
	for i, v := range vol.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
		if refined.Data[i] {
			weights = append(weights, 1)
		} else {
			weights = append(weights, 0)
		}
	}

	if len(finite) > 0 {
		m.IntensityMean, m.IntensityStdDev = stat.MeanStdDev(finite, nil)
		if len(finite) < 2 {
			m.IntensityStdDev = 0
		}
	}
	if floats.Sum(weights) > 0 {
		m.LungMeanIntensity = stat.Mean(finite, weights)
	}

	m.RefinementDice = dice(threshold, refined)
	return m
}

// dice returns 2|A∩B| / (|A|+|B|), or 1 when both masks are empty
func dice(a, b *models.BinaryMask) float64 {
	var both, total int
	for i := range a.Data {
		if a.Data[i] {
			total++
		}
		if b.Data[i] {
			total++
		}
		if a.Data[i] && b.Data[i] {
			both++
		}
	}
	if total == 0 {
		return 1
	}
	return 2 * float64(both) / float64(total)
}
