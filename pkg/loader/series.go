package loader

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"lungseg/internal/models"
)

// seriesSlice is one decoded slice of a scan series
type seriesSlice struct {
	source string

	rows, cols int

	// pixels holds rescaled intensities in row-major order
	pixels []float64

	position    r3.Vec
	hasPosition bool

	// rowDir and colDir are the patient-space directions of increasing
	// column and row index
	rowDir, colDir r3.Vec

	// rowSpacing is the distance between rows, colSpacing between columns
	rowSpacing, colSpacing float64

	thickness float64
	instance  int
}

// assembleSeries orders slices along their normal and stacks them.
// Slices without positions are ordered by instance number.
func assembleSeries(slices []seriesSlice) (*models.IntensityVolume, models.SpatialMetadata, error) {
	if len(slices) == 0 {
		return nil, models.SpatialMetadata{}, &models.InputError{Reason: "series has no slices"}
	}

	first := slices[0]
	normal := r3.Unit(r3.Cross(first.rowDir, first.colDir))

	positioned := true
	for _, s := range slices {
		if s.rows != first.rows || s.cols != first.cols {
			return nil, models.SpatialMetadata{}, &models.InputError{Reason: fmt.Sprintf(
				"slice %s is %dx%d, expected %dx%d", s.source, s.rows, s.cols, first.rows, first.cols)}
		}
		if len(s.pixels) != s.rows*s.cols {
			return nil, models.SpatialMetadata{}, &models.InputError{Reason: fmt.Sprintf(
				"slice %s has %d pixels, expected %d", s.source, len(s.pixels), s.rows*s.cols)}
		}
		positioned = positioned && s.hasPosition
	}

	ordered := make([]seriesSlice, len(slices))
	copy(ordered, slices)
	sort.SliceStable(ordered, func(i, j int) bool {
		if positioned {
			return r3.Dot(ordered[i].position, normal) < r3.Dot(ordered[j].position, normal)
		}
		return ordered[i].instance < ordered[j].instance
	})

	shape := models.Shape{Depth: len(ordered), Height: first.rows, Width: first.cols}
	vol := models.NewIntensityVolume(shape)
	for z, s := range ordered {
		copy(vol.Data[z*shape.SliceSize():], s.pixels)
	}

	meta := models.SpatialMetadata{
		Shape:   shape,
		Spacing: [3]float64{first.colSpacing, first.rowSpacing, sliceSpacing(ordered, normal, positioned)},
		Direction: [9]float64{
			first.rowDir.X, first.colDir.X, normal.X,
			first.rowDir.Y, first.colDir.Y, normal.Y,
			first.rowDir.Z, first.colDir.Z, normal.Z,
		},
	}
	if positioned {
		p := ordered[0].position
		meta.Origin = [3]float64{p.X, p.Y, p.Z}
	}
	return vol, meta, nil
}

// sliceSpacing measures the distance between the first two slices along
// the normal, falling back to the slice thickness and then to 1mm
func sliceSpacing(ordered []seriesSlice, normal r3.Vec, positioned bool) float64 {
	if positioned && len(ordered) > 1 {
		d := math.Abs(r3.Dot(r3.Sub(ordered[1].position, ordered[0].position), normal))
		if d > 1e-6 {
			return d
		}
	}
	if ordered[0].thickness > 0 {
		return ordered[0].thickness
	}
	return 1
}
