package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shape describes the dimensions of a 3D voxel grid
type Shape struct {
	// Depth is the number of slices
	Depth int `yaml:"depth"`

	// Height is the number of rows in each slice
	Height int `yaml:"height"`

	// Width is the number of columns in each slice
	Width int `yaml:"width"`
}

// MaxVoxels bounds the size of any grid accepted from a file or caller
const MaxVoxels = math.MaxInt32

// Voxels returns the number of voxels in the grid. It is only meaningful for
// shapes that pass CheckSize.
func (s Shape) Voxels() int {
	return s.Depth * s.Height * s.Width
}

// CheckSize rejects shapes with an empty dimension or more than MaxVoxels voxels
func (s Shape) CheckSize() error {
	if s.Depth < 1 || s.Height < 1 || s.Width < 1 {
		return &InputError{Reason: fmt.Sprintf("shape %s has an empty dimension", s)}
	}
	if s.Width > MaxVoxels/s.Height || s.Width*s.Height > MaxVoxels/s.Depth {
		return &InputError{Reason: fmt.Sprintf("shape %s exceeds %d voxels", s, MaxVoxels)}
	}
	return nil
}

// SliceSize returns the number of voxels in a single slice
func (s Shape) SliceSize() int {
	return s.Height * s.Width
}

// Index returns the offset of voxel (x, y, z) in row-major order
func (s Shape) Index(x, y, z int) int {
	return z*s.Height*s.Width + y*s.Width + x
}

// Contains reports whether (x, y, z) lies inside the grid
func (s Shape) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < s.Width && y < s.Height && z < s.Depth
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.Depth, s.Height, s.Width)
}

// IntensityVolume holds scanner measurements (e.g. Hounsfield units)
// for a stack of slices.
type IntensityVolume struct {
	Shape

	// Data is the 3D volume data as a 1D array in row-major order
	Data []float64
}

// NewIntensityVolume allocates a zero-filled volume
func NewIntensityVolume(shape Shape) *IntensityVolume {
	return &IntensityVolume{
		Shape: shape,
		Data:  make([]float64, shape.Voxels()),
	}
}

// At returns the sample at (x, y, z)
func (v *IntensityVolume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Validate checks the volume invariants
func (v *IntensityVolume) Validate() error {
	if v == nil {
		return &InputError{Reason: "intensity volume is empty"}
	}
	if err := v.CheckSize(); err != nil {
		return err
	}
	if len(v.Data) != v.Voxels() {
		return &InputError{Reason: fmt.Sprintf("volume data has %d samples, shape %s needs %d",
			len(v.Data), v.Shape, v.Voxels())}
	}
	return nil
}

// BinaryMask labels each voxel as tissue (true) or background (false)
type BinaryMask struct {
	Shape

	Data []bool
}

// NewBinaryMask allocates an all-background mask
func NewBinaryMask(shape Shape) *BinaryMask {
	return &BinaryMask{
		Shape: shape,
		Data:  make([]bool, shape.Voxels()),
	}
}

// At returns the label at (x, y, z)
func (m *BinaryMask) At(x, y, z int) bool {
	return m.Data[m.Index(x, y, z)]
}

// Set assigns the label at (x, y, z)
func (m *BinaryMask) Set(x, y, z int, value bool) {
	m.Data[m.Index(x, y, z)] = value
}

// Count returns the number of foreground voxels
func (m *BinaryMask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask
func (m *BinaryMask) Clone() *BinaryMask {
	data := make([]bool, len(m.Data))
	copy(data, m.Data)
	return &BinaryMask{Shape: m.Shape, Data: data}
}

// Equal reports whether both masks have the same shape and labels
func (m *BinaryMask) Equal(other *BinaryMask) bool {
	if m.Shape != other.Shape || len(m.Data) != len(other.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Bytes returns the mask as one byte per voxel with values 0 and 1
func (m *BinaryMask) Bytes() []byte {
	out := make([]byte, len(m.Data))
	for i, v := range m.Data {
		if v {
			out[i] = 1
		}
	}
	return out
}

// ThresholdRange is an open intensity interval (Low, High)
type ThresholdRange struct {
	Low  float64 `yaml:"lowThreshold"`
	High float64 `yaml:"highThreshold"`
}

// DefaultThresholds returns the Hounsfield range of air-filled lung parenchyma
func DefaultThresholds() ThresholdRange {
	return ThresholdRange{Low: -1000, High: -300}
}

// Degenerate reports whether the range cannot contain any value.
// Segmenting with a degenerate range yields an all-background mask.
func (r ThresholdRange) Degenerate() bool {
	return !(r.Low < r.High)
}

// SpatialMetadata maps grid indices to patient space.
// Origin and Direction follow the LPS convention.
type SpatialMetadata struct {
	// Shape is the grid described by this metadata
	Shape Shape `yaml:"shape"`

	// Spacing is the voxel size along x, y and z in mm
	Spacing [3]float64 `yaml:"spacing"`

	// Origin is the world position of voxel (0, 0, 0) in mm
	Origin [3]float64 `yaml:"origin"`

	// Direction holds the direction cosines as a row-major 3x3 matrix;
	// column j is the world direction of index axis j.
	Direction [9]float64 `yaml:"direction"`
}

// IdentityDirection returns the direction cosines of an axis-aligned grid
func IdentityDirection() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// NewSpatialMetadata returns axis-aligned metadata with unit spacing at the origin
func NewSpatialMetadata(shape Shape) SpatialMetadata {
	return SpatialMetadata{
		Shape:     shape,
		Spacing:   [3]float64{1, 1, 1},
		Direction: IdentityDirection(),
	}
}

// DirectionMatrix returns the direction cosines as a gonum matrix
func (m SpatialMetadata) DirectionMatrix() *mat.Dense {
	d := m.Direction
	return mat.NewDense(3, 3, d[:])
}

// VoxelVolume returns the physical volume of one voxel in mm^3
func (m SpatialMetadata) VoxelVolume() float64 {
	return m.Spacing[0] * m.Spacing[1] * m.Spacing[2]
}

// Validate checks the metadata against the grid it accompanies
func (m SpatialMetadata) Validate(shape Shape) error {
	if m.Shape != shape {
		return &InputError{Reason: fmt.Sprintf("metadata describes grid %s but volume is %s", m.Shape, shape)}
	}
	for i, s := range m.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return &InputError{Reason: fmt.Sprintf("spacing along axis %d must be positive, got %v", i, s)}
		}
	}
	if det := mat.Det(m.DirectionMatrix()); math.Abs(det) < 1e-6 {
		return &InputError{Reason: "direction cosines are singular"}
	}
	return nil
}
