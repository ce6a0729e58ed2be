// Package morphology implements the binary morphology used to refine
// thresholded masks: hole filling and closing with a 3x3x3 structuring
// element.
package morphology

import "fmt"

// Connectivity selects which voxels of the 3x3x3 neighbourhood are adjacent
// to its centre.
type Connectivity int

const (
	// Face adjacency only
	Connectivity6 Connectivity = 6

	// Face and edge adjacency
	Connectivity18 Connectivity = 18

	// Face, edge and corner adjacency (the full cube)
	Connectivity26 Connectivity = 26
)

// DefaultConnectivity is the full 3x3x3 neighbourhood
const DefaultConnectivity = Connectivity26

// Offset is a displacement to a neighbouring voxel
type Offset struct {
	DX, DY, DZ int
}

// ParseConnectivity validates a connectivity read from configuration
func ParseConnectivity(n int) (Connectivity, error) {
	switch c := Connectivity(n); c {
	case Connectivity6, Connectivity18, Connectivity26:
		return c, nil
	default:
		return 0, fmt.Errorf("unsupported connectivity %d (must be 6, 18 or 26)", n)
	}
}

// Offsets returns the neighbour displacements for c, excluding the centre
func (c Connectivity) Offsets() []Offset {
	// number of non-zero components allowed per offset
	maxAxes := 3
	switch c {
	case Connectivity6:
		maxAxes = 1
	case Connectivity18:
		maxAxes = 2
	}

	offsets := make([]Offset, 0, int(c))
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := abs(dx) + abs(dy) + abs(dz)
				if n == 0 || n > maxAxes {
					continue
				}
				offsets = append(offsets, Offset{DX: dx, DY: dy, DZ: dz})
			}
		}
	}
	return offsets
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
