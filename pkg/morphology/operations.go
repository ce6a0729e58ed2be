package morphology

import (
	"lungseg/internal/models"
)

// FillHoles turns every background region that cannot reach the grid
// boundary through background voxels into foreground. Adjacency between
// background voxels is given by c.
func FillHoles(mask *models.BinaryMask, c Connectivity) *models.BinaryMask {
	s := mask.Shape
	offsets := c.Offsets()

	// reached marks background connected to the outside
	reached := make([]bool, len(mask.Data))
	queue := make([]int, 0, 2*(s.Width*s.Height+s.Width*s.Depth+s.Height*s.Depth))

	seed := func(x, y, z int) {
		idx := s.Index(x, y, z)
		if !mask.Data[idx] && !reached[idx] {
			reached[idx] = true
			queue = append(queue, idx)
		}
	}

	for z := 0; z < s.Depth; z++ {
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				if z == 0 || z == s.Depth-1 || y == 0 || y == s.Height-1 || x == 0 || x == s.Width-1 {
					seed(x, y, z)
				}
			}
		}
	}

	sliceSize := s.SliceSize()
	for head := 0; head < len(queue); head++ {
		idx := queue[head]
		z := idx / sliceSize
		y := (idx % sliceSize) / s.Width
		x := idx % s.Width

		for _, o := range offsets {
			nx, ny, nz := x+o.DX, y+o.DY, z+o.DZ
			if !s.Contains(nx, ny, nz) {
				continue
			}
			seed(nx, ny, nz)
		}
	}

	filled := models.NewBinaryMask(s)
	for i := range filled.Data {
		filled.Data[i] = !reached[i]
	}
	return filled
}

// Dilate sets a voxel when any voxel of its neighbourhood (centre included)
// is set. Voxels outside the grid count as background.
func Dilate(mask *models.BinaryMask, c Connectivity) *models.BinaryMask {
	return sweep(mask, c.Offsets(), true)
}

// Erode keeps a voxel only when every voxel of its neighbourhood (centre
// included) is set. Voxels outside the grid count as foreground, so the
// grid border does not erode.
func Erode(mask *models.BinaryMask, c Connectivity) *models.BinaryMask {
	return sweep(mask, c.Offsets(), false)
}

// Close applies Dilate followed by Erode with the same structuring element.
// The result contains the input and closing it again changes nothing.
func Close(mask *models.BinaryMask, c Connectivity) *models.BinaryMask {
	return Erode(Dilate(mask, c), c)
}

// sweep evaluates a dilation (hit=true) or erosion (hit=false) over the neighbourhood
func sweep(mask *models.BinaryMask, offsets []Offset, hit bool) *models.BinaryMask {
	s := mask.Shape
	out := models.NewBinaryMask(s)

	for z := 0; z < s.Depth; z++ {
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				idx := s.Index(x, y, z)
				value := mask.Data[idx]
				if value == hit {
					// centre alone decides the result
					out.Data[idx] = value
					continue
				}

				for _, o := range offsets {
					nx, ny, nz := x+o.DX, y+o.DY, z+o.DZ
					if !s.Contains(nx, ny, nz) {
						continue
					}
					if mask.Data[s.Index(nx, ny, nz)] == hit {
						value = hit
						break
					}
				}
				out.Data[idx] = value
			}
		}
	}
	return out
}
