package morphology

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungseg/internal/models"
)

// cubeMask returns a mask of the given size with a solid cube [lo, hi] set
func cubeMask(size, lo, hi int) *models.BinaryMask {
	m := models.NewBinaryMask(models.Shape{Depth: size, Height: size, Width: size})
	for z := lo; z <= hi; z++ {
		for y := lo; y <= hi; y++ {
			for x := lo; x <= hi; x++ {
				m.Set(x, y, z, true)
			}
		}
	}
	return m
}

// randomMask returns a reproducible mask with roughly density foreground
func randomMask(shape models.Shape, density float64, seed int64) *models.BinaryMask {
	rng := rand.New(rand.NewSource(seed))
	m := models.NewBinaryMask(shape)
	for i := range m.Data {
		m.Data[i] = rng.Float64() < density
	}
	return m
}

func TestConnectivityOffsets(t *testing.T) {
	for _, c := range []Connectivity{Connectivity6, Connectivity18, Connectivity26} {
		offsets := c.Offsets()
		assert.Len(t, offsets, int(c))
		for _, o := range offsets {
			assert.False(t, o.DX == 0 && o.DY == 0 && o.DZ == 0, "centre must be excluded")
		}
	}

	_, err := ParseConnectivity(8)
	assert.Error(t, err)
	c, err := ParseConnectivity(18)
	require.NoError(t, err)
	assert.Equal(t, Connectivity18, c)
}

func TestFillHolesSingleInteriorVoxel(t *testing.T) {
	m := cubeMask(3, 0, 2)
	m.Set(1, 1, 1, false)

	refined := NewRefiner().Refine(m)
	assert.True(t, refined.At(1, 1, 1), "enclosed voxel should be filled")
	assert.Equal(t, 27, refined.Count())
}

func TestRefineLeavesExteriorUntouched(t *testing.T) {
	m := cubeMask(7, 2, 4)
	m.Set(3, 3, 3, false)

	refined := NewRefiner().Refine(m)
	expected := cubeMask(7, 2, 4)
	assert.True(t, refined.Equal(expected), "only the enclosed hole should change")
}

func TestFillHolesConnectivityMatters(t *testing.T) {
	// A background voxel touching the outside only through a corner
	// escapes with 26-connectivity but is enclosed under 6-connectivity.
	m := models.NewBinaryMask(models.Shape{Depth: 3, Height: 3, Width: 3})
	for i := range m.Data {
		m.Data[i] = true
	}
	m.Set(1, 1, 1, false)
	m.Set(0, 0, 0, false)

	filled6 := FillHoles(m, Connectivity6)
	filled26 := FillHoles(m, Connectivity26)

	assert.True(t, filled6.At(1, 1, 1))
	assert.False(t, filled26.At(1, 1, 1))
	assert.False(t, filled6.At(0, 0, 0), "boundary background is never filled")
}

func TestRefineAllFalseAndAllTrue(t *testing.T) {
	shape := models.Shape{Depth: 4, Height: 5, Width: 6}
	empty := models.NewBinaryMask(shape)
	assert.Zero(t, NewRefiner().Refine(empty).Count())

	full := models.NewBinaryMask(shape)
	for i := range full.Data {
		full.Data[i] = true
	}
	assert.Equal(t, shape.Voxels(), NewRefiner().Refine(full).Count())
}

func TestRefineIsMonotonic(t *testing.T) {
	shape := models.Shape{Depth: 6, Height: 9, Width: 8}
	for seed := int64(1); seed <= 5; seed++ {
		m := randomMask(shape, 0.4, seed)
		refined := NewRefiner().Refine(m)
		for i, v := range m.Data {
			if v {
				require.True(t, refined.Data[i], "seed %d voxel %d lost", seed, i)
			}
		}
		assert.GreaterOrEqual(t, refined.Count(), m.Count())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	shape := models.Shape{Depth: 5, Height: 8, Width: 8}
	for _, c := range []Connectivity{Connectivity6, Connectivity18, Connectivity26} {
		for seed := int64(1); seed <= 3; seed++ {
			once := Close(randomMask(shape, 0.3, seed), c)
			twice := Close(once, c)
			assert.True(t, twice.Equal(once), "connectivity %d seed %d", c, seed)
		}
	}
}

func TestCloseBridgesSingleVoxelGap(t *testing.T) {
	m := models.NewBinaryMask(models.Shape{Depth: 7, Height: 7, Width: 9})
	for z := 2; z <= 4; z++ {
		for y := 2; y <= 4; y++ {
			for x := 2; x <= 6; x++ {
				if x != 4 {
					m.Set(x, y, z, true)
				}
			}
		}
	}

	closed := Close(m, Connectivity26)
	assert.True(t, closed.At(4, 3, 3), "gap between the two blocks should close")
	assert.False(t, closed.At(0, 0, 0))
}

func TestDilateErodeBorders(t *testing.T) {
	m := models.NewBinaryMask(models.Shape{Depth: 1, Height: 3, Width: 3})
	m.Set(0, 0, 0, true)

	d := Dilate(m, Connectivity26)
	assert.Equal(t, 4, d.Count())

	full := models.NewBinaryMask(models.Shape{Depth: 1, Height: 3, Width: 3})
	for i := range full.Data {
		full.Data[i] = true
	}
	assert.Equal(t, 9, Erode(full, Connectivity26).Count(), "grid border must not erode")
}

func TestRefineDoesNotModifyInput(t *testing.T) {
	m := cubeMask(5, 1, 3)
	m.Set(2, 2, 2, false)
	before := m.Clone()

	stages := NewRefiner().RefineStages(m)
	assert.True(t, m.Equal(before))
	assert.True(t, stages.Filled.At(2, 2, 2))
	assert.Equal(t, m.Shape, stages.Refined.Shape)
}
