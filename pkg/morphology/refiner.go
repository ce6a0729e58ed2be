package morphology

import (
	"lungseg/internal/models"
)

// Refiner cleans a thresholded mask in two fixed stages: hole filling,
// then closing.
type Refiner struct {
	// FillConnectivity is the background adjacency used to decide whether
	// a region reaches the grid boundary
	FillConnectivity Connectivity

	// ClosingConnectivity selects the structuring element of the closing
	ClosingConnectivity Connectivity
}

// NewRefiner returns a refiner using the full 26-neighbourhood for both stages
func NewRefiner() *Refiner {
	return &Refiner{
		FillConnectivity:    DefaultConnectivity,
		ClosingConnectivity: DefaultConnectivity,
	}
}

// Stages holds the intermediate masks of one refinement
type Stages struct {
	Filled  *models.BinaryMask
	Refined *models.BinaryMask
}

// Refine fills enclosed holes and closes the result. The input is not modified.
func (r *Refiner) Refine(mask *models.BinaryMask) *models.BinaryMask {
	return r.RefineStages(mask).Refined
}

// RefineStages runs Refine and also returns the hole-filled mask
func (r *Refiner) RefineStages(mask *models.BinaryMask) Stages {
	filled := FillHoles(mask, r.FillConnectivity)
	return Stages{
		Filled:  filled,
		Refined: Close(filled, r.ClosingConnectivity),
	}
}
