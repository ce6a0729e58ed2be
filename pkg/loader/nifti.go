package loader

import (
	"lungseg/internal/models"
	"lungseg/pkg/nifti"
)

// loadNIfTI reads the first 3D volume of a NIfTI file
func loadNIfTI(path string) (*models.IntensityVolume, models.SpatialMetadata, error) {
	img, err := nifti.ReadFile(path)
	if err != nil {
		return nil, models.SpatialMetadata{}, &models.InputError{Reason: "cannot read NIfTI volume", Err: err}
	}
	return img.Volume(), img.Metadata, nil
}
