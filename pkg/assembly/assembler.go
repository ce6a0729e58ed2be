// Package assembly stacks mask layers into a single 3D mask.
package assembly

import (
	"fmt"

	"lungseg/internal/models"
)

// Assemble concatenates layers along depth in the order given: layer 0
// becomes the first slices of the result. A layer may be a single slice
// (depth 1) or a sub-volume. A single layer is returned as is.
//
// Every layer must share the height and width of the first one; no
// padding or cropping is attempted.
func Assemble(layers ...*models.BinaryMask) (*models.BinaryMask, error) {
	if len(layers) == 0 {
		return nil, &models.InputError{Reason: "no mask layers to assemble"}
	}

	first := layers[0]
	depth := 0
	for i, layer := range layers {
		if layer == nil || layer.Depth < 1 {
			return nil, &models.InputError{Reason: fmt.Sprintf("layer %d is empty", i)}
		}
		if layer.Height != first.Height || layer.Width != first.Width {
			return nil, &models.InputError{Reason: fmt.Sprintf(
				"layer %d is %dx%d, expected %dx%d",
				i, layer.Height, layer.Width, first.Height, first.Width)}
		}
		if len(layer.Data) != layer.Voxels() {
			return nil, &models.InputError{Reason: fmt.Sprintf("layer %d data does not match shape %s", i, layer.Shape)}
		}
		depth += layer.Depth
	}

	if len(layers) == 1 {
		return first, nil
	}

	volume := models.NewBinaryMask(models.Shape{Depth: depth, Height: first.Height, Width: first.Width})
	offset := 0
	for _, layer := range layers {
		offset += copy(volume.Data[offset:], layer.Data)
	}
	return volume, nil
}

// Slices splits a mask into depth-1 layers in depth order
func Slices(mask *models.BinaryMask) []*models.BinaryMask {
	size := mask.SliceSize()
	out := make([]*models.BinaryMask, mask.Depth)
	for z := range out {
		layer := models.NewBinaryMask(models.Shape{Depth: 1, Height: mask.Height, Width: mask.Width})
		copy(layer.Data, mask.Data[z*size:(z+1)*size])
		out[z] = layer
	}
	return out
}
