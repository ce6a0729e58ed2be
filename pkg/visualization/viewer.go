// Package visualization renders scans and lung masks as 2D images for
// inspection. Nothing produced here feeds back into segmentation.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"lungseg/internal/models"
)

// Window maps intensities to gray levels. Values below Center-Width/2 are
// black and values above Center+Width/2 are white.
type Window struct {
	Center float64
	Width  float64
}

// LungWindow is the usual CT lung window in HU
func LungWindow() Window {
	return Window{Center: -600, Width: 1500}
}

// Gray converts an intensity to a 16-bit gray level
func (w Window) Gray(value float64) uint16 {
	if math.IsNaN(value) {
		return 0
	}
	if w.Width <= 0 {
		if value > w.Center {
			return math.MaxUint16
		}
		return 0
	}
	t := (value - (w.Center - w.Width/2)) / w.Width
	return uint16(math.Round(math.Max(0, math.Min(1, t)) * math.MaxUint16))
}

// Viewer cuts 2D slices out of a volume along any of its three axes
type Viewer struct {
	shape models.Shape

	// gray returns the display level of the voxel at a flat index
	gray func(idx int) uint16
}

// NewVolumeViewer creates a viewer of an intensity volume shown through w
func NewVolumeViewer(vol *models.IntensityVolume, w Window) *Viewer {
	return &Viewer{
		shape: vol.Shape,
		gray:  func(idx int) uint16 { return w.Gray(vol.Data[idx]) },
	}
}

// NewMaskViewer creates a viewer showing foreground voxels white
func NewMaskViewer(mask *models.BinaryMask) *Viewer {
	return &Viewer{
		shape: mask.Shape,
		gray: func(idx int) uint16 {
			if mask.Data[idx] {
				return math.MaxUint16
			}
			return 0
		},
	}
}

// Shape returns the dimensions of the viewed volume
func (v *Viewer) Shape() models.Shape {
	return v.shape
}

// Extent returns the number of slices along axis
func (v *Viewer) Extent(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return v.shape.Width, nil
	case "y":
		return v.shape.Height, nil
	case "z":
		return v.shape.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// planeSize returns the image size of a slice across axis
func (v *Viewer) planeSize(axis string) (cols, rows int) {
	switch strings.ToLower(axis) {
	case "x":
		// YZ plane
		return v.shape.Depth, v.shape.Height
	case "y":
		// XZ plane
		return v.shape.Width, v.shape.Depth
	}
	return v.shape.Width, v.shape.Height
}

// voxel maps pixel (col,row) of the slice at position across axis to a flat index
func (v *Viewer) voxel(axis string, position, col, row int) int {
	switch strings.ToLower(axis) {
	case "x":
		return v.shape.Index(position, row, col)
	case "y":
		return v.shape.Index(col, position, row)
	}
	return v.shape.Index(col, row, position)
}

// ExtractSlice extracts a 2D slice from the volume across the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	extent, err := v.Extent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= extent {
		return nil, fmt.Errorf("position %d outside axis %s of size %d", position, axis, extent)
	}

	cols, rows := v.planeSize(axis)
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			img.SetGray16(col, row, color.Gray16{Y: v.gray(v.voxel(axis, position, col, row))})
		}
	}
	return img, nil
}

// Projection renders the maximum intensity projection along axis
func (v *Viewer) Projection(axis string) (*image.Gray16, error) {
	extent, err := v.Extent(axis)
	if err != nil {
		return nil, err
	}

	cols, rows := v.planeSize(axis)
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			var peak uint16
			for pos := 0; pos < extent; pos++ {
				if g := v.gray(v.voxel(axis, pos, col, row)); g > peak {
					peak = g
				}
			}
			img.SetGray16(col, row, color.Gray16{Y: peak})
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG or JPEG image depending on
// the file extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return SaveImage(img, filename)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as slice_<axis>_<nnn>.jpg
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	extent, err := v.Extent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < extent; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveImage encodes img to filename. Files ending in .png are written as PNG,
// anything else as JPEG.
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(filename), ".png") {
		err = png.Encode(file, img)
	} else {
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
