package loader

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"lungseg/internal/models"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// listImageFiles returns the image files of dir in slice order.
// Files are ordered by the number embedded in their name, then by name.
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &models.InputError{Reason: "cannot read input directory " + dir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}

	// Sort files to ensure correct slice order
	sort.SliceStable(files, func(i, j int) bool {
		numI, numJ := extractNumber(files[i]), extractNumber(files[j])
		if numI != numJ {
			return numI < numJ
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return 0
}

// loadImageStack reads a directory of 2D slices into a volume.
// Every slice must have the dimensions of the first one.
func loadImageStack(dir string, opts Options) (*models.IntensityVolume, models.SpatialMetadata, error) {
	files, err := listImageFiles(dir)
	if err != nil {
		return nil, models.SpatialMetadata{}, err
	}
	if len(files) == 0 {
		return nil, models.SpatialMetadata{}, &models.InputError{Reason: "no image slices found in " + dir}
	}

	slope := opts.RescaleSlope
	if slope == 0 {
		slope = 1
	}

	var vol *models.IntensityVolume
	for z, name := range files {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, models.SpatialMetadata{}, &models.InputError{Reason: "failed to load image " + name, Err: err}
		}

		bounds := img.Bounds()
		if vol == nil {
			// Store dimensions from first image
			vol = models.NewIntensityVolume(models.Shape{
				Depth:  len(files),
				Height: bounds.Dy(),
				Width:  bounds.Dx(),
			})
		} else if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			return nil, models.SpatialMetadata{}, &models.InputError{Reason: fmt.Sprintf(
				"slice %s is %dx%d, expected %dx%d", name, bounds.Dy(), bounds.Dx(), vol.Height, vol.Width)}
		}

		offset := z * vol.SliceSize()
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				gray := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				vol.Data[offset+y*vol.Width+x] = float64(gray.Y)*slope + opts.RescaleIntercept
			}
		}
	}

	meta := models.NewSpatialMetadata(vol.Shape)
	meta.Spacing = [3]float64{opts.PixelSpacing, opts.PixelSpacing, opts.SliceGap}

	opts.logger().WithField("slices", len(files)).Debugf("Loaded image stack with dimensions %dx%d", vol.Width, vol.Height)
	return vol, meta, nil
}

// loadImage decodes an image file of any registered format
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}
