package loader

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungseg/internal/models"
	"lungseg/pkg/export"
)

// createTestImage creates a grayscale test image with the specified dimensions and pattern
func createTestImage(width, height int, pattern func(x, y int) uint16) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
}

func testOptions() (Options, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts := DefaultOptions()
	opts.Logger = logger
	return opts, hook
}

func TestLoadImageStackOrdersByNumber(t *testing.T) {
	dir := t.TempDir()
	// slice_10 must come after slice_2 even though it sorts first by name
	for _, n := range []int{10, 2, 1} {
		value := uint16(n * 100)
		writePNG(t, filepath.Join(dir, fmt.Sprintf("slice_%d.png", n)),
			createTestImage(4, 3, func(x, y int) uint16 { return value }))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	opts, hook := testOptions()
	opts.RescaleSlope = 1
	opts.RescaleIntercept = -1024
	opts.PixelSpacing = 0.5
	opts.SliceGap = 2

	scan, err := Load(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, FormatImages, scan.Format)
	assert.Equal(t, models.Shape{Depth: 3, Height: 3, Width: 4}, scan.Volume.Shape)

	for z, n := range []int{1, 2, 10} {
		assert.Equal(t, float64(n*100)-1024, scan.Volume.At(2, 1, z), "slice %d", z)
	}
	assert.Equal(t, [3]float64{0.5, 0.5, 2}, scan.Metadata.Spacing)
	assert.Equal(t, models.IdentityDirection(), scan.Metadata.Direction)
	assert.NotNil(t, hook.LastEntry())
}

func TestLoadImageStackRejectsMismatchedSlices(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "001.png"), createTestImage(4, 4, func(x, y int) uint16 { return 0 }))
	writePNG(t, filepath.Join(dir, "002.png"), createTestImage(5, 4, func(x, y int) uint16 { return 0 }))

	opts, _ := testOptions()
	_, err := Load(dir, opts)
	var inputErr *models.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Contains(t, err.Error(), "002.png")
}

func TestLoadEmptyOrMissingSource(t *testing.T) {
	opts, _ := testOptions()
	var inputErr *models.InputError

	_, err := Load(t.TempDir(), opts)
	assert.True(t, errors.As(err, &inputErr), "empty directory must be an input error")

	_, err = Load(filepath.Join(t.TempDir(), "absent"), opts)
	assert.True(t, errors.As(err, &inputErr), "missing directory must be an input error")

	opts.Format = FormatImages
	_, err = Load(t.TempDir(), opts)
	assert.True(t, errors.As(err, &inputErr))
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	niiPath := filepath.Join(dir, "scan.nii.gz")
	require.NoError(t, os.WriteFile(niiPath, nil, 0644))
	format, err := DetectFormat(niiPath)
	require.NoError(t, err)
	assert.Equal(t, FormatNIfTI, format)

	_, err = DetectFormat(filepath.Join(dir, "scan.nii.gz.bak"))
	assert.Error(t, err)

	dicomDir := filepath.Join(dir, "series")
	require.NoError(t, os.Mkdir(dicomDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dicomDir, "IM0001"), []byte("x"), 0644))
	format, err = DetectFormat(dicomDir)
	require.NoError(t, err)
	assert.Equal(t, FormatDICOM, format)

	stackDir := filepath.Join(dir, "stack")
	require.NoError(t, os.Mkdir(stackDir, 0755))
	writePNG(t, filepath.Join(stackDir, "1.png"), createTestImage(2, 2, func(x, y int) uint16 { return 1 }))
	format, err = DetectFormat(stackDir)
	require.NoError(t, err)
	assert.Equal(t, FormatImages, format)
}

func TestLoadDICOMDirectoryWithoutSlices(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not dicom"), 0644))

	opts, _ := testOptions()
	_, err := Load(dir, opts)
	var inputErr *models.InputError
	require.True(t, errors.As(err, &inputErr))
}

func TestLoadNIfTI(t *testing.T) {
	shape := models.Shape{Depth: 2, Height: 3, Width: 3}
	mask := models.NewBinaryMask(shape)
	mask.Set(1, 1, 1, true)
	meta := models.NewSpatialMetadata(shape)
	meta.Spacing = [3]float64{0.8, 0.8, 1.5}
	meta.Origin = [3]float64{10, -20, 30}

	path := filepath.Join(t.TempDir(), "volume.nii.gz")
	require.NoError(t, export.Export(mask, meta, path, export.Options{}))

	opts, _ := testOptions()
	scan, err := Load(path, opts)
	require.NoError(t, err)
	assert.Equal(t, FormatNIfTI, scan.Format)
	assert.Equal(t, meta, scan.Metadata)
	assert.Equal(t, 1.0, scan.Volume.At(1, 1, 1))
	assert.Equal(t, 0.0, scan.Volume.At(0, 0, 0))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("slice_012.jpg"))
	assert.Equal(t, 0, extractNumber("scan.png"))
	assert.Equal(t, 203, extractNumber("/data/ct2_slice03.png"))
}
