package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"

	"lungseg/internal/models"
)

// ctSlice describes one coronal CT slice written by writeCTSlice
type ctSlice struct {
	name      string
	instance  int
	y         float64
	intercept string
	stored    []int
}

func mustElement(t *testing.T, tg tag.Tag, data interface{}) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return el
}

// writeCTSlice writes a signed 16-bit 2x3 slice with 0.6mm rows by 0.7mm
// columns. The intercept defaults to -1024.
func writeCTSlice(t *testing.T, dir string, s ctSlice) {
	t.Helper()
	if s.intercept == "" {
		s.intercept = "-1024"
	}
	pixels := make([][]int, len(s.stored))
	for i, v := range s.stored {
		pixels[i] = []int{v}
	}

	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(t, tag.MediaStorageSOPInstanceUID, []string{fmt.Sprintf("1.2.3.4.%d", s.instance)}),
		mustElement(t, tag.TransferSyntaxUID, []string{uid.ExplicitVRLittleEndian}),
		mustElement(t, tag.InstanceNumber, []string{fmt.Sprint(s.instance)}),
		mustElement(t, tag.ImagePositionPatient, []string{"-100", fmt.Sprint(s.y), "50"}),
		mustElement(t, tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "0", "-1"}),
		mustElement(t, tag.SamplesPerPixel, []int{1}),
		mustElement(t, tag.Rows, []int{2}),
		mustElement(t, tag.Columns, []int{3}),
		mustElement(t, tag.PixelSpacing, []string{"0.6", "0.7"}),
		mustElement(t, tag.BitsAllocated, []int{16}),
		mustElement(t, tag.BitsStored, []int{16}),
		mustElement(t, tag.HighBit, []int{15}),
		mustElement(t, tag.PixelRepresentation, []int{1}),
		mustElement(t, tag.RescaleIntercept, []string{s.intercept}),
		mustElement(t, tag.RescaleSlope, []string{"1"}),
		mustElement(t, tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{
				NativeData: frame.NativeFrame{
					BitsPerSample: 16,
					Rows:          2,
					Cols:          3,
					Data:          pixels,
				},
			}},
		}),
	}}

	file, err := os.Create(filepath.Join(dir, s.name))
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, dicom.Write(file, ds))
}

func TestLoadDICOMSeries(t *testing.T) {
	dir := t.TempDir()
	// file names and instance numbers disagree with the anatomical order
	slices := []ctSlice{
		{name: "IM0001", instance: 1, y: -10, stored: []int{324, 325, 326, 327, 328, 329}},
		{name: "IM0002", instance: 2, y: -17.5, stored: []int{-8, -7, -6, -5, -4, -3}},
		{name: "IM0003", instance: 3, y: -13.75, stored: []int{100, 101, 102, 103, 104, 105}},
	}
	for _, s := range slices {
		writeCTSlice(t, dir, s)
	}

	opts, _ := testOptions()
	scan, err := Load(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, FormatDICOM, scan.Format)
	assert.Equal(t, models.Shape{Depth: 3, Height: 2, Width: 3}, scan.Volume.Shape)

	// ordered by position along the normal (0,1,0): -17.5, -13.75, -10
	for z, base := range []float64{-8, 100, 324} {
		for i := 0; i < 6; i++ {
			x, y := i%3, i/3
			assert.Equal(t, base+float64(i)-1024, scan.Volume.At(x, y, z), "voxel (%d,%d,%d)", x, y, z)
		}
	}
	assert.Equal(t, -700.0, scan.Volume.At(0, 0, 2))
	assert.Equal(t, -1032.0, scan.Volume.At(0, 0, 0))

	meta := scan.Metadata
	assert.InDelta(t, 0.7, meta.Spacing[0], 1e-12, "x spacing is the column spacing")
	assert.InDelta(t, 0.6, meta.Spacing[1], 1e-12)
	assert.InDelta(t, 3.75, meta.Spacing[2], 1e-12)
	assert.Equal(t, [3]float64{-100, -17.5, 50}, meta.Origin)
	assert.Equal(t, [9]float64{1, 0, 0, 0, 0, 1, 0, -1, 0}, meta.Direction)
	require.NoError(t, meta.Validate(scan.Volume.Shape))
}

func TestLoadDICOMSignedLungIsSegmentable(t *testing.T) {
	dir := t.TempDir()
	for i, y := range []float64{0, 2} {
		// -700 HU stored directly as a negative sample
		writeCTSlice(t, dir, ctSlice{
			name:      fmt.Sprintf("lung%d.dcm", i),
			instance:  i + 1,
			y:         y,
			intercept: "0",
			stored:    []int{-700, -700, -700, -700, -700, -700},
		})
	}

	opts, _ := testOptions()
	scan, err := Load(dir, opts)
	require.NoError(t, err)

	thresholds := models.DefaultThresholds()
	require.Len(t, scan.Volume.Data, 12)
	for i, v := range scan.Volume.Data {
		assert.True(t, v > thresholds.Low && v < thresholds.High, "voxel %d = %v is outside the lung range", i, v)
	}
}

func TestStoredValue(t *testing.T) {
	cases := []struct {
		raw        int
		bitsStored int
		signed     bool
		want       int
	}{
		{64836, 16, true, -700},
		{64836, 16, false, 64836},
		{324, 16, true, 324},
		{0x0FFF, 12, true, -1},
		{0x07FF, 12, true, 2047},
		{0xF005, 12, false, 5},
		{0xFFFFFFFF, 32, true, -1},
		{0xFF, 8, true, -1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, storedValue(c.raw, c.bitsStored, c.signed),
			"storedValue(%#x, %d, %v)", c.raw, c.bitsStored, c.signed)
	}
}
