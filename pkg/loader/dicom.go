package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"lungseg/internal/models"
)

// loadDICOMSeries reads every DICOM file in dir as one series.
// Files that do not parse as DICOM are skipped.
func loadDICOMSeries(dir string, opts Options) (*models.IntensityVolume, models.SpatialMetadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.SpatialMetadata{}, &models.InputError{Reason: "cannot read input directory " + dir, Err: err}
	}

	log := opts.logger()
	var slices []seriesSlice
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(name, "DICOMDIR") {
			continue
		}

		ds, err := dicom.ParseFile(filepath.Join(dir, name), nil)
		if err != nil {
			log.WithError(err).WithField("file", name).Debug("Skipping non-DICOM file")
			continue
		}

		s, err := sliceFromDataset(&ds)
		if err != nil {
			return nil, models.SpatialMetadata{}, &models.InputError{Reason: "invalid DICOM slice " + name, Err: err}
		}
		s.source = name
		slices = append(slices, s)
	}

	if len(slices) == 0 {
		return nil, models.SpatialMetadata{}, &models.InputError{Reason: "no DICOM slices found in " + dir}
	}
	return assembleSeries(slices)
}

// sliceFromDataset extracts pixels and geometry of a single-frame slice.
// Pixels are rescaled to modality units (HU for CT).
func sliceFromDataset(ds *dicom.Dataset) (seriesSlice, error) {
	s := seriesSlice{
		rowDir:     r3.Vec{X: 1},
		colDir:     r3.Vec{Y: 1},
		rowSpacing: 1,
		colSpacing: 1,
	}

	rows, ok := intValue(ds, tag.Rows)
	if !ok {
		return s, fmt.Errorf("missing Rows")
	}
	cols, ok := intValue(ds, tag.Columns)
	if !ok {
		return s, fmt.Errorf("missing Columns")
	}
	s.rows, s.cols = rows, cols

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return s, fmt.Errorf("missing PixelData: %w", err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return s, fmt.Errorf("no pixel frames")
	}
	frame, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return s, fmt.Errorf("unsupported pixel encoding: %w", err)
	}

	slope, intercept := 1.0, 0.0
	if v, ok := floatValues(ds, tag.RescaleSlope); ok && len(v) > 0 && v[0] != 0 {
		slope = v[0]
	}
	if v, ok := floatValues(ds, tag.RescaleIntercept); ok && len(v) > 0 {
		intercept = v[0]
	}

	// samples come back as unsigned BitsAllocated-wide integers
	bitsStored := frame.BitsPerSample
	if n, ok := intValue(ds, tag.BitsStored); ok && n > 0 && n <= 32 {
		bitsStored = n
	}
	if bitsStored < 1 || bitsStored > 32 {
		return s, fmt.Errorf("unsupported BitsStored %d", bitsStored)
	}
	pixelRep, _ := intValue(ds, tag.PixelRepresentation)
	signed := pixelRep == 1

	s.pixels = make([]float64, len(frame.Data))
	for i, px := range frame.Data {
		if len(px) == 0 {
			return s, fmt.Errorf("empty pixel sample at %d", i)
		}
		s.pixels[i] = float64(storedValue(px[0], bitsStored, signed))*slope + intercept
	}

	if v, ok := floatValues(ds, tag.ImagePositionPatient); ok && len(v) == 3 {
		s.position = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		s.hasPosition = true
	}
	if v, ok := floatValues(ds, tag.ImageOrientationPatient); ok && len(v) == 6 {
		s.rowDir = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		s.colDir = r3.Vec{X: v[3], Y: v[4], Z: v[5]}
	}
	if v, ok := floatValues(ds, tag.PixelSpacing); ok && len(v) == 2 && v[0] > 0 && v[1] > 0 {
		s.rowSpacing, s.colSpacing = v[0], v[1]
	}
	if v, ok := floatValues(ds, tag.SliceThickness); ok && len(v) > 0 {
		s.thickness = v[0]
	}
	if n, ok := intValue(ds, tag.InstanceNumber); ok {
		s.instance = n
	}
	return s, nil
}

// storedValue keeps the low bitsStored bits of a raw sample, sign-extending
// them for two's complement data
func storedValue(raw, bitsStored int, signed bool) int {
	shift := 32 - bitsStored
	if signed {
		return int(int32(uint32(raw)<<shift) >> shift)
	}
	return int(uint32(raw) << shift >> shift)
}

// floatValues parses a decimal string element
func floatValues(ds *dicom.Dataset, t tag.Tag) ([]float64, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	strs, ok := el.Value.GetValue().([]string)
	if !ok {
		return nil, false
	}

	out := make([]float64, 0, len(strs))
	for _, str := range strs {
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// intValue reads a binary or integer string element
func intValue(ds *dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			return n, err == nil
		}
	}
	return 0, false
}
