// Package loader reads CT scans into intensity volumes with their spatial
// metadata. Supported sources are DICOM series directories, directories of
// 2D image slices and single NIfTI files.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"lungseg/internal/models"
)

// Format identifies an input source type
type Format string

const (
	FormatAuto   Format = "auto"
	FormatDICOM  Format = "dicom"
	FormatImages Format = "images"
	FormatNIfTI  Format = "nifti"
)

// Options controls how scans are read
type Options struct {
	// Format forces a source type; FormatAuto detects it from the path
	Format Format

	// RescaleSlope and RescaleIntercept convert 16-bit gray levels of image
	// stacks to intensities: value = gray*slope + intercept
	RescaleSlope     float64
	RescaleIntercept float64

	// PixelSpacing and SliceGap give image stacks a physical size in mm
	PixelSpacing float64
	SliceGap     float64

	Logger logrus.FieldLogger
}

// DefaultOptions returns options with format detection and unit spacing
func DefaultOptions() Options {
	return Options{
		Format:       FormatAuto,
		RescaleSlope: 1,
		PixelSpacing: 1,
		SliceGap:     1,
	}
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Scan is a loaded intensity volume with its spatial metadata
type Scan struct {
	Volume   *models.IntensityVolume
	Metadata models.SpatialMetadata
	Format   Format
	Source   string
}

// Load reads the scan at path. A missing or empty source, or a volume
// without slices, is reported as an InputError.
func Load(path string, opts Options) (*Scan, error) {
	format := opts.Format
	if format == "" || format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	var (
		vol  *models.IntensityVolume
		meta models.SpatialMetadata
		err  error
	)
	switch format {
	case FormatDICOM:
		vol, meta, err = loadDICOMSeries(path, opts)
	case FormatImages:
		vol, meta, err = loadImageStack(path, opts)
	case FormatNIfTI:
		vol, meta, err = loadNIfTI(path)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Validate(vol.Shape); err != nil {
		return nil, err
	}

	opts.logger().WithFields(logrus.Fields{
		"format":  format,
		"source":  path,
		"shape":   vol.Shape.String(),
		"spacing": meta.Spacing,
	}).Info("Loaded input volume")

	return &Scan{Volume: vol, Metadata: meta, Format: format, Source: path}, nil
}

// DetectFormat guesses the source type of path. Files ending in .nii or
// .nii.gz are NIfTI; directories holding image files are image stacks and
// any other directory is read as a DICOM series.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &models.InputError{Reason: "cannot access input " + path, Err: err}
	}

	if !info.IsDir() {
		lower := strings.ToLower(path)
		if strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz") {
			return FormatNIfTI, nil
		}
		return "", &models.InputError{Reason: fmt.Sprintf("unsupported input file %s", filepath.Base(path))}
	}

	images, err := listImageFiles(path)
	if err != nil {
		return "", err
	}
	if len(images) > 0 {
		return FormatImages, nil
	}
	return FormatDICOM, nil
}
