// Package export writes final masks to disk as spatially tagged volumes.
package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"lungseg/internal/models"
	"lungseg/pkg/nifti"
)

// Options carries optional annotations for the exported file
type Options struct {
	Description string
	Attributes  map[string]string
}

// Export writes mask to path as an unsigned 8-bit NIfTI volume carrying the
// exact spacing, origin and orientation of meta. Paths ending in ".gz" are
// gzip-compressed. An existing file is replaced; on failure no partial file
// is left behind.
func Export(mask *models.BinaryMask, meta models.SpatialMetadata, path string, opts Options) error {
	if err := meta.Validate(mask.Shape); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &models.IOError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if err := write(tmp, mask, meta, path, opts); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &models.IOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &models.IOError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &models.IOError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &models.IOError{Path: path, Err: err}
	}
	return nil
}

func write(w io.Writer, mask *models.BinaryMask, meta models.SpatialMetadata, path string, opts Options) error {
	encOpts := nifti.EncodeOptions{Description: opts.Description, Attributes: opts.Attributes}

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return nifti.EncodeMask(w, mask, meta, encOpts)
	}

	gz := gzip.NewWriter(w)
	if err := nifti.EncodeMask(gz, mask, meta, encOpts); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
