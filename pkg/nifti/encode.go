package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"lungseg/internal/models"
)

// EncodeOptions controls the optional parts of an encoded mask
type EncodeOptions struct {
	// Description is stored in the header descrip field (truncated to 79 bytes)
	Description string

	// Attributes are stored next to the spatial metadata in the extension
	Attributes map[string]string
}

// EncodeMask writes mask as an unsigned 8-bit NIfTI-2 image with voxel
// values 0 and 1, tagged with meta
func EncodeMask(w io.Writer, mask *models.BinaryMask, meta models.SpatialMetadata, opts EncodeOptions) error {
	if err := meta.Validate(mask.Shape); err != nil {
		return err
	}

	ext, err := metadataExtension(meta, opts.Attributes)
	if err != nil {
		return err
	}

	h := header2{
		SizeofHdr: header2Size,
		Magic:     magic2,
		Datatype:  DTUint8,
		Bitpix:    8,
		Dim:       [8]int64{3, int64(mask.Width), int64(mask.Height), int64(mask.Depth), 1, 1, 1, 1},
		Pixdim:    [8]float64{1, meta.Spacing[0], meta.Spacing[1], meta.Spacing[2], 0, 0, 0, 0},
		VoxOffset: int64(header2Size + 4 + ext.paddedSize()),
		SclSlope:  1,
		CalMax:    1,
		QformCode: XformScannerAnat,
		SformCode: XformScannerAnat,
		XyztUnits: unitsMM,
	}
	copy(h.Descrip[:79], opts.Description)

	q, qfac := quaternion(meta)
	h.Pixdim[0] = qfac
	h.QuaternB, h.QuaternC, h.QuaternD = q[0], q[1], q[2]

	rows := sform(meta)
	h.SrowX, h.SrowY, h.SrowZ = rows[0], rows[1], rows[2]
	h.QoffsetX, h.QoffsetY, h.QoffsetZ = rows[0][3], rows[1][3], rows[2][3]

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := bw.Write([]byte{1, 0, 0, 0}); err != nil {
		return fmt.Errorf("failed to write extension flag: %w", err)
	}
	if err := writeExtension(bw, ext); err != nil {
		return err
	}
	if _, err := bw.Write(mask.Bytes()); err != nil {
		return fmt.Errorf("failed to write voxel data: %w", err)
	}
	return bw.Flush()
}

func writeExtension(w io.Writer, ext Extension) error {
	size := ext.paddedSize()
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ext.Code))
	copy(buf[8:], ext.Data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write header extension: %w", err)
	}
	return nil
}
