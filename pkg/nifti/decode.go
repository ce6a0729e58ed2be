package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"

	"lungseg/internal/models"
)

// Image is a decoded NIfTI volume
type Image struct {
	Header     Header
	Extensions []Extension

	// Data holds the scaled voxel values in x-fastest order
	Data []float64

	// Metadata is the exact embedded metadata when present, otherwise it is
	// derived from the header transforms
	Metadata models.SpatialMetadata

	// Attributes are the extra values stored with the embedded metadata
	Attributes map[string]string
}

// Shape returns the grid of the first three dimensions
func (img *Image) Shape() models.Shape {
	return img.Metadata.Shape
}

// Volume returns the image as an intensity volume
func (img *Image) Volume() *models.IntensityVolume {
	return &models.IntensityVolume{Shape: img.Shape(), Data: img.Data}
}

// Mask returns the image as a binary mask; non-zero voxels are foreground
func (img *Image) Mask() *models.BinaryMask {
	mask := models.NewBinaryMask(img.Shape())
	for i, v := range img.Data {
		mask.Data[i] = v != 0
	}
	return mask
}

// ReadFile decodes a .nii or gzip-compressed .nii.gz file
func ReadFile(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	br := bufio.NewReader(file)
	sig, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var r io.Reader = br
	if sig[0] == 0x1f && sig[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	img, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Decode reads a single-file NIfTI-1 or NIfTI-2 image
func Decode(r io.Reader) (*Image, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(sizeBuf[:]) == header1Size || binary.LittleEndian.Uint32(sizeBuf[:]) == header2Size:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(sizeBuf[:]) == header1Size || binary.BigEndian.Uint32(sizeBuf[:]) == header2Size:
		order = binary.BigEndian
	default:
		return nil, errors.New("not a NIfTI file")
	}
	size := int32(order.Uint32(sizeBuf[:]))

	// re-read the header as a whole so the struct layout lines up
	raw := make([]byte, size)
	copy(raw, sizeBuf[:])
	if _, err := io.ReadFull(r, raw[4:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h Header
	if size == header1Size {
		var h1 header1
		if err := binary.Read(bytes.NewReader(raw), order, &h1); err != nil {
			return nil, err
		}
		if h1.Magic != magic1 {
			return nil, fmt.Errorf("unsupported NIfTI-1 magic %q (only single-file images are supported)", h1.Magic[:3])
		}
		h = h1.normalize()
	} else {
		var h2 header2
		if err := binary.Read(bytes.NewReader(raw), order, &h2); err != nil {
			return nil, err
		}
		if !bytes.Equal(h2.Magic[:4], magic2[:4]) {
			return nil, fmt.Errorf("unsupported NIfTI-2 magic %q", h2.Magic[:3])
		}
		h = h2.normalize()
	}

	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", h.Dim[0])
	}
	for i := int64(1); i <= 3; i++ {
		if i > h.Dim[0] {
			h.Dim[i] = 1
		}
		if h.Dim[i] < 1 || h.Dim[i] > models.MaxVoxels {
			return nil, fmt.Errorf("invalid size %d along dimension %d", h.Dim[i], i)
		}
	}
	shape := models.Shape{Depth: int(h.Dim[3]), Height: int(h.Dim[2]), Width: int(h.Dim[1])}
	if err := shape.CheckSize(); err != nil {
		return nil, err
	}

	bits, ok := datatypeBits[h.Datatype]
	if !ok {
		return nil, fmt.Errorf("unsupported datatype %d", h.Datatype)
	}
	if h.Bitpix != bits {
		return nil, fmt.Errorf("bitpix %d does not match datatype %d (%d bits)", h.Bitpix, h.Datatype, bits)
	}

	extensions, err := readExtensions(r, order, int64(size), h.VoxOffset)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Header:     h,
		Extensions: extensions,
		Metadata:   metadataFromHeader(h),
	}
	for _, ext := range extensions {
		if doc := parseMetadataExtension(ext); doc != nil && doc.SpatialMetadata.Shape == img.Metadata.Shape {
			img.Metadata = *doc.SpatialMetadata
			img.Attributes = doc.Attributes
			break
		}
	}

	img.Data, err = readVoxels(r, order, h, img.Metadata.Shape.Voxels())
	if err != nil {
		return nil, err
	}
	return img, nil
}

// readExtensions consumes everything between the header and the voxel data
func readExtensions(r io.Reader, order binary.ByteOrder, pos, voxOffset int64) ([]Extension, error) {
	if voxOffset < pos {
		// some writers leave vox_offset at zero; assume data follows the extender
		voxOffset = pos + 4
	}
	if voxOffset-pos < 4 {
		return nil, nil
	}

	var extender [4]byte
	if _, err := io.ReadFull(r, extender[:]); err != nil {
		return nil, fmt.Errorf("failed to read extension flag: %w", err)
	}
	pos += 4

	var extensions []Extension
	for extender[0] != 0 && voxOffset-pos >= 8 {
		var head [8]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, fmt.Errorf("failed to read extension header: %w", err)
		}
		esize := int64(order.Uint32(head[0:4]))
		ecode := int32(order.Uint32(head[4:8]))
		if esize < 8 || pos+esize > voxOffset {
			return nil, fmt.Errorf("invalid extension size %d", esize)
		}

		data := make([]byte, esize-8)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("failed to read extension data: %w", err)
		}
		extensions = append(extensions, Extension{Code: ecode, Data: data})
		pos += esize
	}

	if skip := voxOffset - pos; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("failed to seek to voxel data: %w", err)
		}
	}
	return extensions, nil
}

// readVoxels reads n voxels of the header datatype and applies scl_slope/scl_inter.
// The header must already have a Bitpix matching its Datatype.
func readVoxels(r io.Reader, order binary.ByteOrder, h Header, n int) ([]float64, error) {
	width := int(h.Bitpix / 8)
	size := int64(n) * int64(width)

	// the buffer grows with the data actually present, not the header's claim
	raw, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, fmt.Errorf("failed to read voxel data: %w", err)
	}
	if int64(len(raw)) != size {
		return nil, fmt.Errorf("failed to read voxel data: got %d of %d bytes: %w", len(raw), size, io.ErrUnexpectedEOF)
	}

	out := make([]float64, n)
	for i := range out {
		b := raw[i*width : (i+1)*width]
		switch h.Datatype {
		case DTUint8:
			out[i] = float64(b[0])
		case DTInt8:
			out[i] = float64(int8(b[0]))
		case DTInt16:
			out[i] = float64(int16(order.Uint16(b)))
		case DTUint16:
			out[i] = float64(order.Uint16(b))
		case DTInt32:
			out[i] = float64(int32(order.Uint32(b)))
		case DTUint32:
			out[i] = float64(order.Uint32(b))
		case DTFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case DTFloat64:
			out[i] = math.Float64frombits(order.Uint64(b))
		default:
			return nil, fmt.Errorf("unsupported datatype %d", h.Datatype)
		}
	}

	if h.SclSlope != 0 && !math.IsNaN(h.SclSlope) && !(h.SclSlope == 1 && h.SclInter == 0) {
		for i := range out {
			out[i] = out[i]*h.SclSlope + h.SclInter
		}
	}
	return out, nil
}
