// Package nifti reads and writes single-file NIfTI volumes.
//
// Masks are written as NIfTI-2 so that spacing and the sform are stored in
// double precision. The exact spatial metadata is also embedded as a YAML
// header extension; readers that ignore extensions still see a valid image.
// Both NIfTI-1 and NIfTI-2 files are accepted on input, in either byte order.
package nifti

import (
	"bytes"
)

// NIfTI datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// datatypeBits is the sample width of every supported datatype
var datatypeBits = map[int16]int16{
	DTUint8:   8,
	DTInt8:    8,
	DTInt16:   16,
	DTUint16:  16,
	DTInt32:   32,
	DTUint32:  32,
	DTFloat32: 32,
	DTFloat64: 64,
}

// Transform codes
const (
	XformUnknown     = 0
	XformScannerAnat = 1
)

// ExtensionComment is the extension code used for the embedded metadata
const ExtensionComment = 6

const (
	unitsMM = 2

	header1Size = 348
	header2Size = 540
)

var (
	magic1 = [4]byte{'n', '+', '1', 0}
	magic2 = [8]byte{'n', '+', '2', 0, '\r', '\n', 0x1a, '\n'}
)

// header1 is the on-disk NIfTI-1 header
type header1 struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// header2 is the on-disk NIfTI-2 header
type header2 struct {
	SizeofHdr     int32
	Magic         [8]byte
	Datatype      int16
	Bitpix        int16
	Dim           [8]int64
	IntentP1      float64
	IntentP2      float64
	IntentP3      float64
	Pixdim        [8]float64
	VoxOffset     int64
	SclSlope      float64
	SclInter      float64
	CalMax        float64
	CalMin        float64
	SliceDuration float64
	Toffset       float64
	SliceStart    int64
	SliceEnd      int64
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int32
	SformCode     int32
	QuaternB      float64
	QuaternC      float64
	QuaternD      float64
	QoffsetX      float64
	QoffsetY      float64
	QoffsetZ      float64
	SrowX         [4]float64
	SrowY         [4]float64
	SrowZ         [4]float64
	SliceCode     int32
	XyztUnits     int32
	IntentCode    int32
	IntentName    [16]byte
	DimInfo       byte
	UnusedStr     [15]byte
}

// Header is the version-independent view of a NIfTI header
type Header struct {
	// Version is 1 or 2
	Version int

	Datatype  int16
	Bitpix    int16
	Dim       [8]int64
	Pixdim    [8]float64
	VoxOffset int64
	SclSlope  float64
	SclInter  float64

	Description string

	QformCode int
	SformCode int
	Quatern   [3]float64
	Qoffset   [3]float64
	Srow      [3][4]float64
}

func (h header1) normalize() Header {
	out := Header{
		Version:     1,
		Datatype:    h.Datatype,
		Bitpix:      h.Bitpix,
		VoxOffset:   int64(h.VoxOffset),
		SclSlope:    float64(h.SclSlope),
		SclInter:    float64(h.SclInter),
		Description: cString(h.Descrip[:]),
		QformCode:   int(h.QformCode),
		SformCode:   int(h.SformCode),
		Quatern:     [3]float64{float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)},
		Qoffset:     [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)},
	}
	for i := range h.Dim {
		out.Dim[i] = int64(h.Dim[i])
		out.Pixdim[i] = float64(h.Pixdim[i])
	}
	for i := 0; i < 4; i++ {
		out.Srow[0][i] = float64(h.SrowX[i])
		out.Srow[1][i] = float64(h.SrowY[i])
		out.Srow[2][i] = float64(h.SrowZ[i])
	}
	return out
}

func (h header2) normalize() Header {
	return Header{
		Version:     2,
		Datatype:    h.Datatype,
		Bitpix:      h.Bitpix,
		Dim:         h.Dim,
		Pixdim:      h.Pixdim,
		VoxOffset:   h.VoxOffset,
		SclSlope:    h.SclSlope,
		SclInter:    h.SclInter,
		Description: cString(h.Descrip[:]),
		QformCode:   int(h.QformCode),
		SformCode:   int(h.SformCode),
		Quatern:     [3]float64{h.QuaternB, h.QuaternC, h.QuaternD},
		Qoffset:     [3]float64{h.QoffsetX, h.QoffsetY, h.QoffsetZ},
		Srow:        [3][4]float64{h.SrowX, h.SrowY, h.SrowZ},
	}
}

// cString trims a fixed-size NUL padded field
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
