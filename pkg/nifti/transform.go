package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"lungseg/internal/models"
)

// lpsToRAS flips the first two world axes. NIfTI stores RAS coordinates
// while the metadata model uses LPS.
var lpsToRAS = mat.NewDiagDense(3, []float64{-1, -1, 1})

// sform builds the three sform rows for meta
func sform(meta models.SpatialMetadata) [3][4]float64 {
	scale := mat.NewDiagDense(3, meta.Spacing[:])

	var scaled, ras mat.Dense
	scaled.Mul(meta.DirectionMatrix(), scale)
	ras.Mul(lpsToRAS, &scaled)

	origin := mat.NewVecDense(3, []float64{meta.Origin[0], meta.Origin[1], meta.Origin[2]})
	var offset mat.VecDense
	offset.MulVec(lpsToRAS, origin)

	var rows [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = ras.At(i, j)
		}
		rows[i][3] = offset.AtVec(i)
	}
	return rows
}

// quaternion encodes the rotation part of meta as a NIfTI qform.
// It returns the (b, c, d) quaternion parameters and qfac.
func quaternion(meta models.SpatialMetadata) ([3]float64, float64) {
	var r mat.Dense
	r.Mul(lpsToRAS, meta.DirectionMatrix())

	// normalize the columns so the spacing never leaks into the rotation
	for j := 0; j < 3; j++ {
		norm := math.Sqrt(r.At(0, j)*r.At(0, j) + r.At(1, j)*r.At(1, j) + r.At(2, j)*r.At(2, j))
		if norm == 0 {
			continue
		}
		for i := 0; i < 3; i++ {
			r.Set(i, j, r.At(i, j)/norm)
		}
	}

	qfac := 1.0
	if mat.Det(&r) < 0 {
		qfac = -1
		for i := 0; i < 3; i++ {
			r.Set(i, 2, -r.At(i, 2))
		}
	}

	r11, r12, r13 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r21, r22, r23 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r31, r32, r33 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	var a, b, c, d float64
	if trace := r11 + r22 + r33 + 1; trace > 0.5 {
		a = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r32 - r23) / a
		c = 0.25 * (r13 - r31) / a
		d = 0.25 * (r21 - r12) / a
	} else {
		xd := 1 + r11 - (r22 + r33)
		yd := 1 + r22 - (r11 + r33)
		zd := 1 + r33 - (r11 + r22)
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r12 + r21) / b
			d = 0.25 * (r13 + r31) / b
			a = 0.25 * (r32 - r23) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r12 + r21) / c
			d = 0.25 * (r23 + r32) / c
			a = 0.25 * (r13 - r31) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r13 + r31) / d
			c = 0.25 * (r23 + r32) / d
			a = 0.25 * (r21 - r12) / d
		}
		if a < 0 {
			b, c, d = -b, -c, -d
		}
	}
	return [3]float64{b, c, d}, qfac
}

// metadataFromHeader derives LPS metadata from the header transforms.
// The sform is preferred over the qform; with neither the grid is axis-aligned.
func metadataFromHeader(h Header) models.SpatialMetadata {
	shape := models.Shape{Depth: int(h.Dim[3]), Height: int(h.Dim[2]), Width: int(h.Dim[1])}
	meta := models.NewSpatialMetadata(shape)
	for i := 0; i < 3; i++ {
		if s := math.Abs(h.Pixdim[i+1]); s > 0 {
			meta.Spacing[i] = s
		}
	}

	var ras *mat.Dense
	var offset [3]float64
	switch {
	case h.SformCode > XformUnknown:
		ras = mat.NewDense(3, 3, nil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				ras.Set(i, j, h.Srow[i][j])
			}
			offset[i] = h.Srow[i][3]
		}
	case h.QformCode > XformUnknown:
		ras = rotationFromQuaternion(h.Quatern, h.Pixdim[0])
		offset = h.Qoffset
	default:
		return meta
	}

	var lps mat.Dense
	lps.Mul(lpsToRAS, ras)
	for j := 0; j < 3; j++ {
		norm := math.Sqrt(lps.At(0, j)*lps.At(0, j) + lps.At(1, j)*lps.At(1, j) + lps.At(2, j)*lps.At(2, j))
		if norm == 0 {
			continue
		}
		for i := 0; i < 3; i++ {
			meta.Direction[i*3+j] = lps.At(i, j) / norm
		}
	}
	meta.Origin = [3]float64{-offset[0], -offset[1], offset[2]}
	return meta
}

// rotationFromQuaternion rebuilds the RAS rotation of a qform
func rotationFromQuaternion(q [3]float64, qfac float64) *mat.Dense {
	b, c, d := q[0], q[1], q[2]
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// 180 degree rotation; renormalize (b, c, d)
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	if qfac >= 0 {
		qfac = 1
	} else {
		qfac = -1
	}

	return mat.NewDense(3, 3, []float64{
		a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c) * qfac,
		2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b) * qfac,
		2 * (b*d - a*c), 2 * (c*d + a*b), (a*a + d*d - c*c - b*b) * qfac,
	})
}
