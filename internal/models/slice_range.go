package models

// SliceRange is an inclusive range of depth indices that has been
// checked against a volume depth. The zero value selects slice 0 only.
type SliceRange struct {
	start, end int
}

// NewSliceRange validates [start, end] against depth.
// Negative starts, ends past the last slice and inverted ranges are rejected.
func NewSliceRange(start, end, depth int) (SliceRange, error) {
	if start < 0 || end >= depth || start > end {
		return SliceRange{}, &RangeError{Start: start, End: end, Depth: depth}
	}
	return SliceRange{start: start, end: end}, nil
}

// Start returns the first slice index
func (r SliceRange) Start() int { return r.start }

// End returns the last slice index
func (r SliceRange) End() int { return r.end }

// Len returns the number of slices in the range
func (r SliceRange) Len() int { return r.end - r.start + 1 }

// Indices lists the slice indices in ascending order
func (r SliceRange) Indices() []int {
	out := make([]int, 0, r.Len())
	for i := r.start; i <= r.end; i++ {
		out = append(out, i)
	}
	return out
}
