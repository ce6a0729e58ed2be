package models

import "fmt"

// InputError reports unusable input: a missing source, an empty volume
// or layers whose shapes do not agree.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input error: %s: %v", e.Reason, e.Err)
	}
	return "input error: " + e.Reason
}

func (e *InputError) Unwrap() error { return e.Err }

// RangeError reports an invalid display range
type RangeError struct {
	Start, End, Depth int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid slice range [%d, %d] for volume depth %d", e.Start, e.End, e.Depth)
}

// IOError reports a failure to write an output file
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
