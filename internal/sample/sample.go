package sample

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmpty          = errors.New("sample: empty input")
	ErrLengthMismatch = errors.New("sample: labels and scores length mismatch")
	ErrInvalidLabel   = errors.New("sample: label must be 0 or 1")
	ErrInvalidScore   = errors.New("sample: score must be a finite value in [0,1]")
	ErrSingleClass    = errors.New("sample: both classes are required")
)

// Validate checks that labels and scores are aligned, non-empty, binary and in range.
func Validate(labels []int, scores []float64) error {
	if len(labels) != len(scores) {
		return fmt.Errorf("%w: labels=%d scores=%d", ErrLengthMismatch, len(labels), len(scores))
	}
	if len(labels) == 0 {
		return ErrEmpty
	}
	for i, y := range labels {
		if y != 0 && y != 1 {
			return fmt.Errorf("%w: index=%d value=%d", ErrInvalidLabel, i, y)
		}
	}
	for i, p := range scores {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: index=%d value=%v", ErrInvalidScore, i, p)
		}
	}
	return nil
}

// RequireBothClasses is Validate plus at least one positive and one negative label.
func RequireBothClasses(labels []int, scores []float64) error {
	if err := Validate(labels, scores); err != nil {
		return err
	}
	pos, neg := Counts(labels)
	if pos == 0 || neg == 0 {
		return fmt.Errorf("%w: positives=%d negatives=%d", ErrSingleClass, pos, neg)
	}
	return nil
}

// Counts returns the number of positive and negative labels.
func Counts(labels []int) (pos, neg int) {
	for _, y := range labels {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// Linspace returns n evenly spaced values over [start, stop]. Values are computed as
// start + i*step and the last point is pinned to stop, so grids and bin edges are
// reproducible bit for bit.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	step := (stop - start) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)*step + start
	}
	out[n-1] = stop
	return out
}
