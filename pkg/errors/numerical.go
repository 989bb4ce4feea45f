package errors

import (
	"math"
)

// CheckFinite returns a ValueError when a matrix holds NaN or Inf. The
// messages follow the wording users know from scikit-learn.
func CheckFinite(op string, matrix interface {
	At(int, int) float64
	Dims() (int, int)
}) error {
	rows, cols := matrix.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) {
				return NewValueError(op, "Input X contains NaN")
			}
			if math.IsInf(v, 0) {
				return NewValueError(op, "Input X contains infinity or a value too large for dtype('float64')")
			}
		}
	}
	return nil
}

// SafeDivide returns numerator/denominator, or 0 when the denominator is
// zero or close to it.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}
