// Package compare checks aggregated reform results against the checked-in
// baseline with zero tolerance.
//
// The simulation is deterministic, so the comparison is bit-for-bit: any
// numeric drift, including platform floating-point nondeterminism, must be
// surfaced rather than hidden behind an epsilon. Every mismatching value is
// collected before reporting so the diagnostic covers all failing rows, not
// just the first.
package compare

import (
	"errors"
	"fmt"
	"math"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// Mismatch records one value that differs between actual and expected.
type Mismatch struct {
	// RID is the reform the row belongs to (taken from the expected row).
	RID int `json:"rid"`

	// Field names the differing column: "rid" or "res1".."res4".
	Field string `json:"field"`

	// Actual and Expect are the differing values.
	Actual float64 `json:"actual"`
	Expect float64 `json:"expect"`
}

// Result is the outcome of comparing an aggregate table against a baseline.
type Result struct {
	// Mismatches lists every differing value in row order.
	Mismatches []Mismatch

	// Rows is the number of records compared.
	Rows int

	// Values is the number of numeric values compared (5 per row: the
	// reform id plus four results).
	Values int
}

// AnyMismatch reports whether at least one value differed.
func (r Result) AnyMismatch() bool {
	return len(r.Mismatches) > 0
}

// Tables compares actual against expect element-wise.
//
// Both tables must have the same length; a length difference means the run
// produced the wrong number of rows and is an error, not a mismatch. Each
// row compares the reform id and the four results using exact bit equality
// (math.Float64bits), so comparing any table against itself always passes,
// NaN content included, and a single-ULP perturbation always fails.
func Tables(actual, expect []resultfile.Record) (Result, error) {
	if len(actual) != len(expect) {
		return Result{}, fmt.Errorf("compare: actual has %d rows, baseline has %d", len(actual), len(expect))
	}
	res := Result{Rows: len(actual), Values: 5 * len(actual)}
	for i := range actual {
		a, e := actual[i], expect[i]
		if a.RID != e.RID {
			res.Mismatches = append(res.Mismatches, Mismatch{
				RID:    e.RID,
				Field:  "rid",
				Actual: float64(a.RID),
				Expect: float64(e.RID),
			})
		}
		for j := 0; j < len(a.Res); j++ {
			if !bitEqual(a.Res[j], e.Res[j]) {
				res.Mismatches = append(res.Mismatches, Mismatch{
					RID:    e.RID,
					Field:  fmt.Sprintf("res%d", j+1),
					Actual: a.Res[j],
					Expect: e.Res[j],
				})
			}
		}
	}
	return res, nil
}

// bitEqual reports exact bit-pattern equality. Unlike ==, NaN equals itself
// and +0 differs from -0, which is what "bit-for-bit" requires.
func bitEqual(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// MismatchError reports that actual and expected reform results differ.
// The actual-results artifact is retained at ActualPath for inspection and,
// if its values are correct, promotion to be the new baseline.
type MismatchError struct {
	Result     Result
	ActualPath string
	ExpectPath string
}

// Error implements the error interface with the full operator diagnostic.
func (e *MismatchError) Error() string {
	return e.Result.Report(e.ActualPath, e.ExpectPath)
}

// IsMismatch reports whether err is a comparison mismatch.
// Uses errors.As to handle wrapped errors.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}
