package compare

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

func table(rows ...resultfile.Results) []resultfile.Record {
	recs := make([]resultfile.Record, len(rows))
	for i, res := range rows {
		recs[i] = resultfile.NewRecord(i+1, res)
	}
	return recs
}

func TestTablesSelfComparisonAlwaysPasses(t *testing.T) {
	// Zero tolerance means T compared against T passes for any content,
	// subnormal, negative, infinite, and NaN values included.
	tests := []struct {
		name string
		rows []resultfile.Results
	}{
		{"plain", []resultfile.Results{{10, 20, 30, 40}, {1.5, -2.5, 3.25, -4.125}}},
		{"subnormal", []resultfile.Results{{5e-324, -5e-324, math.SmallestNonzeroFloat64, 0}}},
		{"extremes", []resultfile.Results{{math.MaxFloat64, -math.MaxFloat64, math.Inf(1), math.Inf(-1)}}},
		{"nan", []resultfile.Results{{math.NaN(), 1, 2, 3}}},
		{"negative zero", []resultfile.Results{{math.Copysign(0, -1), 0, -0.0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab := table(tt.rows...)
			res, err := Tables(tab, tab)
			require.NoError(t, err)
			assert.False(t, res.AnyMismatch())
			assert.Equal(t, len(tt.rows), res.Rows)
			assert.Equal(t, 5*len(tt.rows), res.Values)
		})
	}
}

func TestTablesPerturbationSensitivity(t *testing.T) {
	// Perturbing any single value by one ULP must be detected: the check
	// is exact, not an epsilon.
	base := resultfile.Results{10.0, -31.0025, 1e-9, 123456.789}
	for col := 0; col < 4; col++ {
		t.Run(fmt.Sprintf("res%d", col+1), func(t *testing.T) {
			perturbed := base
			perturbed[col] = math.Nextafter(base[col], math.Inf(1))
			require.NotEqual(t, base[col], perturbed[col])

			res, err := Tables(table(perturbed), table(base))
			require.NoError(t, err)
			require.True(t, res.AnyMismatch())
			require.Len(t, res.Mismatches, 1)
			m := res.Mismatches[0]
			assert.Equal(t, 1, m.RID)
			assert.Equal(t, fmt.Sprintf("res%d", col+1), m.Field)
			assert.Equal(t, perturbed[col], m.Actual)
			assert.Equal(t, base[col], m.Expect)
		})
	}
}

func TestTablesSignedZeroDiffers(t *testing.T) {
	// Bit-for-bit equality distinguishes +0 from -0.
	res, err := Tables(
		table(resultfile.Results{0, 1, 2, 3}),
		table(resultfile.Results{math.Copysign(0, -1), 1, 2, 3}),
	)
	require.NoError(t, err)
	assert.True(t, res.AnyMismatch())
}

func TestTablesCollectsAllMismatches(t *testing.T) {
	// A mismatch never stops evaluation; every failing value is reported.
	actual := table(
		resultfile.Results{1, 2, 3, 4},
		resultfile.Results{5, 6, 7, 8},
		resultfile.Results{9, 10, 11, 12},
	)
	expect := table(
		resultfile.Results{1, 2, 3, 4.5},
		resultfile.Results{5, 6, 7, 8},
		resultfile.Results{9.5, 10, 11, 12.5},
	)

	res, err := Tables(actual, expect)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 3)
	assert.Equal(t, Mismatch{RID: 1, Field: "res4", Actual: 4, Expect: 4.5}, res.Mismatches[0])
	assert.Equal(t, Mismatch{RID: 3, Field: "res1", Actual: 9, Expect: 9.5}, res.Mismatches[1])
	assert.Equal(t, Mismatch{RID: 3, Field: "res4", Actual: 12, Expect: 12.5}, res.Mismatches[2])
}

func TestTablesRIDMismatch(t *testing.T) {
	actual := []resultfile.Record{resultfile.NewRecord(2, resultfile.Results{1, 2, 3, 4})}
	expect := []resultfile.Record{resultfile.NewRecord(1, resultfile.Results{1, 2, 3, 4})}

	res, err := Tables(actual, expect)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "rid", res.Mismatches[0].Field)
}

func TestTablesLengthMismatch(t *testing.T) {
	_, err := Tables(
		table(resultfile.Results{1, 2, 3, 4}),
		table(resultfile.Results{1, 2, 3, 4}, resultfile.Results{5, 6, 7, 8}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 rows")
	assert.Contains(t, err.Error(), "2")
}

func TestMismatchError(t *testing.T) {
	res, err := Tables(
		table(resultfile.Results{1, 2, 3, 4}),
		table(resultfile.Results{1, 2, 3.5, 4}),
	)
	require.NoError(t, err)

	merr := &MismatchError{Result: res, ActualPath: "/tmp/reforms_actual.csv", ExpectPath: "/tmp/reforms_expect.csv"}
	assert.Contains(t, merr.Error(), "ACTUAL AND EXPECTED REFORM RESULTS DIFFER")
	assert.Contains(t, merr.Error(), "/tmp/reforms_actual.csv")
	assert.Contains(t, merr.Error(), "reform 1 res3")

	wrapped := fmt.Errorf("session: %w", merr)
	assert.True(t, IsMismatch(wrapped))
	assert.False(t, IsMismatch(errors.New("other")))
}
