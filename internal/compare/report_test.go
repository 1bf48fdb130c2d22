package compare

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

func TestReportGolden(t *testing.T) {
	actual := table(
		resultfile.Results{10, 20, 30, 40},
		resultfile.Results{11, 21, 31.000000001, 41},
		resultfile.Results{12, 22, 32, 42},
	)
	expect := table(
		resultfile.Results{10, 20, 30, 40},
		resultfile.Results{11, 21, 31, 41},
		resultfile.Results{12.5, 22, 32, 42},
	)

	res, err := Tables(actual, expect)
	require.NoError(t, err)
	require.True(t, res.AnyMismatch())

	report := res.Report("tests/reforms_actual.csv", "tests/reforms_expect.csv")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "mismatch_report", []byte(report))
}
