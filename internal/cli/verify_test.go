package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// tableRecords builds n rows with deterministic values derived from the
// reform id.
func tableRecords(n int) []resultfile.Record {
	recs := make([]resultfile.Record, 0, n)
	for rid := 1; rid <= n; rid++ {
		r := float64(rid)
		recs = append(recs, resultfile.NewRecord(rid, resultfile.Results{10 * r, 10*r + 1, 10*r + 2, 10*r + 3}))
	}
	return recs
}

func writeTables(t *testing.T, dir string, actual, expect []resultfile.Record) {
	t.Helper()
	if actual != nil {
		require.NoError(t, resultfile.WriteTable(resultfile.ActualPath(dir), actual))
	}
	if expect != nil {
		require.NoError(t, resultfile.WriteTable(resultfile.ExpectPath(dir), expect))
	}
}

func execVerify(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewVerifyCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVerifyMatch(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir, tableRecords(4), tableRecords(4))

	out, err := execVerify(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "match baseline (4 reforms)")
}

func TestVerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	expect := tableRecords(4)
	actual := tableRecords(4)
	actual[1] = resultfile.NewRecord(2, resultfile.Results{20, 21.5, 22, 23})
	writeTables(t, dir, actual, expect)

	out, err := execVerify(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ACTUAL AND EXPECTED REFORM RESULTS DIFFER")
	assert.Contains(t, out, "reform 2 res2: actual 21.5 expected 21")
}

func TestVerifyMismatchJSON(t *testing.T) {
	dir := t.TempDir()
	expect := tableRecords(3)
	actual := tableRecords(3)
	actual[0] = resultfile.NewRecord(1, resultfile.Results{10, 11, 12, 99})
	writeTables(t, dir, actual, expect)

	out, err := execVerify(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   VerifyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Match)
	require.Len(t, resp.Data.Mismatches, 1)
	assert.Equal(t, 1, resp.Data.Mismatches[0].RID)
	assert.Equal(t, "res4", resp.Data.Mismatches[0].Field)
}

func TestVerifyMatchJSON(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir, tableRecords(2), tableRecords(2))

	out, err := execVerify(t, "json", dir)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   VerifyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Match)
	assert.Equal(t, 2, resp.Data.Rows)
	assert.Equal(t, 10, resp.Data.Values)
}

func TestVerifyNoArtifact(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir, nil, tableRecords(2))

	_, err := execVerify(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "nothing to verify")
}

func TestVerifyMissingBaseline(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir, tableRecords(2), nil)

	_, err := execVerify(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "baseline")
}

func TestVerifyRowCountDrift(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir, tableRecords(3), tableRecords(4))

	_, err := execVerify(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "comparison failed")
}

func TestVerifyPreservesArtifact(t *testing.T) {
	dir := t.TempDir()
	expect := tableRecords(2)
	actual := tableRecords(2)
	actual[0] = resultfile.NewRecord(1, resultfile.Results{1, 2, 3, 4})
	writeTables(t, dir, actual, expect)

	_, err := execVerify(t, "text", dir)
	require.Error(t, err)

	// verify is read-only: the artifact stays for promote
	assert.FileExists(t, filepath.Join(dir, "reforms_actual.csv"))
}
