// Package resultfile defines the on-disk artifacts the reform harness
// coordinates through.
//
// Every artifact lives in one shared directory:
//
//   - reforms_actual_init: marker file whose existence signals that the
//     coordinator finished initialization
//   - reform_actual_<rid>.csv: one per reform, written by exactly one
//     producer worker, consumed and deleted by the coordinator
//   - reforms_actual.csv: the aggregated actual results, retained only
//     when they differ from the baseline
//   - reforms_expect.csv: the checked-in baseline, read-only
//
// A per-reform file is exactly two lines: the fixed header and one
// comma-separated data line. Anything else is a producer defect and is
// treated as fatal, never skipped or zero-filled.
package resultfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Header is the fixed first line of every artifact in this package.
const Header = "rid,res1,res2,res3,res4"

// Artifact names within the shared directory.
const (
	InitFlagName = "reforms_actual_init"
	ActualName   = "reforms_actual.csv"
	ExpectName   = "reforms_expect.csv"

	resultPattern = "reform_actual_*.csv"
)

// InitFlagContent is written into the init flag. Only the file's existence
// carries meaning; the content is for humans poking at the directory.
const InitFlagContent = "reform harness initialization done"

// Results holds the four summary values one scenario produces.
type Results [4]float64

// Record is one reform's row: its dense 1-based identifier plus results.
// Immutable once written by its producer.
type Record struct {
	RID int
	Res Results

	// raw preserves the data line exactly as the producer wrote it, so the
	// aggregate artifact reproduces producer bytes and a promoted baseline
	// compares clean on the next run.
	raw string
}

// NewRecord builds a record, formatting the data line with the shortest
// round-trip float representation.
func NewRecord(rid int, res Results) Record {
	fields := make([]string, 0, 5)
	fields = append(fields, strconv.Itoa(rid))
	for _, v := range res {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return Record{RID: rid, Res: res, raw: strings.Join(fields, ",")}
}

// DataLine returns the record's data line without a trailing newline.
func (r Record) DataLine() string {
	return r.raw
}

// Encode renders the two-line file content for this record.
func (r Record) Encode() []byte {
	return []byte(Header + "\n" + r.raw + "\n")
}

// MalformedError indicates a result or table file that does not parse to the
// fixed header plus 5-field data lines. Signals a producer-side defect.
type MalformedError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed result file %s: %s", e.Path, e.Reason)
}

// IsMalformed reports whether err is a malformed-file error.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// ResultPath returns the per-reform result file path for rid.
func ResultPath(dir string, rid int) string {
	return filepath.Join(dir, fmt.Sprintf("reform_actual_%d.csv", rid))
}

// InitFlagPath returns the init flag path.
func InitFlagPath(dir string) string {
	return filepath.Join(dir, InitFlagName)
}

// ActualPath returns the aggregate actual-results artifact path.
func ActualPath(dir string) string {
	return filepath.Join(dir, ActualName)
}

// ExpectPath returns the baseline artifact path.
func ExpectPath(dir string) string {
	return filepath.Join(dir, ExpectName)
}

// ListResults returns the per-reform result files currently in dir,
// in unspecified order.
func ListResults(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, resultPattern))
}

// CountResults returns the number of per-reform result files in dir.
func CountResults(dir string) (int, error) {
	matches, err := ListResults(dir)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// Write stores rec as dir's per-reform result file.
// The producer owning rec.RID is the only writer of this path.
func Write(dir string, rec Record) error {
	if err := os.WriteFile(ResultPath(dir, rec.RID), rec.Encode(), 0o644); err != nil {
		return fmt.Errorf("write result file for reform %d: %w", rec.RID, err)
	}
	return nil
}

// Read loads and parses a per-reform result file.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read result file: %w", err)
	}
	return parse(path, data)
}

// ReadForReform loads the result file for rid and verifies the record
// identifies itself as rid. A mismatch means two producers collided or one
// wrote the wrong row, both fatal defects.
func ReadForReform(dir string, rid int) (Record, error) {
	path := ResultPath(dir, rid)
	rec, err := Read(path)
	if err != nil {
		return Record{}, err
	}
	if rec.RID != rid {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("record id %d does not match file name id %d", rec.RID, rid),
		}
	}
	return rec, nil
}

// parse decodes a two-line result file: header plus exactly one data line.
func parse(path string, data []byte) (Record, error) {
	lines := splitLines(data)
	if len(lines) != 2 {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("expected header plus exactly one data line, got %d lines", len(lines)),
		}
	}
	if lines[0] != Header {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("header %q does not match %q", lines[0], Header),
		}
	}
	return parseDataLine(path, lines[1])
}

// parseDataLine decodes one 5-field comma-separated data line.
func parseDataLine(path, line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("expected 5 comma-separated fields, got %d in %q", len(fields), line),
		}
	}
	rid, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("reform id %q is not an integer", fields[0]),
		}
	}
	if rid < 1 {
		return Record{}, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("reform id %d is not positive", rid),
		}
	}
	var res Results
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Record{}, &MalformedError{
				Path:   path,
				Reason: fmt.Sprintf("res%d value %q is not a number", i+1, f),
			}
		}
		res[i] = v
	}
	return Record{RID: rid, Res: res, raw: line}, nil
}

// splitLines splits on newlines, dropping a single trailing empty line.
// Interior empty lines are preserved so they count against the line total.
func splitLines(data []byte) []string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
