package resultfile

import (
	"fmt"
	"os"
	"strings"
)

// LoadTable parses a multi-row artifact (the baseline or a retained actual
// file): the fixed header followed by one data line per reform.
//
// Rows are returned in file order. Callers asserting the dense 1..N ordering
// do so themselves; the baseline is checked-in and trusted to be ordered,
// and the comparator surfaces any row-identity drift as a mismatch.
func LoadTable(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	lines := splitLines(data)
	if len(lines) < 1 {
		return nil, &MalformedError{Path: path, Reason: "empty file"}
	}
	if lines[0] != Header {
		return nil, &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("header %q does not match %q", lines[0], Header),
		}
	}
	recs := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rec, err := parseDataLine(path, line)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WriteTable stores recs as a multi-row artifact, preserving each record's
// data line byte-for-byte. Writing producer bytes verbatim means a retained
// actual file promoted to baseline compares clean on the next run.
func WriteTable(path string, recs []Record) error {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, rec := range recs {
		b.WriteString(rec.DataLine())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}
