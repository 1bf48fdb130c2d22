package compare

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report renders the multi-line diagnostic shown when actual and expected
// reform results differ.
//
// The message tells the operator where the retained actual artifact lives
// and how to promote it if its values turn out to be correct. Per-value
// detail lines follow the banner so every failing row is visible without
// re-running anything.
func (r Result) Report(actualPath, expectPath string) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	b.WriteString("ACTUAL AND EXPECTED REFORM RESULTS DIFFER\n")
	b.WriteString("-------------------------------------------------\n")
	p.Fprintf(&b, "--- %d of %d values differ across %d rows\n", len(r.Mismatches), r.Values, r.Rows)
	b.WriteString("--- ACTUAL RESULTS RETAINED IN:\n")
	b.WriteString("---   " + actualPath + "\n")
	b.WriteString("--- IF ACTUAL RESULTS ARE OK, PROMOTE THEM:\n")
	b.WriteString("---   copy " + actualPath + "\n")
	b.WriteString("---   to   " + expectPath + "\n")
	b.WriteString("---   and rerun\n")
	b.WriteString("-------------------------------------------------\n")
	for _, m := range r.Mismatches {
		b.WriteString("reform ")
		b.WriteString(strconv.Itoa(m.RID))
		b.WriteString(" ")
		b.WriteString(m.Field)
		b.WriteString(": actual ")
		b.WriteString(strconv.FormatFloat(m.Actual, 'g', -1, 64))
		b.WriteString(" expected ")
		b.WriteString(strconv.FormatFloat(m.Expect, 'g', -1, 64))
		b.WriteString("\n")
	}
	return b.String()
}
