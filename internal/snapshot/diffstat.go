package snapshot

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// lineStats counts inserted and deleted lines between oldContent and
// newContent using the same line-level diff algorithm as `git diff`'s
// Python-derived predecessor (difflib's SequenceMatcher).
func lineStats(oldContent, newContent []byte) (insertions, deletions int) {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	matcher := difflib.NewMatcher(oldLines, newLines)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'r':
			deletions += op.I2 - op.I1
			insertions += op.J2 - op.J1
		case 'd':
			deletions += op.I2 - op.I1
		case 'i':
			insertions += op.J2 - op.J1
		}
	}
	return insertions, deletions
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return strings.Split(string(b), "\n")
}
