package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// contextLines matches the default of diff -u
const contextLines = 3

// unifiedDiff returns a unified diff of old and new labelled with the logical
// paths, or "" when they are identical.
func unifiedDiff(oldLabel, newLabel string, old, neu []byte) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(string(old)),
		B:        splitLines(string(neu)),
		FromFile: oldLabel,
		ToFile:   newLabel,
		Context:  contextLines,
	})
	if err != nil {
		// only returned by the underlying writer, a strings.Builder never fails
		return ""
	}
	return out
}

// splitLines splits s after every newline. A missing final newline is added so
// that every line prints on its own; empty content has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
