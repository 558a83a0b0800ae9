package dis

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between two assembler renderings. An empty
// string means they are identical.
func Diff(name, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name + " (before)",
		ToFile:   name + " (after)",
		Context:  2,
	})
}
