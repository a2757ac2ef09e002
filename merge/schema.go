package merge

import "strings"

// InferColumns picks the text, label and id columns of a table.
//
// Each role takes the first candidate name (in preference order) present in
// the header, compared case-insensitively. When no text candidate matches,
// the first string-typed column not already claimed as label or id is used.
// Label and id have no fallback; -1 means the caller synthesizes them.
func InferColumns(t *RawTable, candidates ColumnCandidates) ColumnRoles {
	c := candidates.withDefaults()
	roles := ColumnRoles{
		Text:  findColumn(t.Columns, c.Text),
		Label: findColumn(t.Columns, c.Label),
		ID:    findColumn(t.Columns, c.ID),
	}
	if roles.Text < 0 {
		roles.Text = firstStringColumn(t, roles.Label, roles.ID)
	}
	return roles
}

// findColumn returns the header index of the first candidate present.
func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

func firstStringColumn(t *RawTable, claimed ...int) int {
	for i := range t.Columns {
		if isClaimed(i, claimed) {
			continue
		}
		if t.IsStringColumn(i) {
			return i
		}
	}
	return -1
}

func isClaimed(col int, claimed []int) bool {
	for _, c := range claimed {
		if c == col {
			return true
		}
	}
	return false
}
