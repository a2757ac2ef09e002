package convert

import (
	"fmt"
	"strings"

	"yashubustudio/labelmerge/merge"
)

// FillBlanks sets every blank cell of column to value and returns how many
// cells were filled.
func FillBlanks(t *merge.RawTable, column, value string) (int, error) {
	col := t.ColumnIndex(column)
	if col < 0 {
		return 0, fmt.Errorf("column %q not found (columns: %s)", column, strings.Join(t.Columns, ", "))
	}
	filled := 0
	for i, row := range t.Rows {
		for len(row) <= col {
			row = append(row, "")
		}
		if strings.TrimSpace(row[col]) == "" {
			row[col] = value
			filled++
		}
		t.Rows[i] = row
	}
	return filled, nil
}
