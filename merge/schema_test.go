package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		strings []bool
		want    ColumnRoles
	}{
		{
			name:    "text and label preferred",
			columns: []string{"comment", "class", "text", "label"},
			want:    ColumnRoles{Text: 2, Label: 3, ID: -1},
		},
		{
			name:    "case insensitive",
			columns: []string{"Tweet_ID", "TEXT", "Label"},
			want:    ColumnRoles{Text: 1, Label: 2, ID: 0},
		},
		{
			name:    "candidate order beats header order",
			columns: []string{"post", "idx", "content", "id"},
			want:    ColumnRoles{Text: 2, Label: -1, ID: 3},
		},
		{
			name:    "fallback to first string column",
			columns: []string{"score", "body"},
			strings: []bool{false, true},
			want:    ColumnRoles{Text: 1, Label: -1, ID: -1},
		},
		{
			name:    "fallback skips label and id",
			columns: []string{"id", "label", "body"},
			want:    ColumnRoles{Text: 2, Label: 1, ID: 0},
		},
		{
			name:    "no text column",
			columns: []string{"a", "label"},
			strings: []bool{false, true},
			want:    ColumnRoles{Text: -1, Label: 1, ID: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := &RawTable{Columns: tt.columns, StringColumns: tt.strings}
			got := InferColumns(table, ColumnCandidates{})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Text >= 0, got.HasText())
		})
	}
}

func TestInferColumnsCustomCandidates(t *testing.T) {
	table := &RawTable{Columns: []string{"Tweet", "Type", "label"}}
	got := InferColumns(table, ColumnCandidates{Label: []string{"type"}})
	assert.Equal(t, ColumnRoles{Text: 0, Label: 1, ID: -1}, got)
}
