package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/labelmerge/merge"
)

func TestScoreTables(t *testing.T) {
	tests := []struct {
		table string
		score float64
		want  string
	}{
		{"chi2", -3, "Normal"},
		{"chi2", 0, "Normal"},
		{"chi2", 150, "Offensive"},
		{"chi2", 200, "Offensive"},
		{"chi2", 200.5, "Profanity"},
		{"pmi", 0, "Normal"},
		{"pmi", 2.9, "Offensive"},
		{"pmi", 3.1, "Profanity"},
		{"bns", -1, "Offensive"},
		{"bns", -0.566, "Normal"},
		{"bns", 0.566, "Normal"},
		{"bns", 0.6, "Profanity"},
		{"agg", 0, "Normal"},
		{"agg", -1, "Offensive"},
		{"agg", -2, "Profanity"},
		{"agg", 5, "Unknown"},
	}
	for _, tt := range tests {
		table, ok := LookupScoreTable(tt.table)
		require.True(t, ok, tt.table)
		assert.Equal(t, tt.want, table.Categorize(tt.score), "%s(%v)", tt.table, tt.score)
	}
}

func TestLookupScoreTable(t *testing.T) {
	_, ok := LookupScoreTable(" CHI2 ")
	assert.True(t, ok)
	_, ok = LookupScoreTable("tfidf")
	assert.False(t, ok)
	assert.Equal(t, []string{"agg", "bns", "chi2", "pmi"}, ScoreTableNames())
}

func TestApplyScoreTable(t *testing.T) {
	table, _ := LookupScoreTable("pmi")
	raw := &merge.RawTable{
		Columns: []string{"word", "Score"},
		Rows:    [][]string{{"a", "-1"}, {"b", " 2.5 "}, {"c", "n/a"}, {"d"}, {"e", "9"}},
	}

	changed, err := ApplyScoreTable(raw, "score", table)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	assert.Equal(t, [][]string{{"a", "Normal"}, {"b", "Offensive"}, {"c", "n/a"}, {"d"}, {"e", "Profanity"}}, raw.Rows)

	_, err = ApplyScoreTable(raw, "missing", table)
	assert.ErrorContains(t, err, `column "missing" not found`)
}
