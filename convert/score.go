package convert

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"yashubustudio/labelmerge/merge"
)

// Band maps scores up to Upper to Category. Inclusive selects <= over <.
type Band struct {
	Upper     float64
	Inclusive bool
	Category  string
}

func (b Band) contains(v float64) bool {
	if b.Inclusive {
		return v <= b.Upper
	}
	return v < b.Upper
}

// ScoreTable turns a numeric score into a category name. Exact, when set,
// replaces the bands with a value lookup.
type ScoreTable struct {
	Name      string
	Bands     []Band
	Exact     map[float64]string
	Otherwise string
}

// Categorize returns the category for v.
func (t ScoreTable) Categorize(v float64) string {
	if t.Exact != nil {
		if c, ok := t.Exact[v]; ok {
			return c
		}
		return t.Otherwise
	}
	for _, b := range t.Bands {
		if b.contains(v) {
			return b.Category
		}
	}
	return t.Otherwise
}

var scoreTables = map[string]ScoreTable{
	"chi2": {
		Name: "chi2",
		Bands: []Band{
			{Upper: 0, Inclusive: true, Category: "Normal"},
			{Upper: 200, Inclusive: true, Category: "Offensive"},
		},
		Otherwise: "Profanity",
	},
	"pmi": {
		Name: "pmi",
		Bands: []Band{
			{Upper: 0, Inclusive: true, Category: "Normal"},
			{Upper: 3, Inclusive: true, Category: "Offensive"},
		},
		Otherwise: "Profanity",
	},
	"bns": {
		Name: "bns",
		Bands: []Band{
			{Upper: -0.566, Category: "Offensive"},
			{Upper: 0.566, Inclusive: true, Category: "Normal"},
		},
		Otherwise: "Profanity",
	},
	"agg": {
		Name:      "agg",
		Exact:     map[float64]string{0: "Normal", -1: "Offensive", -2: "Profanity"},
		Otherwise: "Unknown",
	},
}

// LookupScoreTable returns a built-in table by name.
func LookupScoreTable(name string) (ScoreTable, bool) {
	t, ok := scoreTables[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// ScoreTableNames lists the built-in tables.
func ScoreTableNames() []string {
	names := make([]string, 0, len(scoreTables))
	for name := range scoreTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyScoreTable replaces the numeric cells of column with their category
// and returns how many cells changed. Cells that do not parse as numbers are
// left as they are.
func ApplyScoreTable(t *merge.RawTable, column string, table ScoreTable) (int, error) {
	col := t.ColumnIndex(column)
	if col < 0 {
		return 0, fmt.Errorf("column %q not found (columns: %s)", column, strings.Join(t.Columns, ", "))
	}
	changed := 0
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil {
			continue
		}
		row[col] = table.Categorize(v)
		changed++
	}
	return changed, nil
}
