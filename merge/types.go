package merge

import "strings"

// Canonical labels every merged row ends up with.
const (
	LabelNormal    = "normal"
	LabelOffensive = "offensive"
	LabelProfanity = "profanity"
)

// CanonicalLabels lists the output classes in report order.
var CanonicalLabels = []string{LabelNormal, LabelOffensive, LabelProfanity}

// IsCanonical reports whether label is one of the three output classes.
func IsCanonical(label string) bool {
	switch label {
	case LabelNormal, LabelOffensive, LabelProfanity:
		return true
	}
	return false
}

// GlobalLabelKey is the LabelMap key whose entries apply to every source.
const GlobalLabelKey = "all"

// LabelMap maps a source name to its raw-label -> canonical-label table.
// The "all" and "" keys hold global tables.
type LabelMap map[string]map[string]string

// Clone returns a deep copy of the map.
func (m LabelMap) Clone() LabelMap {
	if m == nil {
		return nil
	}
	out := make(LabelMap, len(m))
	for source, table := range m {
		inner := make(map[string]string, len(table))
		for raw, label := range table {
			inner[raw] = label
		}
		out[source] = inner
	}
	return out
}

// SourceFile is a discovered input file.
type SourceFile struct {
	Path string
	// Source identifies the file in ids and reports. It is the file stem unless
	// two files share a stem, in which case the slash-separated relative path
	// without extension is used.
	Source string
	// Stem is the bare file name without extension.
	Stem string
}

// RawTable holds one loaded file with every cell as text.
type RawTable struct {
	Path    string
	Columns []string
	Rows    [][]string
	// StringColumns marks columns whose source values were textual. Nil means
	// every column is textual.
	StringColumns []bool
}

// Value returns the cell at row/col or "" when out of range.
func (t *RawTable) Value(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	cells := t.Rows[row]
	if col >= len(cells) {
		return ""
	}
	return cells[col]
}

// IsStringColumn reports whether column col holds textual values.
func (t *RawTable) IsStringColumn(col int) bool {
	if col < 0 || col >= len(t.Columns) {
		return false
	}
	if t.StringColumns == nil || col >= len(t.StringColumns) {
		return true
	}
	return t.StringColumns[col]
}

// ColumnIndex finds a column by exact name, then case-insensitively.
func (t *RawTable) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	for i, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// SetColumn overwrites the named column with values, appending it when missing.
// Values shorter than the row count leave the remaining cells empty.
func (t *RawTable) SetColumn(name string, values []string) int {
	idx := -1
	for i, col := range t.Columns {
		if col == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.Columns = append(t.Columns, name)
		if t.StringColumns != nil {
			t.StringColumns = append(t.StringColumns, true)
		}
		idx = len(t.Columns) - 1
	}
	for i := range t.Rows {
		for len(t.Rows[i]) <= idx {
			t.Rows[i] = append(t.Rows[i], "")
		}
		v := ""
		if i < len(values) {
			v = values[i]
		}
		t.Rows[i][idx] = v
	}
	return idx
}

// Column returns a copy of the values in column col.
func (t *RawTable) Column(col int) []string {
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Value(i, col)
	}
	return out
}

// ColumnRoles records the inferred text, label and id column indexes; -1 means absent.
type ColumnRoles struct {
	Text  int
	Label int
	ID    int
}

// HasText reports whether a usable text column was found.
func (r ColumnRoles) HasText() bool {
	return r.Text >= 0
}

// AuditPrefix prefixes output columns that carry original input values.
const AuditPrefix = "orig__"

// MergedRow is one accepted input row.
type MergedRow struct {
	GlobalID     string
	Source       string
	Text         string
	LabelOrig    string
	Label        string
	OriginalText string
	// Audit maps orig__<col> to the raw input value.
	Audit map[string]string
}

// SourceDistribution counts labels for one source.
type SourceDistribution struct {
	Source string
	Counts map[string]int
	Total  int
}

// SkippedFile records a file that contributed no rows because it failed.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// TokenStats summarizes tokenized text lengths for one source.
type TokenStats struct {
	Rows          int     `json:"rows"`
	MeanTokens    float64 `json:"mean_tokens"`
	MaxTokens     int     `json:"max_tokens"`
	OverMaxSeqLen int     `json:"over_max_seq_len"`
}

// Dataset is the merged corpus plus its aggregates.
type Dataset struct {
	Rows []MergedRow
	// AuditColumns is the first-seen union of orig__ columns across sources.
	AuditColumns []string
	Duplicates   int
	PerSource    []SourceDistribution
	LabelCounts  map[string]int
	// FileCounts holds rows collected per source, including zero entries.
	FileCounts   map[string]int
	Skipped      []SkippedFile
	Dropped      map[string]int
	IDCollisions map[string]int
	TokenStats   map[string]TokenStats
}

// Summary is the JSON run summary.
type Summary struct {
	Rows                 int                   `json:"rows"`
	LabelCounts          map[string]int        `json:"label_counts"`
	FilesProcessedCounts map[string]int        `json:"files_processed_counts"`
	Duplicates           int                   `json:"duplicates"`
	SkippedFiles         []SkippedFile         `json:"skipped_files"`
	DroppedUnmapped      map[string]int        `json:"dropped_unmapped,omitempty"`
	IDCollisions         map[string]int        `json:"id_collisions,omitempty"`
	TokenStats           map[string]TokenStats `json:"token_stats,omitempty"`
}

// Summary builds the run summary for the dataset.
func (d *Dataset) Summary() Summary {
	skipped := d.Skipped
	if skipped == nil {
		skipped = []SkippedFile{}
	}
	return Summary{
		Rows:                 len(d.Rows),
		LabelCounts:          d.LabelCounts,
		FilesProcessedCounts: d.FileCounts,
		Duplicates:           d.Duplicates,
		SkippedFiles:         skipped,
		DroppedUnmapped:      nonZero(d.Dropped),
		IDCollisions:         nonZero(d.IDCollisions),
		TokenStats:           d.TokenStats,
	}
}

func nonZero(m map[string]int) map[string]int {
	out := make(map[string]int)
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
