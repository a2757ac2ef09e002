package merge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOptions controls how LoadTable decodes delimited text.
type LoadOptions struct {
	// Encodings are tried in order for csv/tsv files; empty means DefaultEncodings.
	Encodings []string
}

func (o LoadOptions) encodings() []string {
	if len(o.Encodings) == 0 {
		return DefaultEncodings
	}
	return o.Encodings
}

// LoadTable reads one file into a RawTable, choosing the reader by extension.
// Every failure is returned as a *LoadError.
func LoadTable(path string, opts LoadOptions) (*RawTable, error) {
	var (
		table *RawTable
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		table, err = loadDelimited(path, ',', opts.encodings())
	case ".tsv":
		table, err = loadDelimited(path, '\t', opts.encodings())
	case ".json":
		table, err = loadJSON(path)
	case ".xlsx":
		table, err = loadXLSX(path)
	case ".xls":
		table, err = loadXLS(path)
	case ".parquet":
		table, err = loadParquet(path)
	default:
		err = fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	table.Path = path
	table.normalizeShape()
	return table, nil
}

type readEngine string

const (
	// engineStrict enforces quoting rules and a constant field count.
	engineStrict readEngine = "strict"
	// engineLenient accepts bare quotes and ragged rows.
	engineLenient readEngine = "lenient"
)

type readAttempt struct {
	encoding string
	engine   readEngine
}

type attemptResult struct {
	table *RawTable
	err   error
}

func delimitedAttempts(encodings []string) []readAttempt {
	attempts := make([]readAttempt, 0, len(encodings)*2)
	for _, enc := range encodings {
		attempts = append(attempts,
			readAttempt{encoding: enc, engine: engineStrict},
			readAttempt{encoding: enc, engine: engineLenient},
		)
	}
	return attempts
}

// loadDelimited walks the attempt chain and returns the first table that
// decodes and parses. Only the last failure is reported.
func loadDelimited(path string, comma rune, encodings []string) (*RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var last error
	for _, attempt := range delimitedAttempts(encodings) {
		res := attempt.run(data, comma)
		if res.err == nil {
			return res.table, nil
		}
		last = fmt.Errorf("encoding=%s engine=%s: %w", attempt.encoding, attempt.engine, res.err)
	}
	if last == nil {
		last = errors.New("no encodings configured")
	}
	return nil, last
}

func (a readAttempt) run(data []byte, comma rune) attemptResult {
	text, err := decodeBytes(data, a.encoding)
	if err != nil {
		return attemptResult{err: err}
	}
	rows, err := parseDelimited(text, comma, a.engine == engineLenient)
	if err != nil {
		return attemptResult{err: err}
	}
	table, err := tableFromRows(rows)
	return attemptResult{table: table, err: err}
}

func parseDelimited(text string, comma rune, lenient bool) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = comma
	if lenient {
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
	}
	return reader.ReadAll()
}

func tableFromRows(rows [][]string) (*RawTable, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	return &RawTable{Columns: rows[0], Rows: rows[1:]}, nil
}

// normalizeShape cleans header names, makes them unique and pads every row to
// the table width. Rows wider than the header get generated column names.
func (t *RawTable) normalizeShape() {
	width := len(t.Columns)
	rows := t.Rows[:0]
	for _, row := range t.Rows {
		if len(row) == 0 {
			continue
		}
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	}
	t.Rows = rows

	header := make([]string, width)
	for i := range header {
		if i < len(t.Columns) {
			header[i] = cleanCell(t.Columns[i])
		}
	}
	t.Columns = uniqueHeader(header)

	for i, row := range t.Rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			t.Rows[i] = padded
		}
	}
	if t.StringColumns != nil {
		for len(t.StringColumns) < width {
			t.StringColumns = append(t.StringColumns, true)
		}
	}
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\ufeff")
	return strings.TrimSpace(v)
}

// uniqueHeader names blank columns col_<n> and suffixes repeats with .1, .2, ...
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	for i, name := range header {
		if name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		base := name
		for n := 1; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s.%d", base, n)
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}
