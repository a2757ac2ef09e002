package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// loadJSON reads line-delimited JSON first and falls back to a whole document.
func loadJSON(path string) (*RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	table, linesErr := parseJSONLines(data)
	if linesErr == nil {
		if !looksColumnOriented(table) {
			return table, nil
		}
		// A single-line object of columns also parses as one record.
		if doc, err := parseJSONDocument(data); err == nil {
			return doc, nil
		}
		return table, nil
	}
	table, err = parseJSONDocument(data)
	if err != nil {
		return nil, fmt.Errorf("json lines: %v; json document: %w", linesErr, err)
	}
	return table, nil
}

// looksColumnOriented reports whether t is one record whose every value is a
// nested array or object.
func looksColumnOriented(t *RawTable) bool {
	if len(t.Rows) != 1 || len(t.Columns) == 0 {
		return false
	}
	for i, cell := range t.Rows[0] {
		if t.IsStringColumn(i) || !strings.HasPrefix(cell, "{") && !strings.HasPrefix(cell, "[") {
			return false
		}
	}
	return true
}

func parseJSONLines(data []byte) (*RawTable, error) {
	var b recordBuilder
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		keys, values, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("line %d: trailing data", i+1)
		}
		b.add(keys, values)
	}
	if len(b.rows) == 0 {
		return nil, errors.New("no json records")
	}
	return b.table(), nil
}

// parseJSONDocument accepts an array of records or an object of columns, the
// latter holding either arrays or index-keyed objects.
func parseJSONDocument(data []byte) (*RawTable, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	var b recordBuilder
	switch tok {
	case json.Delim('['):
		for dec.More() {
			keys, values, err := decodeObject(dec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(b.rows), err)
			}
			b.add(keys, values)
		}
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			column, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v", keyTok)
			}
			var cells any
			if err := dec.Decode(&cells); err != nil {
				return nil, fmt.Errorf("column %s: %w", column, err)
			}
			switch c := cells.(type) {
			case []any:
				for i, v := range c {
					b.set(i, column, v)
				}
			case map[string]any:
				for i, key := range sortedIndexKeys(c) {
					b.set(i, column, c[key])
				}
			default:
				return nil, fmt.Errorf("column %s is not an array or object", column)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected top-level token %v", tok)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return b.table(), nil
}

// decodeObject reads one JSON object keeping the key order.
func decodeObject(dec *json.Decoder) ([]string, map[string]any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	values := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func sortedIndexKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// recordBuilder collects decoded records in first-seen column order.
type recordBuilder struct {
	columns []string
	index   map[string]int
	rows    []map[string]any
}

func (b *recordBuilder) register(key string) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if _, ok := b.index[key]; !ok {
		b.index[key] = len(b.columns)
		b.columns = append(b.columns, key)
	}
}

func (b *recordBuilder) add(keys []string, values map[string]any) {
	for _, key := range keys {
		b.register(key)
	}
	b.rows = append(b.rows, values)
}

func (b *recordBuilder) set(row int, key string, v any) {
	b.register(key)
	for len(b.rows) <= row {
		b.rows = append(b.rows, make(map[string]any))
	}
	b.rows[row][key] = v
}

func (b *recordBuilder) table() *RawTable {
	hasString := make([]bool, len(b.columns))
	hasOther := make([]bool, len(b.columns))
	rows := make([][]string, len(b.rows))
	for i, rec := range b.rows {
		cells := make([]string, len(b.columns))
		for col, key := range b.columns {
			text, kind := jsonCell(rec[key])
			cells[col] = text
			switch kind {
			case cellString:
				hasString[col] = true
			case cellOther:
				hasOther[col] = true
			}
		}
		rows[i] = cells
	}
	stringCols := make([]bool, len(b.columns))
	for i := range stringCols {
		stringCols[i] = hasString[i] && !hasOther[i]
	}
	return &RawTable{Columns: b.columns, Rows: rows, StringColumns: stringCols}
}

type cellKind int

const (
	cellNull cellKind = iota
	cellString
	cellOther
)

// jsonCell renders a decoded JSON value as text.
func jsonCell(v any) (string, cellKind) {
	switch x := v.(type) {
	case nil:
		return "", cellNull
	case string:
		return x, cellString
	case json.Number:
		return x.String(), cellOther
	case bool:
		return strconv.FormatBool(x), cellOther
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), cellOther
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x), cellOther
		}
		return string(raw), cellOther
	}
}
