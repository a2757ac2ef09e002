package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
)

// loadParquet reads a flat Parquet file. Rows are decoded without a
// predefined struct and rendered through JSON.
func loadParquet(path string) (*RawTable, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	// The reader renames Footer.Schema to Go field names; Infos keeps the
	// names stored in the file.
	fileNames := make([]string, len(pr.SchemaHandler.Infos))
	for i, info := range pr.SchemaHandler.Infos {
		fileNames[i] = info.ExName
	}
	columns, stringCols := parquetColumns(pr.Footer.Schema, fileNames)
	n := int(pr.GetNumRows())
	table := &RawTable{Columns: columns, StringColumns: stringCols, Rows: make([][]string, 0, n)}
	if n == 0 {
		return table, nil
	}
	records, err := pr.ReadByNumber(n)
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	for i, rec := range records {
		cells, err := parquetRecordCells(rec, columns)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

// parquetColumns lists the top-level fields of the schema. Element 0 is the
// root; nested groups count as one non-string column. fileNames, indexed like
// elems, takes precedence over the element names when set.
func parquetColumns(elems []*parquet.SchemaElement, fileNames []string) ([]string, []bool) {
	var (
		names      []string
		stringCols []bool
	)
	for i := 1; i < len(elems); i += schemaSubtreeSize(elems, i) {
		el := elems[i]
		name := el.GetName()
		if i < len(fileNames) && fileNames[i] != "" {
			name = fileNames[i]
		}
		names = append(names, name)
		stringCols = append(stringCols, el.GetNumChildren() == 0 && isParquetString(el))
	}
	return names, stringCols
}

func schemaSubtreeSize(elems []*parquet.SchemaElement, i int) int {
	size := 1
	for c := 0; c < int(elems[i].GetNumChildren()) && i+size < len(elems); c++ {
		size += schemaSubtreeSize(elems, i+size)
	}
	return size
}

func isParquetString(el *parquet.SchemaElement) bool {
	if !el.IsSetType() {
		return false
	}
	switch el.GetType() {
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return true
	}
	return false
}

// parquetRecordCells projects a decoded record onto columns. Generated
// struct fields may differ from the schema names in case and punctuation,
// so names are also compared in folded form.
func parquetRecordCells(rec any, columns []string) ([]string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	folded := make(map[string]any, len(fields))
	for k, v := range fields {
		folded[foldFieldName(k)] = v
	}
	cells := make([]string, len(columns))
	for i, col := range columns {
		v, ok := fields[col]
		if !ok {
			v = folded[foldFieldName(col)]
		}
		cells[i], _ = jsonCell(v)
	}
	return cells, nil
}

func foldFieldName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
