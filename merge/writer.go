package merge

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteOptions controls WriteTable.
type WriteOptions struct {
	// BOM prefixes csv/tsv output with a UTF-8 signature.
	BOM bool
}

// WriteTable writes t to path in the format named by its extension: csv,
// tsv, json (one object per line), xlsx or parquet. The file is replaced
// atomically.
func WriteTable(path string, t *RawTable, opts WriteOptions) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", "":
		data, err = encodeDelimited(t, ',', opts.BOM)
	case ".tsv":
		data, err = encodeDelimited(t, '\t', opts.BOM)
	case ".json", ".jsonl":
		data, err = encodeJSONLines(t)
	case ".xlsx":
		data, err = encodeXLSX(t)
	case ".parquet":
		data, err = encodeParquet(t)
	default:
		err = fmt.Errorf("unsupported output type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func encodeDelimited(t *RawTable, comma rune, bom bool) ([]byte, error) {
	var buf bytes.Buffer
	if bom {
		buf.Write(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeJSONLines writes one object per row with keys in column order.
func encodeJSONLines(t *RawTable) ([]byte, error) {
	keys := make([][]byte, len(t.Columns))
	for i, col := range t.Columns {
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	var buf bytes.Buffer
	for r := range t.Rows {
		buf.WriteByte('{')
		for c := range t.Columns {
			if c > 0 {
				buf.WriteByte(',')
			}
			buf.Write(keys[c])
			buf.WriteByte(':')
			v, err := json.Marshal(t.Value(r, c))
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteString("}\n")
	}
	return buf.Bytes(), nil
}

func encodeXLSX(t *RawTable) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := append([][]string{t.Columns}, t.Rows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Table renders the merged rows with the fixed output columns followed by the
// audit columns.
func (d *Dataset) Table(originalTextColumn string) *RawTable {
	if originalTextColumn == "" {
		originalTextColumn = "original_text"
	}
	columns := []string{"global_id", "source", "text", "label_orig", "label", originalTextColumn}
	columns = append(columns, d.AuditColumns...)
	rows := make([][]string, len(d.Rows))
	for i, r := range d.Rows {
		row := make([]string, 0, len(columns))
		row = append(row, r.GlobalID, r.Source, r.Text, r.LabelOrig, r.Label, r.OriginalText)
		for _, col := range d.AuditColumns {
			row = append(row, r.Audit[col])
		}
		rows[i] = row
	}
	return &RawTable{Columns: columns, Rows: rows}
}

// DistributionTable renders the per-source label counts.
func (d *Dataset) DistributionTable() *RawTable {
	columns := append([]string{"source"}, CanonicalLabels...)
	columns = append(columns, "total")
	rows := make([][]string, len(d.PerSource))
	for i, dist := range d.PerSource {
		row := []string{dist.Source}
		for _, label := range CanonicalLabels {
			row = append(row, fmt.Sprint(dist.Counts[label]))
		}
		rows[i] = append(row, fmt.Sprint(dist.Total))
	}
	return &RawTable{Columns: columns, Rows: rows}
}

// writeSummary writes the run summary as indented JSON.
func writeSummary(path string, s Summary) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
