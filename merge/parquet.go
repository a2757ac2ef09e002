package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// encodeParquet renders t as a Parquet file of optional UTF-8 columns.
func encodeParquet(t *RawTable) ([]byte, error) {
	names := parquetFieldNames(t.Columns)
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(buildParquetSchema(names), pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range t.Rows {
		rec := make(map[string]string, len(names))
		for c, name := range names {
			rec[name] = t.Value(i, c)
		}
		line, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("finish parquet: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

func buildParquetSchema(names []string) string {
	fields := make([]map[string]string, 0, len(names))
	for _, name := range names {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// parquetFieldNames maps column names onto identifiers the schema tag parser
// accepts, keeping them unique.
func parquetFieldNames(columns []string) []string {
	out := make([]string, len(columns))
	used := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		var b strings.Builder
		for _, r := range col {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
				b.WriteRune(r)
			} else {
				b.WriteByte('_')
			}
		}
		name := b.String()
		if name == "" || unicode.IsDigit(rune(name[0])) {
			name = fmt.Sprintf("col_%s", name)
		}
		base := name
		for n := 1; ; n++ {
			if _, taken := used[strings.ToLower(name)]; !taken {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = struct{}{}
		out[i] = name
	}
	return out
}
