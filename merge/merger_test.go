package merge

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func testConfig(t *testing.T, inputDir string) Config {
	t.Helper()
	out := t.TempDir()
	cfg := DefaultConfig()
	cfg.InputDir = inputDir
	cfg.OutputPath = filepath.Join(out, "merged.csv")
	cfg.DistributionPath = filepath.Join(out, "dist.csv")
	cfg.SummaryPath = filepath.Join(out, "summary.json")
	cfg.LabelMap = LabelMap{GlobalLabelKey: {"0": LabelNormal, "swear": LabelProfanity}}
	return cfg
}

func runMerger(t *testing.T, cfg Config) (*Dataset, error) {
	t.Helper()
	m, err := NewMerger(cfg, nil)
	require.NoError(t, err)
	return m.Run(context.Background())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "%s has no BOM", path)
	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	return records
}

func globalIDs(d *Dataset) []string {
	ids := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		ids[i] = r.GlobalID
	}
	return ids
}

func TestMergerTwoSources(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\nhello world,0\n"))
	writeTestFile(t, in, "B.csv", []byte("text,label\nbad word,swear\n"))
	cfg := testConfig(t, in)

	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	require.Len(t, d.Rows, 2)
	assert.Equal(t, MergedRow{
		GlobalID: "A_0", Source: "A", Text: "hello world", LabelOrig: "0", Label: LabelNormal,
		OriginalText: "hello world", Audit: map[string]string{"orig__text": "hello world", "orig__label": "0"},
	}, d.Rows[0])
	assert.Equal(t, LabelProfanity, d.Rows[1].Label)
	assert.Equal(t, "B_0", d.Rows[1].GlobalID)

	merged := readCSV(t, cfg.OutputPath)
	assert.Equal(t, []string{"global_id", "source", "text", "label_orig", "label", "original_text", "orig__text", "orig__label"}, merged[0])
	assert.Equal(t, []string{"A_0", "A", "hello world", "0", "normal", "hello world", "hello world", "0"}, merged[1])
	assert.Equal(t, []string{"B_0", "B", "bad word", "swear", "profanity", "bad word", "bad word", "swear"}, merged[2])

	dist := readCSV(t, cfg.DistributionPath)
	assert.Equal(t, [][]string{
		{"source", "normal", "offensive", "profanity", "total"},
		{"A", "1", "0", "0", "1"},
		{"B", "0", "0", "1", "1"},
	}, dist)

	raw, err := os.ReadFile(cfg.SummaryPath)
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, map[string]int{"normal": 1, "offensive": 0, "profanity": 1}, summary.LabelCounts)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, summary.FilesProcessedCounts)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Empty(t, summary.SkippedFiles)
	assert.NotContains(t, string(raw), "dropped_unmapped")
}

func TestMergerEmptyResult(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"empty directory", func(t *testing.T) string { return t.TempDir() }},
		{"missing directory", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") }},
		{"all files fail", func(t *testing.T) string {
			dir := t.TempDir()
			writeTestFile(t, dir, "broken.xlsx", []byte("not a workbook"))
			writeTestFile(t, dir, "numbers.json", []byte(`[{"score": 1}, {"score": 2}]`))
			return dir
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.setup(t))
			d, err := runMerger(t, cfg)
			require.ErrorIs(t, err, ErrEmptyResult)
			assert.Nil(t, d)
			for _, p := range []string{cfg.OutputPath, cfg.DistributionPath, cfg.SummaryPath} {
				assert.NoFileExists(t, p)
			}
		})
	}
}

func TestMergerUnresolvedLabels(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "C.csv", []byte("text,label\nfine,0\nodd one,???\n"))

	t.Run("default label", func(t *testing.T) {
		d, err := runMerger(t, testConfig(t, in))
		require.NoError(t, err)
		require.Len(t, d.Rows, 2)
		assert.Equal(t, "???", d.Rows[1].LabelOrig)
		assert.Equal(t, LabelNormal, d.Rows[1].Label)
	})

	t.Run("configured default", func(t *testing.T) {
		cfg := testConfig(t, in)
		cfg.DefaultLabel = LabelOffensive
		d, err := runMerger(t, cfg)
		require.NoError(t, err)
		assert.Equal(t, LabelOffensive, d.Rows[1].Label)
	})

	t.Run("drop unmapped", func(t *testing.T) {
		cfg := testConfig(t, in)
		cfg.DropUnmapped = true
		d, err := runMerger(t, cfg)
		require.NoError(t, err)
		require.Len(t, d.Rows, 1)
		assert.Equal(t, "fine", d.Rows[0].Text)
		assert.Equal(t, map[string]int{"C": 1}, d.Summary().DroppedUnmapped)
		assert.Equal(t, 1, d.FileCounts["C"])
	})
}

func TestMergerMissingColumnsAreSynthesized(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "nolabel.csv", []byte("sentence\nfirst\nsecond\n"))
	cfg := testConfig(t, in)

	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"nolabel_0", "nolabel_1"}, globalIDs(d))
	for _, r := range d.Rows {
		assert.Equal(t, "", r.LabelOrig)
		assert.Equal(t, LabelNormal, r.Label)
	}
}

func TestMergerGlobalIDsUnique(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "S.csv", []byte("id,text,label\n1,a,0\n1,b,0\n,c,0\n2,d,0\n"))
	// "a" + "b_1" and "a_b" + "1" both form a_b_1.
	writeTestFile(t, in, "a.csv", []byte("id,text\nb_1,x\n"))
	writeTestFile(t, in, "a_b.csv", []byte("id,text\n1,y\n"))

	d, err := runMerger(t, testConfig(t, in))
	require.NoError(t, err)

	ids := globalIDs(d)
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate global id %s", id)
		seen[id] = true
	}
	assert.Equal(t, []string{"S_1", "S_1#1", "S_2", "S_2#1", "a_b_1", "a_b_1#1"}, ids)
	assert.Equal(t, map[string]int{"S": 2, "a_b": 1}, d.Summary().IDCollisions)
}

func TestMergerDuplicates(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\nhello,0\nunique,0\n"))
	writeTestFile(t, in, "B.csv", []byte("text,label\n\"  hello \",swear\nhello,0\n"))

	t.Run("kept by default", func(t *testing.T) {
		d, err := runMerger(t, testConfig(t, in))
		require.NoError(t, err)
		assert.Len(t, d.Rows, 4)
		assert.Equal(t, 2, d.Duplicates)
	})

	t.Run("dropped when configured", func(t *testing.T) {
		cfg := testConfig(t, in)
		cfg.DropExactDuplicates = true
		d, err := runMerger(t, cfg)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Duplicates)
		require.Len(t, d.Rows, 2)
		assert.Equal(t, []string{"A_0", "A_1"}, globalIDs(d))
		assert.Equal(t, map[string]int{"normal": 2, "offensive": 0, "profanity": 0}, d.LabelCounts)
	})
}

func TestMergerSkippedFilesAreReported(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "good.csv", []byte("text,label\nok,0\n"))
	writeTestFile(t, in, "broken.xlsx", []byte("not a workbook"))
	writeTestFile(t, in, "numbers.json", []byte(`[{"score": 1}]`))
	cfg := testConfig(t, in)

	var logs bytes.Buffer
	m, err := NewMerger(cfg, log.New(&logs, "", 0))
	require.NoError(t, err)
	d, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"good": 1, "broken": 0, "numbers": 0}, d.FileCounts)
	require.Len(t, d.Skipped, 2)
	assert.Equal(t, filepath.Join(in, "broken.xlsx"), d.Skipped[0].Path)
	assert.Contains(t, d.Skipped[1].Reason, "no text-like column")
	assert.Contains(t, logs.String(), "[WARN] Could not read")
	assert.Contains(t, logs.String(), "Processed "+filepath.Join(in, "good.csv")+" -> collected 1 rows")
}

func TestMergerRepairKeepsRawAudit(t *testing.T) {
	garbled, err := charmap.ISO8859_1.NewDecoder().String("مَرحبا")
	require.NoError(t, err)
	in := t.TempDir()
	writeTestFile(t, in, "ar.csv", []byte("text,label\n"+garbled+",0\n"))

	t.Run("repair on", func(t *testing.T) {
		d, err := runMerger(t, testConfig(t, in))
		require.NoError(t, err)
		r := d.Rows[0]
		assert.Equal(t, "مرحبا", r.Text)
		assert.Equal(t, "مَرحبا", r.OriginalText)
		assert.Equal(t, garbled, r.Audit["orig__text"])
	})

	t.Run("repair off", func(t *testing.T) {
		cfg := testConfig(t, in)
		cfg.RepairEncoding = false
		cfg.KeepAllColumns = false
		d, err := runMerger(t, cfg)
		require.NoError(t, err)
		r := d.Rows[0]
		assert.Equal(t, garbled, r.OriginalText)
		assert.Nil(t, r.Audit)
		assert.Empty(t, d.AuditColumns)
	})
}

func TestMergerRepairLeavesAccentedLatin(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "es.csv", []byte("text,label\nel niño es malo,Ärger\n"))
	cfg := testConfig(t, in)
	cfg.LabelMap[GlobalLabelKey]["Ärger"] = LabelOffensive

	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	r := d.Rows[0]
	assert.Equal(t, "el niño es malo", r.Text)
	assert.Equal(t, "el niño es malo", r.OriginalText)
	assert.Equal(t, "Ärger", r.LabelOrig)
	assert.Equal(t, LabelOffensive, r.Label)
}

func TestMergerAuditColumnsUnion(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\na,0\n"))
	writeTestFile(t, in, "B.json", []byte(`{"content":"b","label":"swear","lang":"ar"}`+"\n"))
	cfg := testConfig(t, in)

	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"orig__text", "orig__label", "orig__content", "orig__lang"}, d.AuditColumns)

	merged := readCSV(t, cfg.OutputPath)
	assert.Equal(t, []string{"A_0", "A", "a", "0", "normal", "a", "a", "0", "", ""}, merged[1])
	assert.Equal(t, []string{"B_0", "B", "b", "swear", "profanity", "b", "", "swear", "b", "ar"}, merged[2])
}

func TestMergerPerSourceOverridesUseStem(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "d1/data.csv", []byte("text,label\nx1,x\n"))
	writeTestFile(t, in, "d2/data.csv", []byte("text,label\nx2,x\n"))
	writeTestFile(t, in, "d2/other.csv", []byte("text,label\nx3,x\n"))
	cfg := testConfig(t, in)
	cfg.LabelMap = LabelMap{
		"data":         {"x": LabelOffensive},
		"d2/data":      {"x": LabelProfanity},
		GlobalLabelKey: {"x": LabelNormal},
	}

	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	got := map[string]string{}
	for _, r := range d.Rows {
		got[r.Source] = r.Label
	}
	assert.Equal(t, map[string]string{
		"d1/data": LabelOffensive,
		"d2/data": LabelProfanity,
		"other":   LabelNormal,
	}, got)
}

func TestMergerDistributionSortedByTotal(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "small.csv", []byte("text,label\na,0\n"))
	writeTestFile(t, in, "big.csv", []byte("text,label\nb,0\nc,swear\nd,hate\n"))
	writeTestFile(t, in, "mid.csv", []byte("text,label\ne,0\nf,0\n"))
	writeTestFile(t, in, "also_small.csv", []byte("text,label\ng,swear\n"))

	d, err := runMerger(t, testConfig(t, in))
	require.NoError(t, err)
	var order []string
	for _, dist := range d.PerSource {
		order = append(order, dist.Source)
	}
	assert.Equal(t, []string{"big", "mid", "also_small", "small"}, order)
	assert.Equal(t, map[string]int{LabelNormal: 1, LabelOffensive: 1, LabelProfanity: 1}, d.PerSource[0].Counts)
}

func TestMergerExcludesOwnOutputs(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\nhello,0\n"))
	cfg := testConfig(t, in)
	cfg.OutputPath = filepath.Join(in, "merged.csv")

	_, err := runMerger(t, cfg)
	require.NoError(t, err)
	// A second run must not pick up the first run's output.
	d, err := runMerger(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, d.FileCounts)
}

func TestMergerWorkersAreDeterministic(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5", "f6"} {
		data := "id,text,label\n"
		for i := 0; i < 20; i++ {
			data += name + "-" + strings.Repeat("x", i%3) + "," + name + " row " + strings.Repeat("y", i) + ",0\n"
		}
		writeTestFile(t, in, name+".csv", []byte(data))
	}

	cfg := testConfig(t, in)
	sequential, err := runMerger(t, cfg)
	require.NoError(t, err)

	cfg = testConfig(t, in)
	cfg.Workers = 4
	parallel, err := runMerger(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, sequential.Rows, parallel.Rows)
	assert.Equal(t, sequential.IDCollisions, parallel.IDCollisions)
	assert.Len(t, parallel.Rows, 120)
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type failingCounter struct{}

func (failingCounter) CountTokens(string) (int, error) {
	return 0, errors.New("boom")
}

func TestMergerTokenStats(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "S.csv", []byte("text,label\nhello world,0\na b c,0\n"))
	cfg := testConfig(t, in)
	cfg.MaxSeqLen = 2

	m, err := NewMerger(cfg, nil)
	require.NoError(t, err)
	m.SetTokenCounter(wordCounter{})
	d, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]TokenStats{
		"S": {Rows: 2, MeanTokens: 2.5, MaxTokens: 3, OverMaxSeqLen: 1},
	}, d.TokenStats)

	raw, err := os.ReadFile(cfg.SummaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"over_max_seq_len": 1`)

	m.SetTokenCounter(failingCounter{})
	_, err = m.Collect(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestMergerExports(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\nhello world,0\n"))
	writeTestFile(t, in, "B.csv", []byte("text,label\nbad word,swear\nworse word,swear\n"))
	cfg := testConfig(t, in)
	out := t.TempDir()
	cfg.SQLiteOutput = filepath.Join(out, "merged.db")
	cfg.ParquetOutput = filepath.Join(out, "merged.parquet")

	_, err := runMerger(t, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.ParquetOutput)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PAR1")))

	db, err := sql.Open("sqlite", cfg.SQLiteOutput)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM merged`).Scan(&rows))
	assert.Equal(t, 3, rows)

	var label, audit string
	require.NoError(t, db.QueryRow(`SELECT label, "orig__label" FROM merged WHERE global_id = ?`, "B_1").Scan(&label, &audit))
	assert.Equal(t, LabelProfanity, label)
	assert.Equal(t, "swear", audit)

	var source string
	var total, profanity int
	require.NoError(t, db.QueryRow(`SELECT source, profanity, total FROM distribution ORDER BY total DESC LIMIT 1`).Scan(&source, &profanity, &total))
	assert.Equal(t, "B", source)
	assert.Equal(t, 2, profanity)
	assert.Equal(t, 2, total)
}

func TestMergerCancelled(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "A.csv", []byte("text,label\nhello,0\n"))
	cfg := testConfig(t, in)

	m, err := NewMerger(cfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestNewMergerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.DefaultLabel = "spam"
	_, err := NewMerger(cfg, nil)
	assert.ErrorContains(t, err, "invalid config")
}

func TestMakeUnique(t *testing.T) {
	ids := []string{"1", "1", "1#1", "2", "1"}
	assert.Equal(t, 3, makeUnique(ids))
	assert.Equal(t, []string{"1", "1#1", "1#1#1", "2", "1#2"}, ids)
}

func TestMergerConfigIsEffectiveCopy(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Workers = 0
	cfg.DefaultLabel = " Offensive "
	m, err := NewMerger(cfg, nil)
	require.NoError(t, err)

	eff := m.Config()
	assert.Equal(t, 1, eff.Workers)
	assert.Equal(t, LabelOffensive, eff.DefaultLabel)
	eff.LabelMap[GlobalLabelKey]["x"] = LabelProfanity
	assert.NotContains(t, m.Config().LabelMap[GlobalLabelKey], "x")
}
