package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"yashubustudio/labelmerge/convert"
	"yashubustudio/labelmerge/merge"
)

type command struct {
	name    string
	summary string
	run     func(args []string, logger *log.Logger) error
}

var commands = []command{
	{"merge", "merge every dataset under the input directory (default)", runMerge},
	{"repair", "repair mojibake in one table", runRepair},
	{"score", "turn a numeric score column into categories", runScore},
	{"tsv2csv", "convert a TSV file to CSV", runTSV2CSV},
	{"txt2csv", "convert a one-text-per-line file to CSV", runTXT2CSV},
	{"conllu2csv", "convert a CoNLL-U file to CSV", runCONLLU2CSV},
	{"fill-blanks", "fill empty cells of one column", runFillBlanks},
	{"extract-phrase", "extract a phrase label from the text column", runExtractPhrase},
	{"init-config", "write a config file with the default settings", runInitConfig},
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	if err := run(os.Args[1:], logger); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("labelmerge: %v", err)
	}
}

func run(args []string, logger *log.Logger) error {
	name := "merge"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		usage()
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(args, logger)
		}
	}
	usage()
	return fmt.Errorf("unknown command %q", name)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [command] [options]\n\nCommands:\n", filepath.Base(os.Args[0]))
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-15s %s\n", cmd.name, cmd.summary)
	}
}

func newFlagSet(name, synopsis string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s %s\n\n", filepath.Base(os.Args[0]), name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func runMerge(args []string, logger *log.Logger) error {
	fs := newFlagSet("merge", "[options]")
	configPath := fs.StringP("config", "c", "", "Path to labelmerge.json or .yaml (default: ./labelmerge.json)")
	input := fs.StringP("input", "i", "", "Directory tree containing the source datasets")
	output := fs.StringP("output", "o", "", "Merged dataset CSV")
	distribution := fs.String("distribution", "", "Per-source label distribution CSV")
	summary := fs.String("summary", "", "Run summary JSON")
	parquetOut := fs.String("parquet", "", "Also export the merged dataset as Parquet")
	sqliteOut := fs.String("sqlite", "", "Also export the merged dataset to a SQLite database")
	dropUnmapped := fs.Bool("drop-unmapped", false, "Drop rows whose label cannot be resolved")
	defaultLabel := fs.String("default-label", "", "Label for unresolved rows (normal, offensive, profanity)")
	dropDuplicates := fs.Bool("drop-duplicates", false, "Drop rows whose normalized text was already seen")
	keepAll := fs.Bool("keep-all-columns", true, "Carry every input column as orig__<name>")
	originalText := fs.String("original-text-column", "", "Name of the pre-normalization text column")
	repair := fs.Bool("repair-encoding", true, "Repair mojibake in text and label cells")
	workers := fs.IntP("workers", "j", 0, "Files processed in parallel")
	tokenizerPath := fs.String("tokenizer", "", "tokenizer.json used for token length statistics")
	maxSeqLen := fs.Int("max-seq-len", 0, "Token length reported as over-long in the statistics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := merge.LoadConfig(strings.TrimSpace(*configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Flags override the config only when given explicitly.
	if fs.Changed("input") {
		cfg.InputDir = *input
	}
	if fs.Changed("output") {
		cfg.OutputPath = *output
	}
	if fs.Changed("distribution") {
		cfg.DistributionPath = *distribution
	}
	if fs.Changed("summary") {
		cfg.SummaryPath = *summary
	}
	if fs.Changed("parquet") {
		cfg.ParquetOutput = *parquetOut
	}
	if fs.Changed("sqlite") {
		cfg.SQLiteOutput = *sqliteOut
	}
	if fs.Changed("drop-unmapped") {
		cfg.DropUnmapped = *dropUnmapped
	}
	if fs.Changed("default-label") {
		cfg.DefaultLabel = *defaultLabel
	}
	if fs.Changed("drop-duplicates") {
		cfg.DropExactDuplicates = *dropDuplicates
	}
	if fs.Changed("keep-all-columns") {
		cfg.KeepAllColumns = *keepAll
	}
	if fs.Changed("original-text-column") {
		cfg.OriginalTextColumn = *originalText
	}
	if fs.Changed("repair-encoding") {
		cfg.RepairEncoding = *repair
	}
	if fs.Changed("workers") {
		cfg.Workers = *workers
	}
	if fs.Changed("tokenizer") {
		cfg.TokenizerPath = *tokenizerPath
	}
	if fs.Changed("max-seq-len") {
		cfg.MaxSeqLen = *maxSeqLen
	}

	merger, err := merge.NewMerger(cfg, logger)
	if err != nil {
		return fmt.Errorf("init merger: %w", err)
	}
	eff := merger.Config()
	logger.Printf("Merging %s -> %s (workers: %d, repair encoding: %t, drop unmapped: %t)",
		eff.InputDir, eff.OutputPath, eff.Workers, eff.RepairEncoding, eff.DropUnmapped)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	d, err := merger.Run(ctx)
	if err != nil {
		return err
	}
	printTopSources(d, 10)
	return nil
}

func printTopSources(d *merge.Dataset, limit int) {
	fmt.Println()
	fmt.Println("Top sources by row count:")
	for i, dist := range d.PerSource {
		if i == limit {
			break
		}
		fmt.Printf("  %-40s %d\n", dist.Source, dist.Total)
	}
}

func runRepair(args []string, logger *log.Logger) error {
	fs := newFlagSet("repair", "--input FILE --output FILE")
	input := fs.StringP("input", "i", "", "Table to repair")
	output := fs.StringP("output", "o", "", "Repaired table (format from extension)")
	encodings := fs.StringSlice("encodings", nil, "Encodings tried when reading csv/tsv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output"); err != nil {
		return err
	}
	t, err := merge.LoadTable(*input, merge.LoadOptions{Encodings: *encodings})
	if err != nil {
		return err
	}
	changed := merge.RepairTable(t)
	if err := merge.WriteTable(*output, t, merge.WriteOptions{BOM: true}); err != nil {
		return err
	}
	logger.Printf("Repaired %d cells; saved %s (rows: %d)", changed, *output, len(t.Rows))
	return nil
}

func runScore(args []string, logger *log.Logger) error {
	fs := newFlagSet("score", "--table NAME --column COL --input FILE --output FILE")
	input := fs.StringP("input", "i", "", "Input table")
	output := fs.StringP("output", "o", "", "Output table (format from extension)")
	column := fs.String("column", "", "Score column to replace")
	tableName := fs.String("table", "", "Threshold table: "+strings.Join(convert.ScoreTableNames(), ", "))
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output", "column", "table"); err != nil {
		return err
	}
	table, ok := convert.LookupScoreTable(*tableName)
	if !ok {
		return fmt.Errorf("unknown score table %q", *tableName)
	}
	t, err := merge.LoadTable(*input, merge.LoadOptions{})
	if err != nil {
		return err
	}
	n, err := convert.ApplyScoreTable(t, *column, table)
	if err != nil {
		return err
	}
	if err := merge.WriteTable(*output, t, merge.WriteOptions{}); err != nil {
		return err
	}
	logger.Printf("Categorized %d cells of %s with %s; saved %s", n, *column, table.Name, *output)
	return nil
}

func runTSV2CSV(args []string, logger *log.Logger) error {
	fs := newFlagSet("tsv2csv", "--input FILE.tsv --output FILE.csv")
	input := fs.StringP("input", "i", "", "TSV file")
	output := fs.StringP("output", "o", "", "CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output"); err != nil {
		return err
	}
	n, err := convert.TSVToCSV(*input, *output)
	if err != nil {
		return err
	}
	logger.Printf("Converted %s to %s with %d rows.", *input, *output, n)
	return nil
}

func runTXT2CSV(args []string, logger *log.Logger) error {
	fs := newFlagSet("txt2csv", "--input FILE.txt --output FILE.csv [--label LABEL]")
	input := fs.StringP("input", "i", "", "Text file, one text per line")
	output := fs.StringP("output", "o", "", "CSV file")
	label := fs.String("label", "", "Label assigned to every row")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output"); err != nil {
		return err
	}
	n, err := convert.TXTToCSV(*input, *output, *label)
	if err != nil {
		return err
	}
	logger.Printf("Converted %d lines to %s", n, *output)
	return nil
}

func runCONLLU2CSV(args []string, logger *log.Logger) error {
	fs := newFlagSet("conllu2csv", "--input FILE.conllu --output FILE.csv")
	input := fs.StringP("input", "i", "", "CoNLL-U file")
	output := fs.StringP("output", "o", "", "CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output"); err != nil {
		return err
	}
	n, err := convert.CONLLUToCSV(*input, *output)
	if err != nil {
		return err
	}
	logger.Printf("Converted %d sentences to %s", n, *output)
	return nil
}

func runFillBlanks(args []string, logger *log.Logger) error {
	fs := newFlagSet("fill-blanks", "--column COL --input FILE --output FILE [--value VALUE]")
	input := fs.StringP("input", "i", "", "Input table")
	output := fs.StringP("output", "o", "", "Output table (format from extension)")
	column := fs.String("column", "", "Column whose blank cells are filled")
	value := fs.String("value", "non-bullying", "Value written into blank cells")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output", "column"); err != nil {
		return err
	}
	t, err := merge.LoadTable(*input, merge.LoadOptions{})
	if err != nil {
		return err
	}
	n, err := convert.FillBlanks(t, *column, *value)
	if err != nil {
		return err
	}
	if err := merge.WriteTable(*output, t, merge.WriteOptions{}); err != nil {
		return err
	}
	logger.Printf("Filled %d blank cells of %s; saved %s", n, *column, *output)
	return nil
}

func runExtractPhrase(args []string, logger *log.Logger) error {
	fs := newFlagSet("extract-phrase", "--input FILE --output FILE [--term TERM]")
	input := fs.StringP("input", "i", "", "Input table")
	output := fs.StringP("output", "o", "", "Output table (format from extension)")
	term := fs.String("term", "cyber", "Phrase to extract; its negation is \"not <term>\"")
	labelCol := fs.String("label-column", "label", "Column receiving the extracted label")
	originalCol := fs.String("original-text-column", "original_text", "Column keeping the unedited text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "output"); err != nil {
		return err
	}
	extractor, err := convert.NewPhraseExtractor(*term)
	if err != nil {
		return err
	}
	logger.Printf("[INFO] Reading file: %s", *input)
	t, err := merge.LoadTable(*input, merge.LoadOptions{})
	if err != nil {
		return err
	}
	logger.Printf("[INFO] Read %d rows, %d columns", len(t.Rows), len(t.Columns))
	res, err := convert.ExtractPhrases(t, extractor, convert.ExtractOptions{
		LabelColumn:        *labelCol,
		OriginalTextColumn: *originalCol,
	})
	if err != nil {
		return err
	}
	logger.Printf("[INFO] Using text column: '%s'", res.TextColumn)
	logger.Printf("[INFO] Total rows labeled (%s / not %s): %d / %d", *term, *term, res.Plain+res.Negated, len(t.Rows))
	if err := merge.WriteTable(*output, t, merge.WriteOptions{BOM: true}); err != nil {
		return err
	}
	logger.Printf("[INFO] Saved fixed file to: %s (rows: %d)", *output, len(t.Rows))
	return nil
}

func runInitConfig(args []string, logger *log.Logger) error {
	fs := newFlagSet("init-config", "[--config FILE] [--force]")
	configPath := fs.StringP("config", "c", "labelmerge.json", "Config file to write (.json, .yaml or .yml)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", *configPath)
	}
	if err := merge.SaveConfig(*configPath, merge.DefaultConfig()); err != nil {
		return err
	}
	logger.Printf("Wrote default config to %s", *configPath)
	return nil
}

func requireFlags(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, name := range names {
		if f := fs.Lookup(name); f == nil || strings.TrimSpace(f.Value.String()) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		fs.Usage()
		return fmt.Errorf("missing required %s", strings.Join(missing, ", "))
	}
	return nil
}
