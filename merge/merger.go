package merge

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Merger drives discovery, loading, schema inference, normalization and label
// mapping over every input file and writes the merged artifacts.
type Merger struct {
	cfg    Config
	mapper *Mapper
	tokens TokenCounter

	logger *log.Logger
}

// NewMerger validates cfg and prepares a merger. When cfg.TokenizerPath is set
// the tokenizer is loaded so token statistics can be reported.
func NewMerger(cfg Config, logger *log.Logger) (*Merger, error) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m := &Merger{
		cfg:    cfg,
		mapper: NewMapper(cfg.LabelMap, cfg.Keywords, cfg.DefaultLabel, cfg.DropUnmapped),
		logger: logger,
	}
	if cfg.TokenizerPath != "" {
		tc, err := LoadTokenCounter(cfg.TokenizerPath)
		if err != nil {
			return nil, err
		}
		m.tokens = tc
	}
	return m, nil
}

// Config returns a copy of the configuration the merger runs with.
func (m *Merger) Config() Config {
	return m.cfg.Clone()
}

// SetTokenCounter replaces the counter used for token statistics; nil
// disables them.
func (m *Merger) SetTokenCounter(tc TokenCounter) {
	m.tokens = tc
}

// Run collects the merged dataset and writes every configured artifact.
// Nothing is written when no rows were collected.
func (m *Merger) Run(ctx context.Context) (*Dataset, error) {
	d, err := m.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.WriteArtifacts(d); err != nil {
		return d, err
	}
	return d, nil
}

type fileResult struct {
	file       SourceFile
	rows       []MergedRow
	audit      []string
	dropped    int
	collisions int
	err        error
}

// Collect processes every discovered file and builds the dataset without
// writing anything. Per-file failures are logged and recorded as skipped;
// ErrEmptyResult is returned when no file contributed a row.
func (m *Merger) Collect(ctx context.Context) (*Dataset, error) {
	files, err := m.discover()
	if err != nil {
		return nil, err
	}
	m.logf("Found %d files to process under: %s", len(files), m.cfg.InputDir)

	// Each worker owns one slot, so results concatenate in discovery order.
	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.processFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := m.assemble(results)
	if len(d.Rows) == 0 {
		return nil, ErrEmptyResult
	}
	m.finalize(d)
	if m.tokens != nil {
		stats, err := computeTokenStats(d.Rows, m.tokens, m.cfg.MaxSeqLen)
		if err != nil {
			return nil, fmt.Errorf("token stats: %w", err)
		}
		d.TokenStats = stats
	}
	return d, nil
}

// discover lists the input files, leaving out this run's own artifacts.
func (m *Merger) discover() ([]SourceFile, error) {
	files, err := Discover(m.cfg.InputDir, m.cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("discover inputs: %w", err)
	}
	outputs := make(map[string]struct{})
	for _, p := range []string{m.cfg.OutputPath, m.cfg.DistributionPath, m.cfg.SummaryPath, m.cfg.ParquetOutput, m.cfg.SQLiteOutput} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			outputs[abs] = struct{}{}
		}
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if abs, err := filepath.Abs(f.Path); err == nil {
			if _, own := outputs[abs]; own {
				continue
			}
		}
		paths = append(paths, f.Path)
	}
	if len(paths) == len(files) {
		return files, nil
	}
	return assignSources(m.cfg.InputDir, paths), nil
}

func (m *Merger) processFile(f SourceFile) fileResult {
	res := fileResult{file: f}
	table, err := LoadTable(f.Path, LoadOptions{Encodings: m.cfg.Encodings})
	if err != nil {
		m.logf("[WARN] Could not read %s: %v; skipping.", f.Path, err)
		res.err = err
		return res
	}
	roles := InferColumns(table, m.cfg.Columns)
	if !roles.HasText() {
		res.err = &SchemaError{Path: f.Path, Columns: table.Columns}
		m.logf("[WARN] %v; skipping.", res.err)
		return res
	}

	labelKey := f.Source
	if !m.mapper.HasSource(labelKey) && m.mapper.HasSource(f.Stem) {
		labelKey = f.Stem
	}
	ids := rowIDs(table, roles.ID)
	res.collisions = makeUnique(ids)
	if res.collisions > 0 {
		m.logf("[WARN] %s: %d duplicate row ids rewritten", f.Path, res.collisions)
	}
	if m.cfg.KeepAllColumns {
		res.audit = make([]string, len(table.Columns))
		for c, col := range table.Columns {
			res.audit[c] = AuditPrefix + col
		}
	}

	res.rows = make([]MergedRow, 0, len(table.Rows))
	for i := range table.Rows {
		rawText := table.Value(i, roles.Text)
		rawLabel := table.Value(i, roles.Label)
		if m.cfg.RepairEncoding {
			rawText = RepairText(rawText)
			rawLabel = RepairText(rawLabel)
		}
		label, keep := m.mapper.Resolve(labelKey, rawLabel)
		if !keep {
			res.dropped++
			continue
		}
		row := MergedRow{
			GlobalID:     f.Source + "_" + ids[i],
			Source:       f.Source,
			Text:         NormalizeText(rawText),
			LabelOrig:    rawLabel,
			Label:        label,
			OriginalText: rawText,
		}
		if res.audit != nil {
			row.Audit = make(map[string]string, len(res.audit))
			for c, col := range res.audit {
				row.Audit[col] = table.Value(i, c)
			}
		}
		res.rows = append(res.rows, row)
	}
	if res.dropped > 0 {
		m.logf("[INFO] %s: dropped %d rows with unmapped labels", f.Path, res.dropped)
	}
	m.logf("Processed %s -> collected %d rows", f.Path, len(res.rows))
	return res
}

// rowIDs returns the per-row identifiers of t: the id column value, or the
// zero-based row position when there is no id column or the cell is blank.
func rowIDs(t *RawTable, idCol int) []string {
	ids := make([]string, len(t.Rows))
	for i := range t.Rows {
		id := ""
		if idCol >= 0 {
			id = strings.TrimSpace(t.Value(i, idCol))
		}
		if id == "" {
			id = strconv.Itoa(i)
		}
		ids[i] = id
	}
	return ids
}

// makeUnique rewrites repeated ids in place as <id>#<n> and returns how many
// were rewritten.
func makeUnique(ids []string) int {
	used := make(map[string]struct{}, len(ids))
	next := make(map[string]int)
	rewritten := 0
	for i, id := range ids {
		if _, taken := used[id]; taken {
			base := id
			for {
				next[base]++
				id = fmt.Sprintf("%s#%d", base, next[base])
				if _, taken := used[id]; !taken {
					break
				}
			}
			ids[i] = id
			rewritten++
		}
		used[id] = struct{}{}
	}
	return rewritten
}

// assemble concatenates per-file results in discovery order.
func (m *Merger) assemble(results []fileResult) *Dataset {
	d := &Dataset{
		FileCounts:   make(map[string]int, len(results)),
		Dropped:      make(map[string]int),
		IDCollisions: make(map[string]int),
	}
	seenAudit := make(map[string]struct{})
	for _, res := range results {
		source := res.file.Source
		d.FileCounts[source] = len(res.rows)
		if res.err != nil {
			d.Skipped = append(d.Skipped, SkippedFile{Path: res.file.Path, Reason: res.err.Error()})
			continue
		}
		d.Dropped[source] += res.dropped
		d.IDCollisions[source] += res.collisions
		for _, col := range res.audit {
			if _, ok := seenAudit[col]; ok {
				continue
			}
			seenAudit[col] = struct{}{}
			d.AuditColumns = append(d.AuditColumns, col)
		}
		d.Rows = append(d.Rows, res.rows...)
	}
	return d
}

// finalize enforces global id uniqueness, counts and optionally drops
// duplicate texts, re-validates labels and computes the aggregates.
func (m *Merger) finalize(d *Dataset) {
	ids := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		ids[i] = r.GlobalID
	}
	if makeUnique(ids) > 0 {
		for i := range d.Rows {
			if ids[i] != d.Rows[i].GlobalID {
				d.IDCollisions[d.Rows[i].Source]++
				d.Rows[i].GlobalID = ids[i]
			}
		}
		m.logf("[WARN] global id collisions across sources were rewritten")
	}

	seen := make(map[string]struct{}, len(d.Rows))
	kept := d.Rows[:0:0]
	for _, r := range d.Rows {
		if _, dup := seen[r.Text]; dup {
			d.Duplicates++
			if m.cfg.DropExactDuplicates {
				continue
			}
		} else {
			seen[r.Text] = struct{}{}
		}
		kept = append(kept, r)
	}
	switch {
	case d.Duplicates == 0:
		m.logf("[INFO] No exact text duplicates found.")
	case m.cfg.DropExactDuplicates:
		m.logf("[INFO] Exact text duplicates found: %d. Dropped, keeping the first occurrence.", d.Duplicates)
	default:
		m.logf("[INFO] Exact text duplicates found: %d. All duplicates are being kept per config.", d.Duplicates)
	}
	d.Rows = kept

	bad := make(map[string]struct{})
	for i := range d.Rows {
		if !IsCanonical(d.Rows[i].Label) {
			bad[d.Rows[i].Label] = struct{}{}
			d.Rows[i].Label = m.mapper.DefaultLabel()
		}
	}
	if len(bad) > 0 {
		m.logf("[WARN] labels outside canonical: %v -> remapping to %s", sortedKeys(bad), m.mapper.DefaultLabel())
	}

	d.LabelCounts = make(map[string]int, len(CanonicalLabels))
	for _, label := range CanonicalLabels {
		d.LabelCounts[label] = 0
	}
	perSource := make(map[string]*SourceDistribution)
	var order []string
	for _, r := range d.Rows {
		d.LabelCounts[r.Label]++
		dist := perSource[r.Source]
		if dist == nil {
			dist = &SourceDistribution{Source: r.Source, Counts: make(map[string]int, len(CanonicalLabels))}
			perSource[r.Source] = dist
			order = append(order, r.Source)
		}
		dist.Counts[r.Label]++
		dist.Total++
	}
	d.PerSource = make([]SourceDistribution, 0, len(order))
	for _, source := range order {
		d.PerSource = append(d.PerSource, *perSource[source])
	}
	sort.SliceStable(d.PerSource, func(i, j int) bool {
		a, b := d.PerSource[i], d.PerSource[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Source < b.Source
	})
}

// WriteArtifacts persists the merged dataset, the per-source distribution,
// the summary and any optional exports.
func (m *Merger) WriteArtifacts(d *Dataset) error {
	if d == nil || len(d.Rows) == 0 {
		return ErrEmptyResult
	}
	merged := d.Table(m.cfg.OriginalTextColumn)
	if err := writeCSV(m.cfg.OutputPath, merged); err != nil {
		return err
	}
	m.logf("Saved merged file: %s (rows: %d)", m.cfg.OutputPath, len(d.Rows))

	if err := writeCSV(m.cfg.DistributionPath, d.DistributionTable()); err != nil {
		return err
	}
	m.logf("Saved per-source distribution: %s", m.cfg.DistributionPath)

	if err := writeSummary(m.cfg.SummaryPath, d.Summary()); err != nil {
		return err
	}
	m.logf("Saved summary JSON: %s", m.cfg.SummaryPath)

	if m.cfg.ParquetOutput != "" {
		data, err := encodeParquet(merged)
		if err != nil {
			return fmt.Errorf("encode parquet: %w", err)
		}
		if err := writeFileAtomic(m.cfg.ParquetOutput, data); err != nil {
			return fmt.Errorf("write %s: %w", m.cfg.ParquetOutput, err)
		}
		m.logf("Saved parquet export: %s", m.cfg.ParquetOutput)
	}
	if m.cfg.SQLiteOutput != "" {
		if err := WriteSQLite(m.cfg.SQLiteOutput, d, m.cfg.OriginalTextColumn); err != nil {
			return err
		}
		m.logf("Saved sqlite export: %s", m.cfg.SQLiteOutput)
	}
	m.logf("Final label distribution: normal=%d offensive=%d profanity=%d",
		d.LabelCounts[LabelNormal], d.LabelCounts[LabelOffensive], d.LabelCounts[LabelProfanity])
	return nil
}

func writeCSV(path string, t *RawTable) error {
	data, err := encodeDelimited(t, ',', true)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Merger) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
