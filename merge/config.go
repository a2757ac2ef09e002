package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "labelmerge.json"

// Config aggregates every setting of a merge run. It is passed by value into
// NewMerger and never read from package state.
type Config struct {
	InputDir         string `json:"inputDir" yaml:"inputDir"`
	OutputPath       string `json:"outputPath" yaml:"outputPath"`
	DistributionPath string `json:"distributionPath" yaml:"distributionPath"`
	SummaryPath      string `json:"summaryPath" yaml:"summaryPath"`
	ParquetOutput    string `json:"parquetOutput,omitempty" yaml:"parquetOutput,omitempty"`
	SQLiteOutput     string `json:"sqliteOutput,omitempty" yaml:"sqliteOutput,omitempty"`

	DropUnmapped        bool   `json:"dropUnmapped" yaml:"dropUnmapped"`
	DefaultLabel        string `json:"defaultLabel" yaml:"defaultLabel"`
	DropExactDuplicates bool   `json:"dropExactDuplicates" yaml:"dropExactDuplicates"`
	KeepAllColumns      bool   `json:"keepAllColumns" yaml:"keepAllColumns"`
	OriginalTextColumn  string `json:"originalTextColumn" yaml:"originalTextColumn"`
	RepairEncoding      bool   `json:"repairEncoding" yaml:"repairEncoding"`

	Extensions []string `json:"extensions" yaml:"extensions"`
	Encodings  []string `json:"encodings" yaml:"encodings"`
	Workers    int      `json:"workers" yaml:"workers"`

	Columns  ColumnCandidates `json:"columns" yaml:"columns"`
	Keywords KeywordSets      `json:"keywords" yaml:"keywords"`
	LabelMap LabelMap         `json:"labelMap" yaml:"labelMap"`

	TokenizerPath string `json:"tokenizerPath,omitempty" yaml:"tokenizerPath,omitempty"`
	MaxSeqLen     int    `json:"maxSeqLen" yaml:"maxSeqLen"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() Config {
	cfg := Config{
		KeepAllColumns: true,
		RepairEncoding: true,
	}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultLabelMap is the global mapping applied when the config has none.
func DefaultLabelMap() LabelMap {
	return LabelMap{
		GlobalLabelKey: {
			"Neutral":       LabelNormal,
			"Positive":      LabelNormal,
			"Negative":      LabelOffensive,
			"ADULT":         LabelProfanity,
			"NOT_ADULT":     LabelNormal,
			"no":            LabelNormal,
			"yes":           LabelOffensive,
			"neutral":       LabelNormal,
			"negative":      LabelOffensive,
			"positive":      LabelNormal,
			"offensive":     LabelOffensive,
			"not":           LabelNormal,
			"Offensive":     LabelOffensive,
			"non-offensive": LabelNormal,
			"Non-offensive": LabelNormal,
			"abusive":       LabelProfanity,
			"normal":        LabelNormal,
			"hate":          LabelOffensive,
			"Bullying":      LabelOffensive,
			"non-bullying":  LabelNormal,
			"none":          LabelNormal,
			"None":          LabelNormal,
			"HATE":          LabelOffensive,
			"OFFENSIVE":     LabelOffensive,
			"NORMAL":        LabelNormal,
			"":              LabelNormal,
			"cyber":         LabelOffensive,
			"not cyber":     LabelNormal,
		},
	}
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.InputDir == "" {
		c.InputDir = "All_datasets"
	}
	if c.OutputPath == "" {
		c.OutputPath = "Merged_dataset.csv"
	}
	if c.DistributionPath == "" {
		c.DistributionPath = "merged_3class_per_source_distribution.csv"
	}
	if c.SummaryPath == "" {
		c.SummaryPath = "merged_3class_summary.json"
	}
	c.DefaultLabel = strings.ToLower(strings.TrimSpace(c.DefaultLabel))
	if c.DefaultLabel == "" {
		c.DefaultLabel = LabelNormal
	}
	if c.OriginalTextColumn == "" {
		c.OriginalTextColumn = "original_text"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = cloneStrings(DefaultExtensions)
	}
	if len(c.Encodings) == 0 {
		c.Encodings = cloneStrings(DefaultEncodings)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxSeqLen <= 0 {
		c.MaxSeqLen = 512
	}
	c.Columns = c.Columns.withDefaults()
	c.Keywords = c.Keywords.withDefaults()
	if c.LabelMap == nil {
		c.LabelMap = DefaultLabelMap()
	}
}

// Validate reports settings that would make a run meaningless.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return errors.New("input directory is required")
	}
	if !IsCanonical(strings.ToLower(strings.TrimSpace(c.DefaultLabel))) {
		return fmt.Errorf("default label %q is not one of %s", c.DefaultLabel, strings.Join(CanonicalLabels, ", "))
	}
	if c.OutputPath == "" || c.DistributionPath == "" || c.SummaryPath == "" {
		return errors.New("output, distribution and summary paths are required")
	}
	return nil
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// LoadConfig loads configuration from the given path or the default
// labelmerge.json. Files ending in .yaml or .yml are decoded as YAML.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// Decoding merges into existing maps, so start the label map empty.
	cfg.LabelMap = nil
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	cfg.ApplyDefaults()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
