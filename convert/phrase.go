package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"yashubustudio/labelmerge/merge"
)

// PhraseExtractor pulls a whole-word phrase label such as "cyber" or its
// negation "not cyber" out of a text. The negated form wins.
type PhraseExtractor struct {
	term    string
	negated *regexp.Regexp
	plain   *regexp.Regexp
}

// NewPhraseExtractor builds an extractor for term. Matching is
// case-insensitive and the negation may be separated from the term by
// spaces or light punctuation.
func NewPhraseExtractor(term string) (*PhraseExtractor, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("phrase term is required")
	}
	quoted := regexp.QuoteMeta(term)
	negated, err := regexp.Compile(`(?i)\bnot\b[\s\-:,;]*\b` + quoted + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile phrase: %w", err)
	}
	plain, err := regexp.Compile(`(?i)\b` + quoted + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile phrase: %w", err)
	}
	return &PhraseExtractor{term: strings.ToLower(term), negated: negated, plain: plain}, nil
}

// Extract returns text with the phrase removed and the extracted label, or
// text unchanged and "" when the phrase does not occur.
func (p *PhraseExtractor) Extract(text string) (cleaned, label string) {
	switch {
	case p.negated.MatchString(text):
		text = p.negated.ReplaceAllString(text, " ")
		text = p.plain.ReplaceAllString(text, " ")
		return cleanAfterRemoval(text), "not " + p.term
	case p.plain.MatchString(text):
		return cleanAfterRemoval(p.plain.ReplaceAllString(text, " ")), p.term
	}
	return text, ""
}

// cleanAfterRemoval collapses whitespace and trims punctuation left at the
// edges by a removed phrase.
func cleanAfterRemoval(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.Trim(text, " -:,;.!")
}

// ExtractOptions names the columns ExtractPhrases reads and writes.
type ExtractOptions struct {
	LabelColumn        string
	OriginalTextColumn string
	Candidates         merge.ColumnCandidates
}

// ExtractResult reports what ExtractPhrases did.
type ExtractResult struct {
	TextColumn string
	Negated    int
	Plain      int
}

// ExtractPhrases runs p over the text column of t. The label column is
// overwritten with the extracted labels and, unless it already exists, the
// original text column keeps the unedited text.
func ExtractPhrases(t *merge.RawTable, p *PhraseExtractor, opts ExtractOptions) (ExtractResult, error) {
	if opts.LabelColumn == "" {
		opts.LabelColumn = "label"
	}
	if opts.OriginalTextColumn == "" {
		opts.OriginalTextColumn = "original_text"
	}
	if len(t.Columns) == 0 {
		return ExtractResult{}, errors.New("table has no columns")
	}
	textCol := merge.InferColumns(t, opts.Candidates).Text
	if textCol < 0 {
		textCol = 0
	}
	res := ExtractResult{TextColumn: t.Columns[textCol]}

	texts := t.Column(textCol)
	if t.ColumnIndex(opts.OriginalTextColumn) < 0 {
		t.SetColumn(opts.OriginalTextColumn, texts)
	}
	labels := make([]string, len(texts))
	for i, text := range texts {
		cleaned, label := p.Extract(text)
		switch {
		case label == "":
			continue
		case label == "not "+p.term:
			res.Negated++
		default:
			res.Plain++
		}
		texts[i] = cleaned
		labels[i] = label
	}
	t.SetColumn(res.TextColumn, texts)
	t.SetColumn(opts.LabelColumn, labels)
	return res, nil
}
