package merge

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// TokenCounter reports how many model tokens a text occupies.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// HFTokenCounter counts tokens with a HuggingFace tokenizer.json.
type HFTokenCounter struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenCounter loads the tokenizer definition at path.
func LoadTokenCounter(path string) (*HFTokenCounter, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &HFTokenCounter{tk: tk}, nil
}

// CountTokens encodes text with special tokens added.
func (c *HFTokenCounter) CountTokens(text string) (int, error) {
	enc, err := c.tk.EncodeSingle(text, true)
	if err != nil {
		return 0, err
	}
	return len(enc.Ids), nil
}

// computeTokenStats tokenizes every row's text and aggregates per source.
func computeTokenStats(rows []MergedRow, counter TokenCounter, maxSeqLen int) (map[string]TokenStats, error) {
	type acc struct {
		rows, sum, max, over int
	}
	bySource := make(map[string]*acc)
	for i, row := range rows {
		n, err := counter.CountTokens(row.Text)
		if err != nil {
			return nil, fmt.Errorf("tokenize row %s (%d): %w", row.GlobalID, i, err)
		}
		a := bySource[row.Source]
		if a == nil {
			a = &acc{}
			bySource[row.Source] = a
		}
		a.rows++
		a.sum += n
		if n > a.max {
			a.max = n
		}
		if maxSeqLen > 0 && n > maxSeqLen {
			a.over++
		}
	}
	out := make(map[string]TokenStats, len(bySource))
	for source, a := range bySource {
		out[source] = TokenStats{
			Rows:          a.rows,
			MeanTokens:    float64(a.sum) / float64(a.rows),
			MaxTokens:     a.max,
			OverMaxSeqLen: a.over,
		}
	}
	return out, nil
}
