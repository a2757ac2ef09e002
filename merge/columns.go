package merge

// ColumnCandidates defines possible header names for auto-detecting the text,
// label and id columns. Each list is in preference order.
type ColumnCandidates struct {
	Text  []string `json:"text" yaml:"text"`
	Label []string `json:"label" yaml:"label"`
	ID    []string `json:"id" yaml:"id"`
}

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Text:  []string{"text", "content", "tweet", "sentence", "comment", "post"},
		Label: []string{"label", "target", "class", "annotation", "y"},
		ID:    []string{"id", "uid", "post_id", "tweet_id", "idx"},
	}
}

// withDefaults fills nil lists with the built-in defaults, so callers can
// override only the parts they need. An explicitly empty list stays empty.
func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Text:  pickStrings(c.Text, defaults.Text),
		Label: pickStrings(c.Label, defaults.Label),
		ID:    pickStrings(c.ID, defaults.ID),
	}
}

// KeywordSets holds the case-insensitive fallback vocabulary used when a raw
// label is not found in any override table.
type KeywordSets struct {
	Normal    []string `json:"normal" yaml:"normal"`
	Offensive []string `json:"offensive" yaml:"offensive"`
	Profanity []string `json:"profanity" yaml:"profanity"`
}

func defaultKeywordSets() KeywordSets {
	return KeywordSets{
		Normal:    []string{"0", "none", "neutral", "normal", "clean", "non"},
		Offensive: []string{"1", "offensive", "offence", "abusive", "hate", "abuse", "toxic", "insult"},
		Profanity: []string{"2", "profanity", "swear", "swear_word", "vulgar", "obscene"},
	}
}

func (k KeywordSets) withDefaults() KeywordSets {
	defaults := defaultKeywordSets()
	return KeywordSets{
		Normal:    pickStrings(k.Normal, defaults.Normal),
		Offensive: pickStrings(k.Offensive, defaults.Offensive),
		Profanity: pickStrings(k.Profanity, defaults.Profanity),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
