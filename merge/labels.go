package merge

import "strings"

// Mapper resolves raw, source-specific labels to canonical labels. It is
// read-only after construction and safe for concurrent use.
type Mapper struct {
	labels       LabelMap
	keywords     map[string]string
	defaultLabel string
	dropUnmapped bool
}

// NewMapper builds a mapper. An invalid default label falls back to normal.
func NewMapper(labels LabelMap, keywords KeywordSets, defaultLabel string, dropUnmapped bool) *Mapper {
	def := strings.ToLower(strings.TrimSpace(defaultLabel))
	if !IsCanonical(def) {
		def = LabelNormal
	}
	kw := keywords.withDefaults()
	index := make(map[string]string)
	// Earlier classes win when a keyword is listed twice.
	for _, set := range []struct {
		label string
		words []string
	}{
		{LabelNormal, kw.Normal},
		{LabelOffensive, kw.Offensive},
		{LabelProfanity, kw.Profanity},
	} {
		for _, w := range set.words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if _, ok := index[w]; !ok {
				index[w] = set.label
			}
		}
	}
	return &Mapper{
		labels:       labels.Clone(),
		keywords:     index,
		defaultLabel: def,
		dropUnmapped: dropUnmapped,
	}
}

// DefaultLabel returns the class used for unresolved and invalid labels.
func (m *Mapper) DefaultLabel() string {
	return m.defaultLabel
}

// HasSource reports whether a per-source override table exists for source.
func (m *Mapper) HasSource(source string) bool {
	if source == GlobalLabelKey || source == "" {
		return false
	}
	_, ok := m.labels[source]
	return ok
}

// Resolve maps raw to a canonical label. The lookup order is the per-source
// table, the "all" table, the "" table, the keyword sets (non-empty labels
// only) and finally the default label. keep is false only when the label is
// unresolved and the mapper drops unmapped rows.
func (m *Mapper) Resolve(source, raw string) (label string, keep bool) {
	raw = strings.TrimSpace(raw)
	resolved, ok := m.lookup(source, raw)
	if !ok {
		if m.dropUnmapped {
			return "", false
		}
		resolved = m.defaultLabel
	}
	return m.Coerce(resolved), true
}

func (m *Mapper) lookup(source, raw string) (string, bool) {
	if source != GlobalLabelKey && source != "" {
		if v, ok := m.labels[source][raw]; ok {
			return v, true
		}
	}
	if v, ok := m.labels[GlobalLabelKey][raw]; ok {
		return v, true
	}
	if v, ok := m.labels[""][raw]; ok {
		return v, true
	}
	if raw == "" {
		return "", false
	}
	v, ok := m.keywords[strings.ToLower(raw)]
	return v, ok
}

// Coerce lower-cases and trims label, replacing anything that is not a
// canonical label with the default.
func (m *Mapper) Coerce(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if IsCanonical(label) {
		return label
	}
	return m.defaultLabel
}
