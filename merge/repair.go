package merge

import (
	"unicode"
	"unicode/utf8"
)

// recodings are the byte-level round trips that undo common mojibake:
// text encoded as `from` and decoded as `to`.
var recodings = []struct {
	from, to string
}{
	{"latin-1", "utf-8"},
	{"windows-1252", "utf-8"},
	{"utf-8", "latin-1"},
	{"windows-1256", "utf-8"},
	{"latin-1", "windows-1256"},
}

// ArabicScore counts the runes of s that fall in the Arabic blocks.
func ArabicScore(s string) int {
	n := 0
	for _, r := range s {
		if isArabic(r) {
			n++
		}
	}
	return n
}

func isArabic(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF,
		r >= 0x0750 && r <= 0x077F,
		r >= 0x08A0 && r <= 0x08FF,
		r >= 0xFB50 && r <= 0xFDFF,
		r >= 0xFE70 && r <= 0xFEFF:
		return true
	}
	return false
}

// mixesScripts reports whether an Arabic rune directly touches a Latin letter.
func mixesScripts(s string) bool {
	prev := rune(-1)
	for _, r := range s {
		if (isArabic(prev) && isLatinLetter(r)) || (isLatinLetter(prev) && isArabic(r)) {
			return true
		}
		prev = r
	}
	return false
}

func isLatinLetter(r rune) bool {
	return unicode.IsLetter(r) && unicode.In(r, unicode.Latin)
}

// RepairText tries each recoding of s and returns the candidate with the most
// Arabic letters. The input wins ties, so clean text is never altered.
// Candidates that glue Arabic runes onto Latin letters inside a word are
// rejected: that is what recoding accented Latin text produces, while real
// mojibake of Arabic text converts whole words.
func RepairText(s string) string {
	if isASCII(s) {
		return s
	}
	best, bestScore := s, ArabicScore(s)
	for _, rc := range recodings {
		data, err := encodeString(s, rc.from)
		if err != nil {
			continue
		}
		candidate, err := decodeBytes(data, rc.to)
		if err != nil {
			continue
		}
		if mixesScripts(candidate) {
			continue
		}
		if score := ArabicScore(candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}

// RepairTable applies RepairText to every cell and header of t and returns
// how many cells changed.
func RepairTable(t *RawTable) int {
	changed := 0
	for i, col := range t.Columns {
		if fixed := RepairText(col); fixed != col {
			t.Columns[i] = fixed
			changed++
		}
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if fixed := RepairText(cell); fixed != cell {
				row[i] = fixed
				changed++
			}
		}
	}
	return changed
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
