package merge

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	tatweel     = '\u0640'
	alef        = '\u0627'
	alefMaqsura = '\u0649'
	yeh         = '\u064A'
)

// arabicFold folds one rune; -1 removes it.
func arabicFold(r rune) rune {
	switch {
	case r == tatweel:
		return -1
	case r == '\u0625' || r == '\u0623' || r == '\u0622': // alef with hamza below, hamza above, madda
		return alef
	case r >= '\u064B' && r <= '\u065F', r == '\u0670': // harakat and superscript alef
		return -1
	case r == alefMaqsura:
		return yeh
	}
	return r
}

// NormalizeText canonicalizes a cell value: NFKC, Arabic orthographic
// folding (tatweel, alef variants, diacritics, alef maqsura) and whitespace
// collapsing. Nil yields "" and other values use their fmt form.
func NormalizeText(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	s = norm.NFKC.String(s)
	s = strings.Map(arabicFold, s)
	s = strings.Join(strings.Fields(s), " ")
	// Removing marks can leave composable pairs adjacent.
	return norm.NFC.String(s)
}
