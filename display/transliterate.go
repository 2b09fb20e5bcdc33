package display

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that don't decompose into an ASCII base and a mark.
var letterReplacer = strings.NewReplacer(
	"ß", "ss",
	"Ł", "L", "ł", "l",
	"Đ", "D", "đ", "d",
	"Ø", "O", "ø", "o",
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
	"Þ", "Th", "þ", "th",
	"\u2013", "-", "\u2014", "-",
	"\u2018", "'", "\u2019", "'",
	"\u201c", "\"", "\u201d", "\"",
	"\u2026", "...",
	"\u00a0", " ",
)

// Reduces s to ASCII for displays that can't render anything else.
// Diacritics are dropped ("Nádraží" becomes "Nadrazi"). Characters
// without an ASCII equivalent become "?".
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, letterReplacer.Replace(s))
	if err != nil {
		stripped = s
	}

	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	}, stripped)
}
