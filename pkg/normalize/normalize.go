// Package normalize folds inbound text into the alphabet the letter wall understands.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Wall lists the letters that have a lamp, in the order they hang on the wall.
// Q has no lamp and renders as "off".
const Wall = "ABCDEFGHIJKLMNOPRSTUVWXYZ"

// transliterations covers letters that have no canonical decomposition to ASCII.
var transliterations = map[rune]string{
	'ß': "SS", 'ẞ': "SS",
	'Æ': "AE", 'æ': "AE",
	'Œ': "OE", 'œ': "OE",
	'Ø': "O", 'ø': "O",
	'Ł': "L", 'ł': "L",
	'Đ': "D", 'đ': "D",
	'Ð': "D", 'ð': "D",
	'Þ': "TH", 'þ': "TH",
	'ı': "I",
	// Cyrillic
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "E", 'Ж': "ZH",
	'З': "Z", 'И': "I", 'Й': "I", 'К': "K", 'Л': "L", 'М': "M", 'Н': "N", 'О': "O",
	'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U", 'Ф': "F", 'Х': "KH", 'Ц': "TS",
	'Ч': "CH", 'Ш': "SH", 'Щ': "SHCH", 'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "IU",
	'Я': "IA",
}

// Normalize transliterates raw text to upper-case ASCII. Characters without an ASCII
// equivalent are dropped and every whitespace character becomes a plain space. It never
// fails; unknown input only makes the result shorter.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var mapped strings.Builder
	mapped.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			mapped.WriteByte(' ')
			continue
		}
		if replacement, ok := transliterate(r); ok {
			mapped.WriteString(replacement)
			continue
		}
		mapped.WriteRune(r)
	}

	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), mapped.String())
	if err != nil {
		stripped = mapped.String()
	}

	var out strings.Builder
	out.Grow(len(stripped))
	for _, r := range stripped {
		if r < 0x20 || r > 0x7e {
			continue
		}
		out.WriteRune(unicode.ToUpper(r))
	}

	return out.String()
}

func transliterate(r rune) (string, bool) {
	if replacement, ok := transliterations[r]; ok {
		return replacement, true
	}
	replacement, ok := transliterations[unicode.ToUpper(r)]
	return replacement, ok
}

// Letters keeps A-Z only.
func Letters(s string) string {
	return keep(s, func(r rune) bool { return r >= 'A' && r <= 'Z' })
}

// LettersAndSpaces keeps A-Z and spaces.
func LettersAndSpaces(s string) string {
	return keep(s, func(r rune) bool { return r == ' ' || (r >= 'A' && r <= 'Z') })
}

// Alphanumeric keeps A-Z, 0-9 and spaces.
func Alphanumeric(s string) string {
	return keep(s, func(r rune) bool {
		return r == ' ' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	})
}

// Addressable reports whether the wall has a lamp for r.
func Addressable(r rune) bool {
	return r != 'Q' && r >= 'A' && r <= 'Z'
}

// Index returns the lamp position of r on the wall, or -1 when it has none.
func Index(r rune) int {
	if !Addressable(r) {
		return -1
	}

	return strings.IndexRune(Wall, r)
}

func keep(s string, allowed func(rune) bool) string {
	return strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return -1
	}, s)
}
