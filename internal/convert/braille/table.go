// Package braille transliterates Arabic and Latin text to Unicode braille
// cells using the standard uncontracted (grade 1) tables.
package braille

import (
	"context"
	"strings"
	"unicode"
)

const (
	blank       = '⠀'
	capitalSign = "6"
	numberSign  = "3456"
)

// dots builds a braille cell from dot numbers such as "1456".
func dots(ds string) rune {
	r := blank
	for _, d := range ds {
		r |= 1 << (d - '1')
	}
	return r
}

var arabic = map[rune]string{
	'ا': "1", 'ب': "12", 'ت': "2345", 'ث': "1456", 'ج': "245", 'ح': "156",
	'خ': "1346", 'د': "145", 'ذ': "2346", 'ر': "1235", 'ز': "1356", 'س': "234",
	'ش': "146", 'ص': "12346", 'ض': "1246", 'ط': "23456", 'ظ': "123456", 'ع': "12356",
	'غ': "126", 'ف': "124", 'ق': "12345", 'ك': "13", 'ل': "123", 'م': "134",
	'ن': "1345", 'ه': "125", 'و': "2456", 'ي': "24", 'ة': "16", 'ء': "3",
	'أ': "34", 'إ': "46", 'آ': "345", 'ؤ': "1256", 'ئ': "13456", 'ى': "135",
	// harakat
	'َ': "2", 'ُ': "136", 'ِ': "15", 'ّ': "6", 'ْ': "25",
}

const lamAlef = "1236"

var latin = map[rune]string{
	'a': "1", 'b': "12", 'c': "14", 'd': "145", 'e': "15", 'f': "124", 'g': "1245",
	'h': "125", 'i': "24", 'j': "245", 'k': "13", 'l': "123", 'm': "134", 'n': "1345",
	'o': "135", 'p': "1234", 'q': "12345", 'r': "1235", 's': "234", 't': "2345",
	'u': "136", 'v': "1236", 'w': "2456", 'x': "1346", 'y': "13456", 'z': "1356",
}

var punct = map[rune]string{
	',': "2", '،': "2", ';': "23", '؛': "23", ':': "25", '.': "256",
	'!': "235", '?': "236", '؟': "236", '-': "36", '\'': "3", '"': "236",
}

// digitDots maps 1..9,0 onto the letters a..j.
var digitDots = [10]string{"245", "1", "12", "14", "145", "15", "124", "1245", "125", "24"}

// Table is a table-driven Transliterator. The zero value is ready to use.
type Table struct{}

// ToBraille converts text cell by cell. Spaces and line breaks are kept;
// runes with no braille equivalent pass through unchanged.
func (Table) ToBraille(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Transliterate(text), nil
}

// Transliterate is the context-free form of Table.ToBraille. Lam before a
// bare alef becomes the single lam-alef cell; lam before a hamza or madda
// alef is written as two cells.
func Transliterate(text string) string {
	var b strings.Builder
	runes := []rune(text)
	inNumber := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if d, ok := digit(r); ok {
			if !inNumber {
				b.WriteRune(dots(numberSign))
				inNumber = true
			}
			b.WriteRune(dots(digitDots[d]))
			continue
		}
		inNumber = false

		switch {
		case r == 'ل' && i+1 < len(runes) && isAlef(runes[i+1]):
			b.WriteRune(dots(lamAlef))
			i++
		case r == 'ـ': // tatweel carries no sound
		case arabic[r] != "":
			b.WriteRune(dots(arabic[r]))
		case unicode.IsUpper(r) && latin[unicode.ToLower(r)] != "":
			b.WriteRune(dots(capitalSign))
			b.WriteRune(dots(latin[unicode.ToLower(r)]))
		case latin[r] != "":
			b.WriteRune(dots(latin[r]))
		case punct[r] != "":
			b.WriteRune(dots(punct[r]))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isAlef reports whether lam followed by r contracts to the lam-alef cell.
// Only bare alef does: أ إ آ after lam keep their own cells so the hamza
// and madda survive, as in لأن -> ⠇⠌⠝.
func isAlef(r rune) bool {
	return r == 'ا'
}

// digit accepts ASCII and Arabic-Indic digits.
func digit(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= '٠' && r <= '٩':
		return int(r - '٠'), true
	}
	return 0, false
}
