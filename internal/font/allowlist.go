package font

import (
	"unicode"

	"golang.org/x/text/unicode/rangetable"
)

// Allowlist is the fixed set of code points retained by subsetting: the Latin
// blocks the site's content can produce, combining diacritics for composed
// forms, and the explicit currency singleton.
var Allowlist = rangetable.Merge(
	block(0x0000, 0x007F), // Basic Latin
	block(0x0080, 0x00FF), // Latin-1 Supplement
	block(0x0100, 0x017F), // Latin Extended-A
	block(0x0180, 0x024F), // Latin Extended-B
	block(0x0300, 0x036F), // Combining Diacritical Marks
	block(0x1E00, 0x1EFF), // Latin Extended Additional
	rangetable.New('₫'), // DONG SIGN
)

func block(lo, hi rune) *unicode.RangeTable {
	return &unicode.RangeTable{
		R16: []unicode.Range16{{Lo: uint16(lo), Hi: uint16(hi), Stride: 1}},
	}
}

// Allowed reports whether a code point survives subsetting.
func Allowed(r rune) bool {
	return unicode.Is(Allowlist, r)
}
