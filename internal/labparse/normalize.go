package labparse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a text fragment for comparison: NFKC form, case
// folded, trimmed, with runs of whitespace collapsed to a single space.
// Empty or invalid input yields an empty or best-effort string, never an error.
func Normalize(s string) string {
	out, _ := normalizeWithOffsets(s)
	return out
}

// normalizeWithOffsets normalizes s like Normalize and also returns, for every
// byte of the normalized string, the byte offset in s it was produced from.
// The returned slice has one extra trailing entry: the offset just past the
// last non-space source segment, so offsets[len(out)] is always valid.
//
// Normalization is applied per NFKC boundary segment so every output byte can
// be traced back to the segment of s that produced it.
func normalizeWithOffsets(s string) (string, []int) {
	if s == "" {
		return "", []int{0}
	}

	fold := cases.Fold()
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)

	pendingSpace := false
	spaceAt := 0
	lastEnd := 0

	for i := 0; i < len(s); {
		n := norm.NFKC.NextBoundaryInString(s[i:], true)
		if n <= 0 {
			n = len(s) - i
		}
		seg := fold.String(norm.NFKC.String(s[i : i+n]))

		for _, r := range seg {
			if unicode.IsSpace(r) {
				if b.Len() > 0 && !pendingSpace {
					pendingSpace = true
					spaceAt = i
				}
				continue
			}
			if pendingSpace {
				b.WriteByte(' ')
				offsets = append(offsets, spaceAt)
				pendingSpace = false
			}
			b.WriteRune(r)
			for k := utf8.RuneLen(r); k > 0; k-- {
				offsets = append(offsets, i)
			}
			lastEnd = i + n
		}
		i += n
	}

	offsets = append(offsets, lastEnd)
	return b.String(), offsets
}

// sourceOffset maps a byte position of a normalized string back to the source.
func sourceOffset(offsets []int, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos >= len(offsets) {
		return offsets[len(offsets)-1]
	}
	return offsets[pos]
}

// splitLines splits raw document text into lines. CRLF and lone CR both end
// a line.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
