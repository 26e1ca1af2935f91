package labparse

import (
	"regexp"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

var fuzzyNoise = regexp.MustCompile(`[:\d.,<>()\[\]~%+*=]`)

// Similarity is the longest-common-subsequence ratio of a and b:
// 2*LCS / (len(a)+len(b)) counted in runes. Two empty strings score 0.
func Similarity(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0
	}
	return 2 * float64(matchr.LongestCommonSubsequence(a, b)) / float64(total)
}

// fuzzyText prepares a line for approximate name matching: digits, signs and
// punctuation are blanked and the rest normalized. Unit letters stay.
func fuzzyText(line string) string {
	return Normalize(fuzzyNoise.ReplaceAllString(line, " "))
}

// FuzzyGuess is the best approximate name match for a text fragment.
type FuzzyGuess struct {
	Parameter string
	Synonym   string
	Score     float64
}

// bestFuzzy scores cleaned against every synonym longer than two runes in
// longest-first order. The first synonym reaching the best score wins.
func (ix *Index) bestFuzzy(cleaned string, threshold float64) (FuzzyGuess, bool) {
	if cleaned == "" {
		return FuzzyGuess{}, false
	}
	best := FuzzyGuess{Score: -1}
	for _, syn := range ix.synonyms {
		if utf8.RuneCountInString(syn) < minFuzzySynonymLen {
			continue
		}
		if s := Similarity(cleaned, syn); s > best.Score {
			best = FuzzyGuess{Parameter: ix.owner[syn], Synonym: syn, Score: s}
		}
	}
	if best.Score < threshold || best.Parameter == "" {
		return FuzzyGuess{}, false
	}
	return best, true
}

// Guess returns the closest parameter for a free text line, scoring it the
// same way the fuzzy pass does.
func (ix *Index) Guess(line string, threshold float64) (FuzzyGuess, bool) {
	return ix.bestFuzzy(fuzzyText(line), threshold)
}
