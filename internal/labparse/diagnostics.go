package labparse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minDiagnosticLineLen = 5

var (
	digitPattern       = regexp.MustCompile(`\d`)
	numberPattern      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	numbersOnlyPattern = regexp.MustCompile(`^[\d\s-]+$`)
)

// UnrecognizedLines lists trimmed lines of at least five characters that
// contain a digit but no known synonym as a whole word.
func UnrecognizedLines(ix *Index, text string) []string {
	if ix == nil {
		ix = EmptyIndex()
	}
	var out []string
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < minDiagnosticLineLen || !digitPattern.MatchString(line) {
			continue
		}
		if !ix.hasWholeSynonym(Normalize(line)) {
			out = append(out, line)
		}
	}
	return out
}

func (ix *Index) hasWholeSynonym(norm string) bool {
	for _, h := range ix.occurrences(norm) {
		if isWordBoundary(norm, h.start, h.end) {
			return true
		}
	}
	return false
}

// MissedLine is a line holding numbers that no reported value accounts for.
type MissedLine struct {
	Line  int     `json:"line"`
	Text  string  `json:"text"`
	Guess string  `json:"guess,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Detection summarizes how much of a document the parser accounted for.
type Detection struct {
	LinesWithValues int               `json:"lines_with_values"`
	DetectedCount   int               `json:"detected_count"`
	Detected        map[string]string `json:"detected"`
	DetectionRate   float64           `json:"detection_rate"`
	Missed          []MissedLine      `json:"missed"`
}

// AnalyzeDetection compares a parse result with the document it came from.
// A line counts as accounted for when one of its numbers equals a reported
// value; the others are listed with the closest parameter name at threshold.
func AnalyzeDetection(ix *Index, text string, res *Result, threshold float64) Detection {
	if ix == nil {
		ix = EmptyIndex()
	}
	if threshold <= 0 {
		threshold = DiagnosticFuzzyThreshold
	}
	d := Detection{Detected: make(map[string]string), Missed: []MissedLine{}}

	reported := make(map[string]bool)
	if res != nil {
		for _, m := range res.Matches {
			d.Detected[m.Category+"_"+m.Parameter] = m.Display
			if n := numberPattern.FindString(m.Value); n != "" {
				reported[n] = true
			}
		}
		d.DetectedCount = len(res.Matches)
	}

	for i, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" || !digitPattern.MatchString(line) {
			continue
		}
		d.LinesWithValues++
		if lineHasNumber(line, reported) || numbersOnlyPattern.MatchString(line) {
			continue
		}
		missed := MissedLine{Line: i, Text: line}
		if g, ok := ix.Guess(line, threshold); ok {
			missed.Guess = g.Parameter
			missed.Score = g.Score
		}
		d.Missed = append(d.Missed, missed)
	}

	if d.LinesWithValues > 0 {
		d.DetectionRate = float64(d.DetectedCount) / float64(d.LinesWithValues)
	}
	return d
}

func lineHasNumber(line string, numbers map[string]bool) bool {
	if len(numbers) == 0 {
		return false
	}
	line = strings.ReplaceAll(line, ",", ".")
	for _, loc := range numberPattern.FindAllStringIndex(line, -1) {
		if loc[0] > 0 {
			if r, _ := utf8.DecodeLastRuneInString(line[:loc[0]]); unicode.IsLetter(r) {
				continue
			}
		}
		if numbers[line[loc[0]:loc[1]]] {
			return true
		}
	}
	return false
}
