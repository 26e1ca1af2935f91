package labparse

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Matching heuristics. Windows are counted in characters of the trimmed text
// following a synonym.
const (
	DefaultFuzzyThreshold    = 0.70
	DiagnosticFuzzyThreshold = 0.65

	numericWindow              = 10
	statusWindow               = 15
	qualitativeWindow          = 20
	lookaheadMaxWords          = 5
	lookaheadMaxQualitativeLen = 20
	minFuzzySynonymLen         = 3
)

// FuzzyMarker is appended to the display string of approximate matches.
const FuzzyMarker = " [~]"

// Policy decides what happens when a canonical parameter is found more than
// once in a document.
type Policy int

const (
	// PolicyFirst keeps the first confirmed match of a parameter.
	PolicyFirst Policy = iota
	// PolicyPriority lets a later exact match replace an earlier one when its
	// unit shape ranks at least as high.
	PolicyPriority
)

func (p Policy) String() string {
	if p == PolicyPriority {
		return "priority"
	}
	return "first"
}

// ParsePolicy reads a policy name as used in configuration.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return PolicyFirst, nil
	case "priority":
		return PolicyPriority, nil
	}
	return PolicyFirst, fmt.Errorf("unknown match policy %q (want first or priority)", s)
}

// shapePriority ranks unit shapes for PolicyPriority.
func shapePriority(s Shape) int {
	switch s {
	case ShapeAbsoluteCount:
		return 5
	case ShapeOther:
		return 4
	case ShapePercent:
		return 3
	case ShapeStatus, ShapeQualitativeUrine:
		return 2
	case ShapeNone:
		return 1
	}
	return 0
}

// Method records how a match was found.
type Method string

const (
	MethodExact Method = "exact"
	MethodFuzzy Method = "fuzzy"
)

// Match is one confirmed parameter reading.
type Match struct {
	Parameter string  `json:"parameter"`
	Category  string  `json:"category"`
	Display   string  `json:"display"`
	Value     string  `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Shape     Shape   `json:"shape"`
	Method    Method  `json:"method"`
	Synonym   string  `json:"synonym"`
	Line      int     `json:"line"`
	NameLine  int     `json:"name_line"`
	Score     float64 `json:"score,omitempty"`
}

// Options tune an Engine.
type Options struct {
	FuzzyThreshold float64
	Policy         Policy
	Logger         zerolog.Logger
}

// Engine runs the two matching passes over documents. An Engine holds no
// per-document state and may be shared between goroutines.
type Engine struct {
	opts Options
}

// NewEngine returns an engine; a zero FuzzyThreshold means the default.
func NewEngine(opts Options) *Engine {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Engine{opts: opts}
}

// Parse runs a default engine with a silent logger.
func Parse(ix *Index, text string) *Result {
	return NewEngine(Options{Logger: zerolog.Nop()}).Parse(ix, text)
}

// Parse extracts every known parameter from text.
func (e *Engine) Parse(ix *Index, text string) *Result {
	if ix == nil {
		ix = EmptyIndex()
	}
	p := &docParse{
		ix:      ix,
		opts:    &e.opts,
		log:     e.opts.Logger,
		lines:   splitLines(text),
		owned:   make(map[int]bool),
		matches: make(map[string]*Match),
	}
	if strings.TrimSpace(text) == "" {
		p.lines = nil
	}
	p.exactPass()
	p.fuzzyPass()

	res := p.reduce()
	p.log.Info().
		Int("lines", res.Stats.Lines).
		Int("exact", res.Stats.Exact).
		Int("fuzzy", res.Stats.Fuzzy).
		Int("unresolved", res.Stats.Unresolved).
		Str("policy", e.opts.Policy.String()).
		Msg("document parsed")
	return res
}

// docParse is the state of one Parse call: line ownership, confirmed matches
// and the lines left for the fuzzy pass.
type docParse struct {
	ix         *Index
	opts       *Options
	log        zerolog.Logger
	lines      []string
	owned      map[int]bool
	matches    map[string]*Match
	unresolved []int
}

// located is a value found near a synonym, before validation.
type located struct {
	line    int
	text    string
	finding Finding
}

func (p *docParse) exactPass() {
	for i, line := range p.lines {
		if p.owned[i] {
			continue
		}
		norm, offs := normalizeWithOffsets(line)
		if norm == "" {
			continue
		}
		if p.matchLine(i, line, norm, offs) {
			continue
		}
		if HasNumber(line) {
			p.unresolved = append(p.unresolved, i)
		}
	}
}

// matchLine tries the synonym occurrences of the line longest synonym first;
// the first confirmed candidate ends the search for the line.
func (p *docParse) matchLine(i int, line, norm string, offs []int) bool {
	for _, h := range p.ix.occurrences(norm) {
		if !isSynonymBoundary(norm, h.start, h.end) {
			continue
		}
		syn := p.ix.synonyms[h.rank]
		rest := line[sourceOffset(offs, h.end):]
		for _, param := range p.ix.declarers[syn] {
			if p.tryCandidate(i, syn, param, rest) {
				return true
			}
		}
	}
	return false
}

func (p *docParse) tryCandidate(i int, syn, param, rest string) bool {
	category, ok := p.ix.category[param]
	if !ok {
		p.log.Debug().Str("parameter", param).Int("line", i).Msg("parameter has no category, skipped")
		return false
	}
	prev, seen := p.matches[param]
	if seen && p.opts.Policy == PolicyFirst {
		return false
	}

	exp := p.ix.Expectation(param)
	loc, ok := p.locate(i, exp, rest)
	if !ok {
		return false
	}
	if !Validate(exp, loc.finding) {
		p.log.Debug().
			Str("parameter", param).
			Int("line", loc.line).
			Str("unit", loc.finding.Unit).
			Str("shape", loc.finding.Shape.String()).
			Str("expected", exp.String()).
			Msg("candidate failed unit validation")
		return false
	}
	if seen && shapePriority(loc.finding.Shape) < shapePriority(prev.Shape) {
		return false
	}

	p.matches[param] = &Match{
		Parameter: param,
		Category:  category,
		Display:   param + ": " + loc.text,
		Value:     loc.text,
		Unit:      loc.finding.Unit,
		Shape:     loc.finding.Shape,
		Method:    MethodExact,
		Synonym:   syn,
		Line:      loc.line,
		NameLine:  i,
	}
	p.owned[i] = true
	p.owned[loc.line] = true
	p.log.Debug().Str("parameter", param).Int("line", loc.line).Msg("exact match")
	return true
}

// locate finds the value for a parameter, on the current line after the
// synonym first and on the next line second.
func (p *docParse) locate(i int, exp Expectation, rest string) (located, bool) {
	rest = strings.TrimSpace(rest)

	if exp.Qualitative() {
		window := statusWindow
		if exp.Shape == ShapeQualitativeUrine {
			window = qualitativeWindow
		}
		if q, ok := ExtractQualitative(rest, exp.Shape); ok && runeOffset(rest, q.Start) < window {
			return qualitativeAt(i, q), true
		}
		if next, ok := p.lookahead(i); ok && utf8.RuneCountInString(next) < lookaheadMaxQualitativeLen {
			if q, ok := ExtractQualitative(next, exp.Shape); ok {
				return qualitativeAt(i+1, q), true
			}
		}
		return located{}, false
	}

	if v, ok := ExtractValue(rest); ok && runeOffset(rest, v.Start) < numericWindow {
		return valueAt(i, v), true
	}
	if next, ok := p.lookahead(i); ok {
		if v, ok := ExtractValue(next); ok && v.Start == 0 {
			return valueAt(i+1, v), true
		}
	}
	return located{}, false
}

// lookahead returns the trimmed next line when it may hold the value of a
// name on line i: unowned, non-empty and only a few words long.
func (p *docParse) lookahead(i int) (string, bool) {
	j := i + 1
	if j >= len(p.lines) || p.owned[j] {
		return "", false
	}
	next := strings.TrimSpace(p.lines[j])
	if next == "" || len(strings.Fields(next)) > lookaheadMaxWords {
		return "", false
	}
	return next, true
}

func (p *docParse) fuzzyPass() {
	for _, i := range p.unresolved {
		if p.owned[i] {
			continue
		}
		line := p.lines[i]
		v, ok := ExtractValue(line)
		if !ok {
			continue
		}
		guess, ok := p.ix.bestFuzzy(fuzzyText(line), p.opts.FuzzyThreshold)
		if !ok {
			continue
		}
		category, ok := p.ix.category[guess.Parameter]
		if !ok {
			continue
		}
		if !p.ix.Validate(guess.Parameter, Finding{Unit: v.Unit, Shape: v.Shape}) {
			p.log.Debug().Str("parameter", guess.Parameter).Int("line", i).Msg("fuzzy candidate failed unit validation")
			continue
		}
		if prev, seen := p.matches[guess.Parameter]; seen {
			if prev.Method == MethodExact || p.opts.Policy == PolicyFirst {
				continue
			}
		}

		text := v.Text()
		p.matches[guess.Parameter] = &Match{
			Parameter: guess.Parameter,
			Category:  category,
			Display:   guess.Parameter + ": " + text,
			Value:     text,
			Unit:      v.Unit,
			Shape:     v.Shape,
			Method:    MethodFuzzy,
			Synonym:   guess.Synonym,
			Line:      i,
			NameLine:  i,
			Score:     guess.Score,
		}
		p.owned[i] = true
		p.log.Debug().Str("parameter", guess.Parameter).Int("line", i).Float64("score", guess.Score).Msg("fuzzy match")
	}
}

func valueAt(line int, v Value) located {
	return located{line: line, text: v.Text(), finding: Finding{Unit: v.Unit, Shape: v.Shape}}
}

func qualitativeAt(line int, q Qualitative) located {
	return located{line: line, text: q.Text, finding: Finding{Shape: q.Shape, Qualitative: q.Text}}
}

// isSynonymBoundary checks the characters around norm[start:end]: start of
// line or a space before, and end of line, space, digit or comparison sign
// after.
func isSynonymBoundary(norm string, start, end int) bool {
	if start > 0 && norm[start-1] != ' ' {
		return false
	}
	if end == len(norm) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(norm[end:])
	return unicode.IsSpace(r) || unicode.IsDigit(r) || r == '<' || r == '>'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func runeOffset(s string, byteOffset int) int {
	return utf8.RuneCountInString(s[:byteOffset])
}
